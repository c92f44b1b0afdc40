package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	lpmodels "vcwallet/internal/legalperson/models"
	"vcwallet/internal/platform/config"
)

type legalPersonFlags struct {
	did          string
	url          string
	name         string
	clientID     string
	clientSecret string
}

// newLegalPersonCommand manages the registry of known credential issuers.
func newLegalPersonCommand() *cobra.Command {
	flags := config.FlagSet()
	cmd := &cobra.Command{
		Use:   "legalperson",
		Short: "Manage registered credential issuers",
	}
	cmd.PersistentFlags().AddFlagSet(flags)

	var lp legalPersonFlags
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a credential issuer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url is required")
			}
			if strings.TrimSpace(lp.did) == "" || strings.TrimSpace(lp.url) == "" {
				return errors.New("--did and --url are required")
			}
			st, err := openStores(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			record := &lpmodels.LegalPerson{
				DID:          strings.TrimSpace(lp.did),
				URL:          strings.TrimSuffix(strings.TrimSpace(lp.url), "/"),
				FriendlyName: lp.name,
				ClientID:     lp.clientID,
				ClientSecret: lp.clientSecret,
			}
			if err := st.legalPersons.Create(cmd.Context(), record); err != nil {
				return fmt.Errorf("register %s: %w", record.DID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (id %d)\n", record.DID, record.ID)
			return nil
		},
	}
	add.Flags().StringVar(&lp.did, "did", "", "issuer DID")
	add.Flags().StringVar(&lp.url, "url", "", "credential issuer URL")
	add.Flags().StringVar(&lp.name, "name", "", "display name")
	add.Flags().StringVar(&lp.clientID, "client-id", "", "OAuth client id issued to the wallet")
	add.Flags().StringVar(&lp.clientSecret, "client-secret", "", "OAuth client secret")

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered credential issuers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url is required")
			}
			st, err := openStores(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			all, err := st.legalPersons.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDID\tURL\tNAME")
			for _, p := range all {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.ID, p.DID, p.URL, p.FriendlyName)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}
