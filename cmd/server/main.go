package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "vcwallet",
		Short:        "Wallet backend: OpenID4VCI issuance and remote signing",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand(), newLegalPersonCommand())
	return root
}
