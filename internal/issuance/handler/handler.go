// Package handler exposes the issuance orchestrator over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"vcwallet/internal/issuance/client"
	"vcwallet/internal/issuance/models"
	"vcwallet/pkg/domain"
	dErrors "vcwallet/pkg/domain-errors"
	"vcwallet/pkg/platform/httputil"
	"vcwallet/pkg/requestcontext"
)

// Service is the issuance orchestrator.
type Service interface {
	StartIssuance(ctx context.Context, identity domain.Identity, req models.StartRequest) (*models.StartResult, error)
	ResumePreAuthorized(ctx context.Context, identity domain.Identity, userPin string) error
	HandleAuthorizationCallback(ctx context.Context, identity domain.Identity, callbackURL string) error
	IssuerState(ctx context.Context, identity domain.Identity) (string, error)
	AvailableCredentials(ctx context.Context, legalPersonDID string) ([]models.AvailableCredential, error)
}

// Handler serves the /communication and /legal-persons endpoints. Routes
// expect an authenticated identity.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates an issuance Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the issuance routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/communication/init", h.handleInit)
	r.Post("/communication/preauthorized", h.handlePreAuthorized)
	r.Post("/communication/handle", h.handleCallback)
	r.Get("/communication/issuer-state", h.handleIssuerState)
	r.Get("/legal-persons/{did}/credentials", h.handleAvailableCredentials)
}

type initRequest struct {
	LegalPersonDID string `json:"legal_person_did"`
	URL            string `json:"url"`
}

type redirectResponse struct {
	RedirectTo string `json:"redirect_to"`
}

type preAuthResponse struct {
	PreAuth   bool `json:"preauth"`
	AskForPin bool `json:"ask_for_pin"`
}

func (h *Handler) handleInit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req initRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.StartIssuance(ctx, requestcontext.Identity(ctx), models.StartRequest{
		LegalPersonDID: strings.TrimSpace(req.LegalPersonDID),
		OfferURL:       strings.TrimSpace(req.URL),
	})
	if err != nil {
		h.fail(ctx, w, "failed to start issuance", err)
		return
	}
	if result.PreAuth {
		httputil.WriteJSON(w, http.StatusOK, preAuthResponse{PreAuth: true, AskForPin: result.AskForPin})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, redirectResponse{RedirectTo: result.RedirectTo})
}

type preAuthorizedRequest struct {
	UserPin string `json:"user_pin"`
}

func (h *Handler) handlePreAuthorized(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req preAuthorizedRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	err := h.service.ResumePreAuthorized(ctx, requestcontext.Identity(ctx), req.UserPin)
	if err != nil {
		if upstream, ok := client.AsUpstream(err); ok && dErrors.HasCode(err, dErrors.CodeInvalidRequest) {
			h.logger.WarnContext(ctx, "issuer rejected pre-authorized code", "error", err, "request_id", requestcontext.RequestID(ctx))
			body := upstream.Fields()
			if body == nil {
				body = make(map[string]any)
			}
			body["error"] = string(dErrors.CodeInvalidRequest)
			httputil.WriteJSON(w, http.StatusBadRequest, body)
			return
		}
		h.fail(ctx, w, "failed to resume pre-authorized issuance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, struct{}{})
}

type callbackRequest struct {
	URL string `json:"url"`
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req callbackRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "url is required"))
		return
	}
	if err := h.service.HandleAuthorizationCallback(ctx, requestcontext.Identity(ctx), req.URL); err != nil {
		h.fail(ctx, w, "failed to handle authorization callback", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) handleIssuerState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, err := h.service.IssuerState(ctx, requestcontext.Identity(ctx))
	if err != nil {
		h.fail(ctx, w, "failed to get issuer state", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"issuer_state": state})
}

func (h *Handler) handleAvailableCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	available, err := h.service.AvailableCredentials(ctx, chi.URLParam(r, "did"))
	if err != nil {
		h.fail(ctx, w, "failed to list supported credentials", err)
		return
	}
	if available == nil {
		available = []models.AvailableCredential{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"supported_credentials": available})
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeNotFound, dErrors.CodeValidation, dErrors.CodeBadRequest:
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	default:
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}
