package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	credmodels "vcwallet/internal/credential/models"
	presmodels "vcwallet/internal/presentation/models"
	"vcwallet/pkg/domain"
	dErrors "vcwallet/pkg/domain-errors"
	"vcwallet/pkg/platform/httputil"
	"vcwallet/pkg/requestcontext"
)

// Service defines the storage operations exposed over HTTP.
type Service interface {
	ListCredentials(ctx context.Context, identity domain.Identity) ([]credmodels.Record, error)
	GetCredential(ctx context.Context, identity domain.Identity, id domain.CredentialID) (*credmodels.Record, error)
	DeleteCredential(ctx context.Context, identity domain.Identity, id domain.CredentialID) error
	ListPresentations(ctx context.Context, identity domain.Identity) ([]presmodels.Record, error)
	GetPresentation(ctx context.Context, identity domain.Identity, id domain.PresentationID) (*presmodels.Record, error)
	DeletePresentations(ctx context.Context, identity domain.Identity) (int, error)
}

// Handler serves /storage endpoints. Routes expect an authenticated identity.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates a storage Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the storage routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/storage/vc", h.handleListCredentials)
	r.Get("/storage/vc/{id}", h.handleGetCredential)
	r.Delete("/storage/vc/{id}", h.handleDeleteCredential)
	r.Get("/storage/vp", h.handleListPresentations)
	r.Get("/storage/vp/{id}", h.handleGetPresentation)
	r.Delete("/storage/vp", h.handleDeletePresentations)
}

func (h *Handler) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := h.service.ListCredentials(ctx, requestcontext.Identity(ctx))
	if err != nil {
		h.fail(ctx, w, "failed to list credentials", err)
		return
	}
	if records == nil {
		records = []credmodels.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"vc_list": records})
}

func (h *Handler) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.GetCredential(ctx, requestcontext.Identity(ctx), id)
	if err != nil {
		h.fail(ctx, w, "failed to get credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.DeleteCredential(ctx, requestcontext.Identity(ctx), id); err != nil {
		h.fail(ctx, w, "failed to delete credential", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListPresentations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := h.service.ListPresentations(ctx, requestcontext.Identity(ctx))
	if err != nil {
		h.fail(ctx, w, "failed to list presentations", err)
		return
	}
	if records == nil {
		records = []presmodels.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"vp_list": records})
}

func (h *Handler) handleGetPresentation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParsePresentationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.GetPresentation(ctx, requestcontext.Identity(ctx), id)
	if err != nil {
		h.fail(ctx, w, "failed to get presentation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleDeletePresentations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	removed, err := h.service.DeletePresentations(ctx, requestcontext.Identity(ctx))
	if err != nil {
		h.fail(ctx, w, "failed to delete presentations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"deleted": removed})
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeNotFound {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	} else {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}
