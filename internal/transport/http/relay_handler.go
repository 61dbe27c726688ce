package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"notegate/internal/bindings"
	apierrors "notegate/internal/errors"
	"notegate/internal/notes"
	"notegate/internal/security"
	"notegate/internal/services"
)

// RelayHandler serves the key issuance and note parse endpoints.
type RelayHandler struct {
	service       services.RelayService
	validate      *validator.Validate
	adminPassword string
	logger        *slog.Logger
}

// NewRelayHandler creates a relay handler.
func NewRelayHandler(service services.RelayService, adminPassword string, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		service:       service,
		validate:      validator.New(),
		adminPassword: adminPassword,
		logger:        logger.With(slog.String("handler", "relay")),
	}
}

// Routes returns a chi router for the relay endpoints.
func (h *RelayHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/generate_key", h.GenerateKey)
	r.Get("/parse", h.Parse)
	return r
}

// parseRequest carries the query parameters of /api/parse:
// A = license key, B = device id, C = note url.
type parseRequest struct {
	Key    string `validate:"required"`
	Device string `validate:"required"`
	URL    string `validate:"required,url"`
}

// generateKeyResponse is the success body of /api/generate_key.
type generateKeyResponse struct {
	Status string `json:"status"`
	NewKey string `json:"new_key_generated"`
}

// parseResponse is the success body of /api/parse.
type parseResponse struct {
	Status    string   `json:"status"`
	Title     string   `json:"title"`
	NoteType  string   `json:"notetype"`
	MediaURLs []string `json:"media_urls"`
}

// GenerateKey handles POST /api/generate_key?password=...
func (h *RelayHandler) GenerateKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	password := r.URL.Query().Get("password")
	if password == "" {
		render.Render(w, r, apierrors.ErrMissingPassword)
		return
	}
	if !security.SecureCompare(password, h.adminPassword) {
		h.logger.WarnContext(ctx, "key generation rejected",
			slog.String("remote_addr", r.RemoteAddr))
		render.Render(w, r, apierrors.ErrUnauthorized)
		return
	}

	key, err := h.service.IssueKey(ctx)
	if err != nil {
		render.Render(w, r, apierrors.StoreUnreachable(err))
		return
	}

	render.JSON(w, r, generateKeyResponse{Status: "success", NewKey: key})
}

// Parse handles GET /api/parse?A=key&B=device&C=url
func (h *RelayHandler) Parse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	req := parseRequest{
		Key:    query.Get("A"),
		Device: query.Get("B"),
		URL:    query.Get("C"),
	}
	if req.Key == "" || req.Device == "" || req.URL == "" {
		render.Render(w, r, apierrors.ErrMissingParameter)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		render.Render(w, r, apierrors.InvalidParameter("C", "must be a valid URL"))
		return
	}

	desc, err := h.service.Parse(ctx, req.Key, req.Device, req.URL)
	if err != nil {
		render.Render(w, r, mapDomainError(err))
		return
	}

	render.JSON(w, r, parseResponse{
		Status:    "success",
		Title:     desc.Title,
		NoteType:  desc.NoteType,
		MediaURLs: desc.MediaURLs,
	})
}

// mapDomainError translates the validation/extraction taxonomy into API
// errors. All failures are terminal for the request; none are retried here.
func mapDomainError(err error) *apierrors.APIError {
	switch {
	case errors.Is(err, bindings.ErrInvalidKey):
		return apierrors.ErrInvalidKey
	case errors.Is(err, bindings.ErrDeviceMismatch):
		return apierrors.ErrDeviceMismatch
	case errors.Is(err, bindings.ErrBindingWrite):
		return apierrors.BindingWriteFailed(err)
	case errors.Is(err, bindings.ErrStoreUnreachable),
		errors.Is(err, bindings.ErrStoreNotFound):
		return apierrors.StoreUnreachable(err)
	case errors.Is(err, notes.ErrUnreachable),
		errors.Is(err, notes.ErrStateNotFound),
		errors.Is(err, notes.ErrMalformedPayload):
		return apierrors.ExtractionFailed(err)
	default:
		return apierrors.Internal(err)
	}
}
