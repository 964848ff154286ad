// Package handler exposes the application operations over HTTP. It stays
// thin: decode, delegate, encode. All authorization and validation lives in
// the service and the templates.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"formflow/internal/application/models"
	"formflow/internal/application/service"
	"formflow/internal/form/answers"
	"formflow/internal/lifecycle"
	id "formflow/pkg/domain"
	dErrors "formflow/pkg/domain-errors"
	"formflow/pkg/platform/httputil"
	"formflow/pkg/requestcontext"
)

// Service defines the application operations the handler delegates to.
type Service interface {
	Create(ctx context.Context, templateID id.TemplateID) (*models.Application, error)
	Get(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	List(ctx context.Context) ([]*models.Application, error)
	UpdateAnswers(ctx context.Context, appID id.ApplicationID, partial answers.Map) (*models.Application, error)
	SubmitEvent(ctx context.Context, appID id.ApplicationID, event lifecycle.Event) (*models.Application, error)
	FetchExternalData(ctx context.Context, appID id.ApplicationID, providerIDs []string) (*models.Application, error)
	Claim(ctx context.Context, appID id.ApplicationID, token string) (*models.Application, error)
}

// Handler wires application endpoints to the service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an application handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the application endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Route("/applications", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Route("/{applicationID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Put("/answers", h.HandleUpdateAnswers)
			r.Put("/submit", h.HandleSubmit)
			r.Post("/external-data", h.HandleExternalData)
			r.Post("/assign", h.HandleClaim)
		})
	})
}

// HandleCreate handles POST /applications.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	app, err := h.service.Create(ctx, req.ParsedTemplate())
	if err != nil {
		h.writeError(ctx, w, "create application", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, app)
}

// HandleGet handles GET /applications/{applicationID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}

	app, err := h.service.Get(ctx, appID)
	if err != nil {
		h.writeError(ctx, w, "get application", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// HandleList handles GET /applications.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	apps, err := h.service.List(ctx)
	if err != nil {
		h.writeError(ctx, w, "list applications", err)
		return
	}
	if apps == nil {
		apps = []*models.Application{}
	}
	httputil.WriteJSON(w, http.StatusOK, apps)
}

// HandleUpdateAnswers handles PUT /applications/{applicationID}/answers.
func (h *Handler) HandleUpdateAnswers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateAnswersRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	app, err := h.service.UpdateAnswers(ctx, appID, req.Answers)
	if err != nil {
		h.writeError(ctx, w, "update answers", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// HandleSubmit handles PUT /applications/{applicationID}/submit.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	app, err := h.service.SubmitEvent(ctx, appID, lifecycle.Event(req.Event))
	if err != nil {
		h.writeError(ctx, w, "submit event", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// HandleExternalData handles POST /applications/{applicationID}/external-data.
func (h *Handler) HandleExternalData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ExternalDataRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	app, err := h.service.FetchExternalData(ctx, appID, req.Providers)
	if err != nil {
		h.writeError(ctx, w, "fetch external data", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// HandleClaim handles POST /applications/{applicationID}/assign.
func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ClaimRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	app, err := h.service.Claim(ctx, appID, req.Token)
	if err != nil {
		h.writeError(ctx, w, "claim assignment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) applicationID(w http.ResponseWriter, r *http.Request) (id.ApplicationID, bool) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed application id"))
		return id.ApplicationID{}, false
	}
	return appID, true
}

// writeError translates service errors, giving validation failures their
// field-level body.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	var vf *service.ValidationFailure
	if errors.As(err, &vf) {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "validation_error",
			"error_description": vf.Detail.Message,
			"path":              vf.Detail.Path,
			"values":            vf.Detail.Values,
		})
		return
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
