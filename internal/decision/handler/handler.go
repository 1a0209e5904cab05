// Package handler exposes the decision inbox over HTTP. All routes are
// tenant-scoped: the tenant middleware resolves the X-Tenant-Key header and
// stamps one request time so every read in a request sees the same clock.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"arbiter/internal/decision/assist"
	"arbiter/internal/decision/models"
	"arbiter/internal/decision/service"
	"arbiter/internal/decision/store"
	dErrors "arbiter/pkg/domain-errors"
	"arbiter/pkg/platform/httputil"
	"arbiter/pkg/requestcontext"
)

// Service defines the interface for decision inbox operations.
type Service interface {
	Create(ctx context.Context, tenantID uuid.UUID, in service.CreateInput) (models.InboxItem, error)
	Inbox(ctx context.Context, tenantID uuid.UUID, status, purpose string) ([]models.InboxItem, error)
	Decide(ctx context.Context, tenantID, id uuid.UUID, in service.DecideInput) (models.InboxItem, error)
	RequestInfo(ctx context.Context, tenantID, id uuid.UUID, in service.RequestInfoInput) (models.InboxItem, error)
	Delegate(ctx context.Context, tenantID, id uuid.UUID, in service.DelegateInput) (models.InboxItem, error)
	GetHistory(ctx context.Context, tenantID uuid.UUID, filter store.HistoryFilter) ([]models.HistoryRow, error)
	AssistDraft(ctx context.Context, tenantID, id uuid.UUID) (assist.Draft, error)
}

// Handler wires decision endpoints to the inbox service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a decision handler.
func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts decision endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/decisions", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleInbox)
		r.Get("/history", h.HandleHistory)
		r.Route("/{id}", func(r chi.Router) {
			r.Post("/decide", h.HandleDecide)
			r.Post("/request-info", h.HandleRequestInfo)
			r.Post("/delegate", h.HandleDelegate)
			r.Get("/assist-draft", h.HandleAssistDraft)
		})
	})
}

// HandleCreate handles POST /decisions.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := requestcontext.Tenant(ctx)
	requestID := requestcontext.RequestID(ctx)

	in, ok := httputil.DecodeAndPrepare[service.CreateInput](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	item, err := h.service.Create(ctx, tenant.ID, in)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create decision",
			"request_id", requestID,
			"tenant", tenant.Key,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, item)
}

// HandleInbox handles GET /decisions.
func (h *Handler) HandleInbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := requestcontext.Tenant(ctx)

	status := r.URL.Query().Get("status")
	purpose := r.URL.Query().Get("purpose")

	items, err := h.service.Inbox(ctx, tenant.ID, status, purpose)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list decision inbox",
			"request_id", requestcontext.RequestID(ctx),
			"tenant", tenant.Key,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// HandleDecide handles POST /decisions/{id}/decide.
func (h *Handler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := requestcontext.Tenant(ctx)
	requestID := requestcontext.RequestID(ctx)

	id, ok := pathID(w, r)
	if !ok {
		return
	}
	in, ok := httputil.DecodeAndPrepare[service.DecideInput](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	item, err := h.service.Decide(ctx, tenant.ID, id, in)
	if err != nil {
		h.logger.WarnContext(ctx, "decide failed",
			"request_id", requestID,
			"tenant", tenant.Key,
			"decision_id", id,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

// HandleRequestInfo handles POST /decisions/{id}/request-info.
func (h *Handler) HandleRequestInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := requestcontext.Tenant(ctx)
	requestID := requestcontext.RequestID(ctx)

	id, ok := pathID(w, r)
	if !ok {
		return
	}
	in, ok := httputil.DecodeAndPrepare[service.RequestInfoInput](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	item, err := h.service.RequestInfo(ctx, tenant.ID, id, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

// HandleDelegate handles POST /decisions/{id}/delegate.
func (h *Handler) HandleDelegate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := requestcontext.Tenant(ctx)
	requestID := requestcontext.RequestID(ctx)

	id, ok := pathID(w, r)
	if !ok {
		return
	}
	in, ok := httputil.DecodeAndPrepare[service.DelegateInput](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if in.DelegateUserID == uuid.Nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "delegateUserId is required"))
		return
	}

	item, err := h.service.Delegate(ctx, tenant.ID, id, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

// HandleHistory handles GET /decisions/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := requestcontext.Tenant(ctx)

	q := r.URL.Query()
	filter := store.HistoryFilter{
		Action:       q.Get("action"),
		Status:       q.Get("status"),
		DecisionType: q.Get("type"),
		Search:       q.Get("search"),
		Take:         queryInt(q.Get("take")),
	}

	rows, err := h.service.GetHistory(ctx, tenant.ID, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to query decision history",
			"request_id", requestcontext.RequestID(ctx),
			"tenant", tenant.Key,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": rows, "count": len(rows)})
}

// HandleAssistDraft handles GET /decisions/{id}/assist-draft.
func (h *Handler) HandleAssistDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := requestcontext.Tenant(ctx)

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	draft, err := h.service.AssistDraft(ctx, tenant.ID, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, draft)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid decision id"))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
