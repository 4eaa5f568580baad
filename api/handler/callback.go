package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/taskchase/backend/api/transport"
	"github.com/taskchase/backend/internal/middleware"
	"github.com/taskchase/backend/pkg/httpcontext"
	deliveryUC "github.com/taskchase/backend/usecase/delivery"
)

// CallbackHandler receives the sink's asynchronous outcome reports. Routes
// are mounted behind the callback-token middleware; the verified queue id
// from the token takes precedence over whatever the body claims.
type CallbackHandler struct {
	baseHandler
	uc *deliveryUC.UseCase
}

func NewCallbackHandler(uc *deliveryUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *CallbackHandler {
	return &CallbackHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Delivery succeeded callback
// @Tags callbacks
// @Router /api/v1/callbacks/delivery/sent [post]
func (h *CallbackHandler) DeliverySent(ctx *fasthttp.RequestCtx) {
	var req transport.DeliverySentRequest
	_ = json.Unmarshal(ctx.PostBody(), &req)

	queueID := middleware.CallbackQueueID(ctx)
	if queueID == "" {
		queueID = req.QueueID
	}
	if queueID == "" {
		h.respondInvalid(ctx, "missing queue id")
		return
	}

	var sentAt *time.Time
	if req.SentAt != "" {
		if parsed, err := time.Parse(time.RFC3339, req.SentAt); err == nil {
			sentAt = &parsed
		}
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.DispatchSucceeded(stdCtx, queueID, sentAt, req.ExecutionID); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

// @Summary Delivery failed callback
// @Tags callbacks
// @Router /api/v1/callbacks/delivery/failed [post]
func (h *CallbackHandler) DeliveryFailed(ctx *fasthttp.RequestCtx) {
	var req transport.DeliveryFailedRequest
	_ = json.Unmarshal(ctx.PostBody(), &req)

	queueID := middleware.CallbackQueueID(ctx)
	if queueID == "" {
		queueID = req.QueueID
	}
	if queueID == "" {
		h.respondInvalid(ctx, "missing queue id")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.DispatchFailed(stdCtx, queueID, req.Error); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

// @Summary Calendar conflict callback
// @Tags callbacks
// @Router /api/v1/callbacks/calendar/conflict [post]
func (h *CallbackHandler) CalendarConflict(ctx *fasthttp.RequestCtx) {
	var req transport.CalendarConflictRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondInvalid(ctx, "invalid payload")
		return
	}

	taskID := middleware.CallbackTaskID(ctx)
	if taskID == "" {
		taskID = req.TaskID
	}
	if taskID == "" {
		h.respondInvalid(ctx, "missing task id")
		return
	}

	var end *time.Time
	if req.ConflictEndTime != "" {
		if parsed, err := time.Parse(time.RFC3339, req.ConflictEndTime); err == nil {
			end = &parsed
		}
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.CalendarConflict(stdCtx, taskID, req.HasConflict, req.ConflictWith, end); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}

// @Summary Calendar event created callback
// @Tags callbacks
// @Router /api/v1/callbacks/calendar/created [post]
func (h *CallbackHandler) CalendarCreated(ctx *fasthttp.RequestCtx) {
	var req transport.CalendarCreatedRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondInvalid(ctx, "invalid payload")
		return
	}

	taskID := middleware.CallbackTaskID(ctx)
	if taskID == "" {
		taskID = req.TaskID
	}
	if taskID == "" {
		h.respondInvalid(ctx, "missing task id")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.CalendarCreated(stdCtx, taskID, req.EventID); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, nil)
}
