package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/taskchase/backend/internal/services"
	"github.com/taskchase/backend/pkg/httpcontext"
)

// DispatchHandler exposes the on-demand dispatch cycle trigger used by
// external cron callers and operators.
type DispatchHandler struct {
	baseHandler
	dispatcher *services.Dispatcher
}

func NewDispatchHandler(dispatcher *services.Dispatcher, adapter *httpcontext.Adapter, logger *zap.Logger) *DispatchHandler {
	return &DispatchHandler{
		baseHandler: newBaseHandler(adapter, logger),
		dispatcher:  dispatcher,
	}
}

// @Summary Run one dispatch cycle
// @Tags dispatch
// @Router /api/v1/dispatch/run [post]
func (h *DispatchHandler) Run(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.dispatcher.RunCycle(stdCtx); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, map[string]string{"result": "cycle completed"})
}
