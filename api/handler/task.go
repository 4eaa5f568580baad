package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/taskchase/backend/api/transport"
	"github.com/taskchase/backend/domain"
	"github.com/taskchase/backend/pkg/httpcontext"
	"github.com/taskchase/backend/repository"
	taskUC "github.com/taskchase/backend/usecase/task"
)

type TaskHandler struct {
	baseHandler
	uc *taskUC.UseCase
}

func NewTaskHandler(uc *taskUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary List tasks
// @Tags tasks
// @Router /api/v1/tasks [get]
func (h *TaskHandler) ListTasks(ctx *fasthttp.RequestCtx) {
	filter := repository.TaskFilter{
		Status:   string(ctx.QueryArgs().Peek("status")),
		Priority: string(ctx.QueryArgs().Peek("priority")),
		Limit:    parseInt(string(ctx.QueryArgs().Peek("limit")), 50),
		Offset:   parseInt(string(ctx.QueryArgs().Peek("offset")), 0),
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	tasks, err := h.uc.ListTasks(stdCtx, filter)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, tasks)
}

// @Summary Get task
// @Tags tasks
// @Router /api/v1/tasks/{id} [get]
func (h *TaskHandler) GetTask(ctx *fasthttp.RequestCtx) {
	id := pathValue(ctx, "id")
	if id == "" {
		h.respondInvalid(ctx, "missing task id")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	task, err := h.uc.GetTask(stdCtx, id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, task)
}

// @Summary Create task
// @Tags tasks
// @Router /api/v1/tasks [post]
func (h *TaskHandler) CreateTask(ctx *fasthttp.RequestCtx) {
	task, ok := h.parseTask(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	created, err := h.uc.CreateTask(stdCtx, task)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, created)
}

// @Summary Update task
// @Tags tasks
// @Router /api/v1/tasks/{id} [put]
func (h *TaskHandler) UpdateTask(ctx *fasthttp.RequestCtx) {
	task, ok := h.parseTask(ctx)
	if !ok {
		return
	}
	if task.ID == "" {
		task.ID = pathValue(ctx, "id")
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	updated, err := h.uc.UpdateTask(stdCtx, task)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, updated)
}

// @Summary Complete task
// @Tags tasks
// @Router /api/v1/tasks/{id}/complete [post]
func (h *TaskHandler) CompleteTask(ctx *fasthttp.RequestCtx) {
	id := pathValue(ctx, "id")
	if id == "" {
		h.respondInvalid(ctx, "missing task id")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	task, cancelled, err := h.uc.Complete(stdCtx, id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondJSON(ctx, http.StatusOK, transport.NewSuccess(task, map[string]int{"cancelled_chasers": cancelled}))
}

// @Summary Reschedule task
// @Tags tasks
// @Router /api/v1/tasks/{id}/reschedule [post]
func (h *TaskHandler) RescheduleTask(ctx *fasthttp.RequestCtx) {
	id := pathValue(ctx, "id")
	if id == "" {
		h.respondInvalid(ctx, "missing task id")
		return
	}

	var req transport.RescheduleRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondInvalid(ctx, "invalid payload")
		return
	}
	due, err := time.Parse(time.RFC3339, req.DueDate)
	if err != nil {
		h.respondInvalid(ctx, "due_date must be RFC3339")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	task, err := h.uc.Reschedule(stdCtx, id, due)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, task)
}

// @Summary Nudge task
// @Tags tasks
// @Router /api/v1/tasks/{id}/nudge [post]
func (h *TaskHandler) NudgeTask(ctx *fasthttp.RequestCtx) {
	id := pathValue(ctx, "id")
	if id == "" {
		h.respondInvalid(ctx, "missing task id")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	entry, err := h.uc.Nudge(stdCtx, id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, entry)
}

// @Summary List a task's queue entries
// @Tags tasks
// @Router /api/v1/tasks/{id}/queue [get]
func (h *TaskHandler) ListQueue(ctx *fasthttp.RequestCtx) {
	id := pathValue(ctx, "id")
	if id == "" {
		h.respondInvalid(ctx, "missing task id")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	entries, err := h.uc.QueueEntries(stdCtx, id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, entries)
}

// @Summary List a task's delivery logs
// @Tags tasks
// @Router /api/v1/tasks/{id}/logs [get]
func (h *TaskHandler) ListLogs(ctx *fasthttp.RequestCtx) {
	id := pathValue(ctx, "id")
	if id == "" {
		h.respondInvalid(ctx, "missing task id")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	logs, err := h.uc.DeliveryLogs(stdCtx, id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, logs)
}

func (h *TaskHandler) parseTask(ctx *fasthttp.RequestCtx) (*domain.Task, bool) {
	var req transport.TaskRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondInvalid(ctx, "invalid payload")
		return nil, false
	}

	var due time.Time
	if req.DueDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.DueDate)
		if err != nil {
			h.respondInvalid(ctx, "due_date must be RFC3339")
			return nil, false
		}
		due = parsed
	}

	return &domain.Task{
		ID:            req.ID,
		Title:         req.Title,
		AssigneeName:  req.AssigneeName,
		AssigneeEmail: req.AssigneeEmail,
		AssigneePhone: req.AssigneePhone,
		SlackChannel:  req.SlackChannel,
		DueDate:       due,
		Priority:      req.Priority,
	}, true
}

func parseInt(value string, fallback int) int {
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}
