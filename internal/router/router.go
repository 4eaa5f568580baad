package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/taskchase/backend/api/handler"
)

type Handlers struct {
	Task     *apiHandler.TaskHandler
	Callback *apiHandler.CallbackHandler
	Dispatch *apiHandler.DispatchHandler
	Health   *apiHandler.HealthHandler
}

func New(handlers Handlers, callbackAuth func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	// Task management
	r.GET("/api/v1/tasks", handlers.Task.ListTasks)
	r.POST("/api/v1/tasks", handlers.Task.CreateTask)
	r.GET("/api/v1/tasks/{id}", handlers.Task.GetTask)
	r.PUT("/api/v1/tasks/{id}", handlers.Task.UpdateTask)
	r.POST("/api/v1/tasks/{id}/complete", handlers.Task.CompleteTask)
	r.POST("/api/v1/tasks/{id}/reschedule", handlers.Task.RescheduleTask)
	r.POST("/api/v1/tasks/{id}/nudge", handlers.Task.NudgeTask)
	r.GET("/api/v1/tasks/{id}/queue", handlers.Task.ListQueue)
	r.GET("/api/v1/tasks/{id}/logs", handlers.Task.ListLogs)

	// Manual dispatch trigger (cron endpoint)
	r.POST("/api/v1/dispatch/run", handlers.Dispatch.Run)

	// Sink callbacks, behind the signed-token check
	r.POST("/api/v1/callbacks/delivery/sent", callbackAuth(handlers.Callback.DeliverySent))
	r.POST("/api/v1/callbacks/delivery/failed", callbackAuth(handlers.Callback.DeliveryFailed))
	r.POST("/api/v1/callbacks/calendar/conflict", callbackAuth(handlers.Callback.CalendarConflict))
	r.POST("/api/v1/callbacks/calendar/created", callbackAuth(handlers.Callback.CalendarCreated))

	return r
}
