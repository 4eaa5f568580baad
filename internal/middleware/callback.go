package middleware

import (
	"encoding/json"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/taskchase/backend/api/transport"
	"github.com/taskchase/backend/domain"
	"github.com/taskchase/backend/internal/infrastructure/sink"
)

const (
	queueIDKey = "callback_queue_id"
	taskIDKey  = "callback_task_id"
)

// CallbackAuth verifies the signed token carried by sink callbacks, either as
// a ?token= query parameter (the form embedded in dispatch payload URLs) or
// as a bearer token. Verified ids are stored on the request for handlers.
func CallbackAuth(secret string, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			tokenString := extractToken(ctx)
			if tokenString == "" {
				rejectUnauthorized(ctx)
				return
			}

			claims, err := sink.VerifyCallbackToken(secret, tokenString)
			if err != nil {
				logger.Warn("invalid callback token", zap.Error(err))
				rejectUnauthorized(ctx)
				return
			}

			ctx.SetUserValue(queueIDKey, claims.QueueID)
			ctx.SetUserValue(taskIDKey, claims.TaskID)

			next(ctx)
		}
	}
}

// CallbackQueueID returns the queue id verified by CallbackAuth, if any.
func CallbackQueueID(ctx *fasthttp.RequestCtx) string {
	v, _ := ctx.UserValue(queueIDKey).(string)
	return v
}

// CallbackTaskID returns the task id verified by CallbackAuth, if any.
func CallbackTaskID(ctx *fasthttp.RequestCtx) string {
	v, _ := ctx.UserValue(taskIDKey).(string)
	return v
}

func rejectUnauthorized(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	body, _ := json.Marshal(transport.NewError(string(domain.ErrCodeUnauthorized), domain.ErrUnauthorized.Error(), nil))
	ctx.SetBody(body)
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	if token := string(ctx.QueryArgs().Peek("token")); token != "" {
		return token
	}
	header := string(ctx.Request.Header.Peek("Authorization"))
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}
