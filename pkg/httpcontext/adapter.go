// Package httpcontext bridges fasthttp's request type to the stdlib context
// the use cases and repositories expect.
package httpcontext

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	appLogger "github.com/taskchase/backend/pkg/logger"
)

// Key identifies request metadata stored on the derived context.
type Key string

const (
	KeyRemoteAddr Key = "remote_addr"
	KeyUserAgent  Key = "user_agent"
)

const requestIDHeader = "X-Request-ID"

// Adapter derives a deadline-bound stdlib context from a fasthttp request.
type Adapter struct {
	timeout time.Duration
}

func NewAdapter(timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{timeout: timeout}
}

// Attach returns a context carrying the request id and client metadata. The
// request id is echoed back on the response so callers can correlate logs.
func (a *Adapter) Attach(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	stdCtx, cancel := context.WithTimeout(context.Background(), a.timeout)

	reqID := requestID(ctx)
	stdCtx = appLogger.ContextWithRequestID(stdCtx, reqID)
	ctx.Response.Header.Set(requestIDHeader, reqID)

	if addr := ctx.RemoteAddr(); addr != nil {
		stdCtx = context.WithValue(stdCtx, KeyRemoteAddr, addr.String())
	}
	if ua := string(ctx.Request.Header.UserAgent()); ua != "" {
		stdCtx = context.WithValue(stdCtx, KeyUserAgent, ua)
	}

	return stdCtx, cancel
}

func requestID(ctx *fasthttp.RequestCtx) string {
	if ctx == nil {
		return uuid.NewString()
	}
	if id := strings.TrimSpace(string(ctx.Request.Header.Peek(requestIDHeader))); id != "" {
		return id
	}
	return uuid.NewString()
}
