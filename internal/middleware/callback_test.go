package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/taskchase/backend/internal/infrastructure/sink"
)

func TestCallbackAuth(t *testing.T) {
	const secret = "test-secret"

	wrap := func(handled *bool) fasthttp.RequestHandler {
		return CallbackAuth(secret, nil)(func(ctx *fasthttp.RequestCtx) {
			*handled = true
		})
	}

	t.Run("missing token is rejected with the error envelope", func(t *testing.T) {
		var handled bool
		var ctx fasthttp.RequestCtx
		ctx.Request.SetRequestURI("/api/callbacks/delivery/sent")

		wrap(&handled)(&ctx)

		require.False(t, handled)
		require.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
		require.Contains(t, string(ctx.Response.Body()), "UNAUTHORIZED")
	})

	t.Run("bad token is rejected", func(t *testing.T) {
		var handled bool
		var ctx fasthttp.RequestCtx
		ctx.Request.SetRequestURI("/api/callbacks/delivery/sent?token=garbage")

		wrap(&handled)(&ctx)

		require.False(t, handled)
		require.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	})

	t.Run("valid token passes through with verified ids", func(t *testing.T) {
		token, err := sink.SignCallbackToken(secret, "q7", "t3", time.Minute)
		require.NoError(t, err)

		var handled bool
		var ctx fasthttp.RequestCtx
		ctx.Request.SetRequestURI("/api/callbacks/delivery/sent?token=" + token)

		CallbackAuth(secret, nil)(func(ctx *fasthttp.RequestCtx) {
			handled = true
			require.Equal(t, "q7", CallbackQueueID(ctx))
			require.Equal(t, "t3", CallbackTaskID(ctx))
		})(&ctx)

		require.True(t, handled)
	})
}
