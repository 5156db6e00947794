package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/zhouzirui/sympcheck/backend/pkg/utils"
)

// RateLimit 按客户端 IP 限流，超限时返回 JSON 格式的 429。
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			utils.RespondError(w, http.StatusTooManyRequests, "too many requests, please slow down")
		}),
	)
}
