// Package callback guards the directory callback routes with a shared token.
package callback

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "dictkeys/pkg/domain-errors"
	"dictkeys/pkg/platform/httputil"
	"dictkeys/pkg/requestcontext"
)

const TokenHeader = "X-Callback-Token"

func RequireToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(TokenHeader)
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "callback token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "callback token required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
