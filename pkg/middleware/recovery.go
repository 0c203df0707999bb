package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
)

// Recovery middleware recovers from panics and logs them
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			// Let net/http abort the connection
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			Logger(r.Context()).Error("Panic recovered",
				"error", rec,
				"stack_trace", string(debug.Stack()),
				"method", r.Method,
				"path", r.URL.Path,
			)

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   http.StatusText(http.StatusInternalServerError),
			})
		}()

		next.ServeHTTP(w, r)
	})
}
