package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"beskarliquidator/pkg/utils"
)

// Recovery catches a panic in any handler, logs the stack trace, and
// returns 500 instead of letting the connection die. Request handling
// continues for subsequent requests on the same server.
func Recovery(log *utils.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("panic in handler",
						utils.String("path", r.URL.Path),
						utils.Any("panic", err),
						utils.String("stack", string(debug.Stack())))
					http.Error(w, fmt.Sprintf("internal server error: %v", err), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
