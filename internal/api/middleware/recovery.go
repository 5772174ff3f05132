package middleware

import (
	"net/http"
	"runtime/debug"

	"patterntrader/pkg/utils"
)

// Recovery перехватывает panic в HTTP handlers: сервер продолжает
// обслуживать запросы, клиент получает 500 без деталей паники.
func Recovery(next http.Handler) http.Handler {
	logger := utils.GetGlobalLogger().WithComponent("api")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic in http handler",
					utils.String("path", r.URL.Path),
					utils.Any("panic", err),
					utils.String("stack", string(debug.Stack())),
				)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
