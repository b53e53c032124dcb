package app

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pocket/pocket/internal/rest"
	"github.com/pocket/pocket/pkg/user"
	log "github.com/sirupsen/logrus"
)

const userIdHeader = "X-User-Id"

// SetupMiddleware wires all HTTP middlewares for the application.
func SetupMiddleware(r *mux.Router, deps *Dependencies) {
	r.Use(UserMiddleware(deps.UserService))
}

// UserMiddleware resolves the X-User-Id header to a user and puts it into the request context.
// Requests without the header pass through without a user and are refused by the handlers.
func UserMiddleware(users user.Service) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			uid := req.Header.Get(userIdHeader)
			ctx := req.Context()

			if uid != "" {
				u, err := users.GetUserByUid(ctx, uid)
				if err != nil {
					if errors.Is(err, user.ErrUserNotFound) {
						log.Debugf("user not found: %s", uid)
						rest.WriteError(w, http.StatusForbidden, "user not found")
						return
					}
					log.Errorf("failed to get user: %v", err)
					rest.WriteError(w, http.StatusInternalServerError, "failed to resolve user")
					return
				}
				ctx = user.WithUser(ctx, u)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}
