package user

import (
	"errors"
	"net/http"

	"github.com/pocket/pocket/internal/rest"
	log "github.com/sirupsen/logrus"
)

type UserDTO struct {
	Uid         string `json:"uid"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

type Handler struct {
	userService Service
}

func NewHandler(userService Service) *Handler {
	return &Handler{userService: userService}
}

// CurrentUser godoc
// @Summary Get the current user
// @Tags User
// @Produce json
// @Success 200 {object} UserDTO
// @Failure 403 {object} rest.ErrorResponse "User not found"
// @Router /api/user/current [get]
// @Security XUserId
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	log.Debug("Getting current user")
	u, err := h.userService.GetCurrentUser(r.Context())
	if err != nil {
		if errors.Is(err, ErrNoUser) || errors.Is(err, ErrUserNotFound) {
			rest.WriteError(w, http.StatusForbidden, "user not found")
			return
		}
		rest.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rest.WriteJSON(w, http.StatusOK, UserDTO{Uid: u.Uid, Username: u.Username, DisplayName: u.DisplayName})
}
