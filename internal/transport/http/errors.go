package http

import (
	"errors"
	"net/http"

	"github.com/cwrk-planet/presence-service/internal/domain"
)

func toHTTP(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRoom):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRoomFull), errors.Is(err, domain.ErrRoomNotOpen):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPasswordMismatch):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
