// src/handlers/auth_handler.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/BanziSeo/habiOS-sub002/src/security"
)

type AuthHandler struct {
	auth *security.AuthService
}

func NewAuthHandler(auth *security.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Passcode string `json:"passcode"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid login payload")
		return
	}
	token, err := h.auth.Login(req.Passcode)
	if err != nil {
		if errors.Is(err, security.ErrInvalidPasscode) {
			writeError(w, http.StatusUnauthorized, "invalid passcode")
			return
		}
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
