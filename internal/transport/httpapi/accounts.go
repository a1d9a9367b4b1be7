package httpapi

import (
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/service/auth"
)

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	session, err := a.accounts.Register(r.Context(), auth.RegisterInput{
		Name:                 req.Name,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeData(w, http.StatusCreated, toSession(session))
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	session, err := a.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeData(w, http.StatusOK, toSession(session))
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.accounts.Logout(r.Context(), currentToken(r.Context())); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}
