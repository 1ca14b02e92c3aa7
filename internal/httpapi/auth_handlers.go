package httpapi

import (
	"net/http"

	"gatekey.org/internal/audit"
	"gatekey.org/internal/auth"
)

type loginRequest struct {
	UserNameOrEmail string `json:"userNameOrEmail"`
	Password        string `json:"password"`
}

type googleLoginRequest struct {
	IDToken string `json:"idToken"`
}

type refreshRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type registerRequest struct {
	UserName string `json:"userName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type confirmEmailRequest struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type sendConfirmationRequest struct {
	ConfirmationURL string `json:"confirmationUrl"`
	CallbackURL     string `json:"callbackUrl"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tokens, err := a.auth.Login(r.Context(), req.UserNameOrEmail, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
			"user": req.UserNameOrEmail,
		})
		writeFailure(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"user": req.UserNameOrEmail,
	})
	writeJSON(w, http.StatusOK, tokens)
}

func (a *API) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req googleLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tokens, err := a.auth.GoogleLogin(r.Context(), req.IDToken)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.google.failed", nil)
		writeFailure(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"provider": "google",
	})
	writeJSON(w, http.StatusOK, tokens)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tokens, err := a.tokens.Refresh(r.Context(), auth.Tokens{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.refresh.failed", nil)
		writeFailure(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.refresh.rotated", nil)
	writeJSON(w, http.StatusOK, tokens)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.auth.Register(r.Context(), req.UserName, req.Email, req.Password)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.user.registered", map[string]any{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"userName": user.UserName,
		"email":    user.Email,
	})
}

func (a *API) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req confirmEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.auth.ConfirmEmail(r.Context(), req.UserID, req.Token); err != nil {
		writeFailure(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.email.confirmed", map[string]any{
		"user_id": req.UserID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSendConfirmation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req sendConfirmationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, _ := authUser(r)
	if err := a.auth.SendEmailConfirmation(r.Context(), userID, req.ConfirmationURL, req.CallbackURL); err != nil {
		writeFailure(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.confirmation.sent", map[string]any{
		"user_id": userID,
	})
	w.WriteHeader(http.StatusNoContent)
}
