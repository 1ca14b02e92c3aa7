package httpapi

import (
	"net/http"

	"gatekey.org/internal/audit"
)

type forgotPasswordRequest struct {
	Email       string `json:"email"`
	ResetURL    string `json:"resetUrl"`
	CallbackURL string `json:"callbackUrl"`
}

type resetPasswordRequest struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

type addPasswordRequest struct {
	Password string `json:"password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.recovery.ForgotPassword(r.Context(), req.Email, req.ResetURL, req.CallbackURL); err != nil {
		writeFailure(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "recovery.reset.requested", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.recovery.ResetPassword(r.Context(), req.Email, req.Token, req.Password); err != nil {
		writeFailure(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "recovery.password.reset", nil)
	w.WriteHeader(http.StatusNoContent)
}

// handlePassword covers the authenticated password routes: POST adds a
// first password to a federated account, PUT changes an existing one.
func (a *API) handlePassword(w http.ResponseWriter, r *http.Request) {
	userID, _ := authUser(r)

	switch r.Method {
	case http.MethodPost:
		var req addPasswordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.recovery.AddPassword(r.Context(), userID, req.Password); err != nil {
			writeFailure(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "recovery.password.added", map[string]any{
			"user_id": userID,
		})
		w.WriteHeader(http.StatusNoContent)

	case http.MethodPut:
		var req changePasswordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.recovery.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
			writeFailure(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "recovery.password.changed", map[string]any{
			"user_id": userID,
		})
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, http.MethodPost, http.MethodPut)
	}
}
