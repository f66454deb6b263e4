package handler

import (
	"net/http"

	"github.com/itchan-dev/accounts/shared/api"
	"github.com/itchan-dev/accounts/shared/domain"
	"github.com/itchan-dev/accounts/shared/errors"
	mw "github.com/itchan-dev/accounts/shared/middleware"
	"github.com/itchan-dev/accounts/shared/utils"
)

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body api.RegisterRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	result, err := h.accounts.Register(r.Context(), domain.Registration{
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Email:     body.Email,
		Password:  body.Password,
	})
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, api.MessageResponse{Title: result.Title, Message: result.Message})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body api.LoginRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		// missing fields look the same as wrong credentials
		utils.WriteErrorAndStatusCode(w, errors.ErrInvalidCredentials)
		return
	}

	session, err := h.accounts.Login(r.Context(), domain.Credentials{Email: body.UserName, Password: body.Password})
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	h.setSessionCookie(w, session.Jwt)
	utils.WriteJSON(w, http.StatusOK, userResponse(session))
}

// RefreshUserToken runs behind NeedAuth and reissues the session of the caller.
func (h *Handler) RefreshUserToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := mw.GetClaimsFromContext(r)
	if !ok {
		http.Error(w, "Please sign-in", http.StatusUnauthorized)
		return
	}

	session, err := h.accounts.RefreshSession(r.Context(), claims)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	h.setSessionCookie(w, session.Jwt)
	utils.WriteJSON(w, http.StatusOK, userResponse(session))
}

func (h *Handler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var body api.ConfirmEmailRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	if err := h.accounts.ConfirmEmail(r.Context(), body.Email, body.Token); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, api.MessageResponse{
		Title:   "Email Confirmed",
		Message: "Your email is confirmed. You can login now",
	})
}

func (h *Handler) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var body api.ResendConfirmationRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	if err := h.accounts.ResendConfirmation(r.Context(), body.Email); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, api.MessageResponse{
		Title:   "Confirmation Link Sent",
		Message: "If an unconfirmed account uses this address, a new confirmation link has been sent",
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     mw.AccessTokenCookie,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Public.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     mw.AccessTokenCookie,
		Value:    token,
		MaxAge:   int(h.cfg.JwtTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.Public.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func userResponse(session domain.UserSession) api.UserResponse {
	return api.UserResponse{FirstName: session.FirstName, LastName: session.LastName, Jwt: session.Jwt}
}
