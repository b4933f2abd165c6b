package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/nkiryanov/eazynet/internal/apperrors"
	"github.com/nkiryanov/eazynet/internal/handlers/render"
	"github.com/nkiryanov/eazynet/internal/handlers/sessionctx"
	"github.com/nkiryanov/eazynet/internal/logger"
	"github.com/nkiryanov/eazynet/internal/models"
	"github.com/nkiryanov/eazynet/internal/service/authstate"
	"github.com/nkiryanov/eazynet/internal/service/oauth"
)

type AuthHandler struct {
	google oauthProvider
	secure bool
	logger logger.Logger
}

type userResponse struct {
	User models.User `json:"user"`
}

// Session put into the context by the session middleware
func requestSession(w http.ResponseWriter, r *http.Request) (*sessionctx.Session, bool) {
	s, ok := sessionctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Session is not initialized", http.StatusInternalServerError)
	}
	return s, ok
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		return
	}
	s, ok := requestSession(w, r)
	if !ok {
		return
	}

	user, err := s.Client.Login(r.Context(), data.Email, data.Password)
	if err != nil {
		renderClientError(w, err, h.logger)
		return
	}

	render.JSON(w, userResponse{User: user})
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,password"`
		Name     string `json:"name" validate:"omitempty,max=100"`
	}

	data, err := render.BindAndValidate[RegisterRequest](w, r)
	if err != nil {
		return
	}
	s, ok := requestSession(w, r)
	if !ok {
		return
	}

	user, err := s.Client.Register(r.Context(), models.Registration{
		Email:    data.Email,
		Password: data.Password,
		Name:     data.Name,
	})
	if err != nil {
		renderClientError(w, err, h.logger)
		return
	}

	render.JSON(w, userResponse{User: user})
}

func (h *AuthHandler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	type ForgotPasswordRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	data, err := render.BindAndValidate[ForgotPasswordRequest](w, r)
	if err != nil {
		return
	}
	s, ok := requestSession(w, r)
	if !ok {
		return
	}

	if err := s.Client.ForgotPassword(r.Context(), data.Email); err != nil {
		renderClientError(w, err, h.logger)
		return
	}

	render.Message(w, "If the account exists, a reset link was sent")
}

// Sign out of the backend and the provider at once
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	s, ok := requestSession(w, r)
	if !ok {
		return
	}

	// Sources are cleared even on error
	if _, err := s.Auth.HandleEvent(r.Context(), authstate.EventSignedOut{}); err != nil {
		h.logger.Warn("Sign out was not clean", "error", err)
	}

	render.Message(w, "Signed out")
}

func (h *AuthHandler) googleStart(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		render.ServiceError(w, "Google sign in is not configured", http.StatusNotFound)
		return
	}

	flow := oauth.NewFlow()
	http.SetCookie(w, flow.Cookie(h.secure))
	http.Redirect(w, r, h.google.AuthCodeURL(flow.State, flow.Verifier, flow.Nonce), http.StatusFound)
}

// Provider redirects the browser here. Whatever happens the browser is sent to a page
func (h *AuthHandler) googleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		render.ServiceError(w, "Google sign in is not configured", http.StatusNotFound)
		return
	}
	s, ok := requestSession(w, r)
	if !ok {
		return
	}
	http.SetCookie(w, oauth.ExpiredFlowCookie())

	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		h.logger.Info("Provider refused sign in", "error", providerErr)
		redirectToAuth(w, r, "oauth_denied")
		return
	}

	flow, err := oauth.FlowFromRequest(r, query.Get("state"))
	if err != nil {
		h.logger.Warn("OAuth callback state mismatch", "error", err)
		redirectToAuth(w, r, "oauth_state")
		return
	}

	providerSession, err := h.google.Exchange(r.Context(), query.Get("code"), flow.Verifier, flow.Nonce)
	if err != nil {
		code := "oauth_failed"
		if errors.Is(err, apperrors.ErrOAuthStateMismatch) {
			code = "oauth_state"
		}
		h.logger.Warn("OAuth exchange failed", "error", err)
		redirectToAuth(w, r, code)
		return
	}

	id, err := s.Auth.HandleEvent(r.Context(), authstate.EventSignedIn{Session: providerSession})
	if err != nil {
		h.logger.Error("Failed to sign in with provider session", "error", err)
		redirectToAuth(w, r, "oauth_failed")
		return
	}

	h.logger.Info("Signed in with Google", "kind", id.Kind.String())
	http.Redirect(w, r, authstate.PathDashboard, http.StatusSeeOther)
}

func redirectToAuth(w http.ResponseWriter, r *http.Request, code string) {
	target := authstate.PathAuth + "?" + url.Values{"error": {code}}.Encode()
	http.Redirect(w, r, target, http.StatusSeeOther)
}
