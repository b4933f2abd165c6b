package handlers

import (
	"net/http"
	"time"

	"github.com/nkiryanov/eazynet/internal/handlers/render"
	"github.com/nkiryanov/eazynet/internal/logger"
	"github.com/nkiryanov/eazynet/internal/models"
	"github.com/nkiryanov/eazynet/internal/service/authstate"
)

// PagesHandler serves data of the account pages. Guard middleware has already mounted the
// session and redirected visitors who may not see the page.
type PagesHandler struct {
	logger logger.Logger
}

type dashboardPage struct {
	User   *models.User `json:"user"`
	Source string       `json:"source"`
	Tier   models.Tier  `json:"tier"`

	// Missing for provider only sessions or if the backend failed
	Subscription *subscriptionResponse `json:"subscription,omitempty"`
}

func (h *PagesHandler) dashboard(w http.ResponseWriter, r *http.Request) {
	s, ok := requestSession(w, r)
	if !ok {
		return
	}
	id := s.Auth.Identity()

	page := dashboardPage{User: id.User, Source: id.Kind.String()}
	if id.User != nil {
		page.Tier = id.User.Tier()
	}

	// Subscription is a secondary panel: failure does not break the page
	if backendSignedIn(id) {
		sub, err := s.Client.GetSubscription(r.Context())
		if err != nil {
			h.logger.Warn("Dashboard without subscription", "error", err)
		} else {
			resp := newSubscriptionResponse(sub, time.Now())
			page.Subscription = &resp
			page.Tier = sub.Tier()
		}
	}

	render.JSON(w, page)
}

func (h *PagesHandler) profile(w http.ResponseWriter, r *http.Request) {
	type profilePage struct {
		User *models.User `json:"user"`

		// Profile and password can be edited only with a backend session
		Editable bool `json:"editable"`
	}

	s, ok := requestSession(w, r)
	if !ok {
		return
	}
	id := s.Auth.Identity()

	render.JSON(w, profilePage{User: id.User, Editable: backendSignedIn(id)})
}

func (h *PagesHandler) subscription(w http.ResponseWriter, r *http.Request) {
	s, ok := requestSession(w, r)
	if !ok {
		return
	}

	if !backendSignedIn(s.Auth.Identity()) {
		render.JSON(w, newSubscriptionResponse(models.Subscription{}, time.Now()))
		return
	}

	sub, err := s.Client.GetSubscription(r.Context())
	if err != nil {
		renderClientError(w, err, h.logger)
		return
	}
	render.JSON(w, newSubscriptionResponse(sub, time.Now()))
}

func (h *PagesHandler) auth(w http.ResponseWriter, r *http.Request) {
	type authPage struct {
		Error     string   `json:"error,omitempty"`
		Providers []string `json:"providers"`
		Redirect  string   `json:"redirect"`
	}

	render.JSON(w, authPage{
		Error:     r.URL.Query().Get("error"),
		Providers: []string{models.ProviderGoogle},
		Redirect:  authstate.PathDashboard,
	})
}
