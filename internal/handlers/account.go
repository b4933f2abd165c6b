package handlers

import (
	"net/http"
	"time"

	"github.com/nkiryanov/eazynet/internal/handlers/middleware"
	"github.com/nkiryanov/eazynet/internal/handlers/render"
	"github.com/nkiryanov/eazynet/internal/logger"
	"github.com/nkiryanov/eazynet/internal/models"
	"github.com/nkiryanov/eazynet/internal/service/authstate"
)

type AccountHandler struct {
	refresher middleware.Refresher
	logger    logger.Logger
}

type meResponse struct {
	Authenticated bool         `json:"authenticated"`
	Source        string       `json:"source"`
	User          *models.User `json:"user,omitempty"`
	Tier          models.Tier  `json:"tier,omitempty"`
}

// Who is signed in, from whichever source won
func (h *AccountHandler) me(w http.ResponseWriter, r *http.Request) {
	s, ok := requestSession(w, r)
	if !ok {
		return
	}

	id := middleware.Mount(r.Context(), s, h.refresher, h.logger)

	resp := meResponse{
		Authenticated: id.Authenticated(),
		Source:        id.Kind.String(),
		User:          id.User,
	}
	if id.User != nil {
		resp.Tier = id.User.Tier()
	}
	render.JSON(w, resp)
}

func (h *AccountHandler) getProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := requestSession(w, r)
	if !ok {
		return
	}

	user, err := s.Client.GetProfile(r.Context())
	if err != nil {
		renderClientError(w, err, h.logger)
		return
	}
	render.JSON(w, user)
}

func (h *AccountHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	type UpdateProfileRequest struct {
		Name  string `json:"name" validate:"omitempty,max=100"`
		Email string `json:"email" validate:"omitempty,email"`
	}

	data, err := render.BindAndValidate[UpdateProfileRequest](w, r)
	if err != nil {
		return
	}
	s, ok := requestSession(w, r)
	if !ok {
		return
	}

	user, err := s.Client.UpdateProfile(r.Context(), models.ProfileUpdate{Name: data.Name, Email: data.Email})
	if err != nil {
		renderClientError(w, err, h.logger)
		return
	}
	render.JSON(w, user)
}

func (h *AccountHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	type ChangePasswordRequest struct {
		CurrentPassword string `json:"currentPassword" validate:"required"`
		NewPassword     string `json:"newPassword" validate:"required,password,nefield=CurrentPassword"`
	}

	data, err := render.BindAndValidate[ChangePasswordRequest](w, r)
	if err != nil {
		return
	}
	s, ok := requestSession(w, r)
	if !ok {
		return
	}

	err = s.Client.ChangePassword(r.Context(), models.PasswordChange{
		CurrentPassword: data.CurrentPassword,
		NewPassword:     data.NewPassword,
	})
	if err != nil {
		renderClientError(w, err, h.logger)
		return
	}
	render.Message(w, "Password changed")
}

func (h *AccountHandler) interestedInPro(w http.ResponseWriter, r *http.Request) {
	type InterestedRequest struct {
		InterestedInPro *bool `json:"interestedInPro" validate:"required"`
	}

	data, err := render.BindAndValidate[InterestedRequest](w, r)
	if err != nil {
		return
	}
	s, ok := requestSession(w, r)
	if !ok {
		return
	}

	if err := s.Client.MarkInterestedInPro(r.Context(), *data.InterestedInPro); err != nil {
		renderClientError(w, err, h.logger)
		return
	}
	render.Message(w, "Preference saved")
}

type subscriptionResponse struct {
	Subscription  models.Subscription `json:"subscription"`
	Tier          models.Tier         `json:"tier"`
	Status        string              `json:"status"`
	TrialDaysLeft int                 `json:"trialDaysLeft"`
	Plans         []models.Plan       `json:"plans"`
}

func newSubscriptionResponse(sub models.Subscription, now time.Time) subscriptionResponse {
	return subscriptionResponse{
		Subscription:  sub,
		Tier:          sub.Tier(),
		Status:        sub.Status.String(),
		TrialDaysLeft: sub.TrialDaysLeft(now),
		Plans:         models.Plans(),
	}
}

func (h *AccountHandler) getSubscription(w http.ResponseWriter, r *http.Request) {
	s, ok := requestSession(w, r)
	if !ok {
		return
	}

	sub, err := s.Client.GetSubscription(r.Context())
	if err != nil {
		renderClientError(w, err, h.logger)
		return
	}
	render.JSON(w, newSubscriptionResponse(sub, time.Now()))
}

func (h *AccountHandler) startTrial(w http.ResponseWriter, r *http.Request) {
	s, ok := requestSession(w, r)
	if !ok {
		return
	}

	sub, err := s.Client.StartTrial(r.Context())
	if err != nil {
		renderClientError(w, err, h.logger)
		return
	}
	u, _ := s.Client.UserFromToken()
	h.logger.Info("Trial started", "user_id", u.ID)
	render.JSON(w, newSubscriptionResponse(sub, time.Now()))
}

// Signed in through the backend, not just the provider
func backendSignedIn(id authstate.Identity) bool {
	return id.Kind == authstate.KindBackend
}
