package election

import (
	"errors"
	"net/http"
	"time"

	"CampusVote/internal/auth"
	"CampusVote/internal/otp"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RequestVoteOTP(c echo.Context) error {
	var req RequestOTPRequest
	if err := c.Bind(&req); err != nil {
		return rejection(c, ErrValidation)
	}
	voterID, err := primitive.ObjectIDFromHex(req.VoterID)
	if err != nil {
		return rejection(c, ErrValidation)
	}

	if err := h.service.RequestVoteOTP(c.Request().Context(), voterID); err != nil {
		return rejection(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "A voting code has been emailed to you",
	})
}

func (h *Handler) VerifyVoteOTP(c echo.Context) error {
	var req VerifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return rejection(c, ErrValidation)
	}
	voterID, err := primitive.ObjectIDFromHex(req.VoterID)
	if err != nil {
		return rejection(c, ErrValidation)
	}

	if err := h.service.VerifyVoteOTP(c.Request().Context(), voterID, req.Code); err != nil {
		return rejection(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handler) Vote(c echo.Context) error {
	var req VoteRequest
	if err := c.Bind(&req); err != nil {
		return rejection(c, ErrValidation)
	}
	voterID, err := primitive.ObjectIDFromHex(req.VoterID)
	if err != nil {
		return rejection(c, ErrValidation)
	}
	candidateID, err := primitive.ObjectIDFromHex(req.CandidateID)
	if err != nil {
		return rejection(c, ErrValidation)
	}

	if err := h.service.CastBallot(c.Request().Context(), voterID, candidateID, req.OTPCode); err != nil {
		return rejection(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Your vote has been recorded",
	})
}

func (h *Handler) Standings(c echo.Context) error {
	standings, err := h.service.Standings(c.Request().Context())
	if err != nil {
		return rejection(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"standings": standings})
}

func (h *Handler) AuditVotes(c echo.Context) error {
	votes, err := h.service.AuditVotes(c.Request().Context())
	if err != nil {
		return rejection(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"votes": votes})
}

func (h *Handler) AssignPositions(c echo.Context) error {
	assignments, err := h.service.AssignPositions(c.Request().Context())
	if err != nil {
		return rejection(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"assignments": assignments})
}

func (h *Handler) GetSettings(c echo.Context) error {
	settings, err := h.service.GetSettings(c.Request().Context())
	if err != nil {
		return rejection(c, err)
	}
	return c.JSON(http.StatusOK, settings)
}

func (h *Handler) UpdateSettings(c echo.Context) error {
	var req struct {
		Title     string    `json:"title"`
		StartDate time.Time `json:"start_date"`
		EndDate   time.Time `json:"end_date"`
		IsActive  bool      `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		return rejection(c, ErrValidation)
	}
	settings := &Settings{
		Title:     req.Title,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		IsActive:  req.IsActive,
	}
	if err := h.service.UpdateSettings(c.Request().Context(), settings); err != nil {
		return rejection(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handler) SetCandidateApproval(c echo.Context) error {
	candidateID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return rejection(c, ErrValidation)
	}
	var req ApprovalRequest
	if err := c.Bind(&req); err != nil {
		return rejection(c, ErrValidation)
	}

	if err := h.service.SetCandidateApproval(c.Request().Context(), candidateID, auth.ApprovalStatus(req.Status)); err != nil {
		return rejection(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

// rejection converts a typed failure into a stable reason code plus message.
// Expected conditions (already voted, closed window, bad code) are rejections
// with 4xx statuses, never 5xx.
func rejection(c echo.Context, err error) error {
	var rateErr *otp.RateLimitError
	if errors.As(err, &rateErr) {
		return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
			"success":             false,
			"reason":              "rate_limited",
			"message":             rateErr.Error(),
			"retry_after_minutes": rateErr.RetryAfterMinutes,
		})
	}

	status := http.StatusInternalServerError
	reason := "internal"
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, otp.ErrValidation):
		status, reason = http.StatusBadRequest, "validation"
	case errors.Is(err, ErrNotFound):
		status, reason = http.StatusNotFound, "not_found"
	case errors.Is(err, ErrNotStarted):
		status, reason = http.StatusForbidden, "not_started"
	case errors.Is(err, ErrEnded):
		status, reason = http.StatusForbidden, "ended"
	case errors.Is(err, ErrDisabled):
		status, reason = http.StatusForbidden, "disabled"
	case errors.Is(err, ErrAlreadyVoted):
		status, reason = http.StatusConflict, "already_voted"
	case errors.Is(err, otp.ErrNoActiveCode):
		status, reason = http.StatusUnauthorized, "otp_no_active_code"
	case errors.Is(err, otp.ErrExpired):
		status, reason = http.StatusUnauthorized, "otp_expired"
	case errors.Is(err, otp.ErrIncorrect):
		status, reason = http.StatusUnauthorized, "otp_incorrect"
	case errors.Is(err, otp.ErrNotifierFailure):
		status, reason = http.StatusBadGateway, "notifier_failure"
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal error"
	}
	return c.JSON(status, map[string]interface{}{
		"success": false,
		"reason":  reason,
		"message": message,
	})
}
