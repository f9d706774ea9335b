package auth

import (
	"errors"
	"net/http"

	"CampusVote/internal/otp"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AuthHandler struct {
	service *UserService
}

func NewAuthHandler(service *UserService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if err := h.service.RegisterUser(c.Request().Context(), req); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, map[string]string{"message": "User registered successfully"})
}

func (h *AuthHandler) Login(c echo.Context) error {
	var cred Credential
	if err := c.Bind(&cred); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	token, err := h.service.AuthenticateUser(c.Request().Context(), cred)
	if err != nil {
		if errors.Is(err, ErrOTPRequired) {
			return c.JSON(http.StatusOK, map[string]interface{}{
				"otp_required": true,
				"message":      "A one-time code has been emailed to you",
			})
		}
		return h.authError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (h *AuthHandler) VerifyLoginOTP(c echo.Context) error {
	var req VerifyLoginOTPRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	token, err := h.service.VerifyLoginOTP(c.Request().Context(), req.Identifier, req.Code)
	if err != nil {
		return h.authError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := h.service.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		return h.authError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Password reset code sent"})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := h.service.ResetPassword(c.Request().Context(), req); err != nil {
		return h.authError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Password successfully reset"})
}

func (h *AuthHandler) Profile(c echo.Context) error {
	claims, ok := c.Get("user").(*JWTClaims)
	if !ok || claims == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	userID, err := primitive.ObjectIDFromHex(claims.Subject)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}
	user, err := h.service.repo.FindByID(c.Request().Context(), userID)
	if err != nil || user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "User not found"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"_id":        user.ID.Hex(),
		"student_id": user.StudentID,
		"name":       user.Name,
		"email":      user.Email,
		"role":       user.Role,
		"has_voted":  user.HasVoted,
	})
}

// authError maps service failures onto statuses without leaking which part of
// a credential was wrong.
func (h *AuthHandler) authError(c echo.Context, err error) error {
	var rateErr *otp.RateLimitError
	switch {
	case errors.As(err, &rateErr):
		return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
			"error":               rateErr.Error(),
			"retry_after_minutes": rateErr.RetryAfterMinutes,
		})
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrNotFound),
		errors.Is(err, otp.ErrNoActiveCode),
		errors.Is(err, otp.ErrExpired),
		errors.Is(err, otp.ErrIncorrect),
		errors.Is(err, otp.ErrValidation):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case errors.Is(err, otp.ErrNotifierFailure):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to send email, try again"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal error"})
	}
}
