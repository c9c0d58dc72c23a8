package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/models"
	"storefront/internal/service"
)

type googleLoginRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

type refreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

// googleLogin signs a user in with a Google ID token
func (h *Handler) googleLogin(c *gin.Context) {
	var req googleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid data",
			"details": gin.H{"id_token": []string{"This field is required."}},
		})
		return
	}

	result, err := h.auth.LoginWithGoogle(c.Request.Context(), req.IDToken)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid Google token"})
			return
		}
		h.respondError(c, err, "Authentication failed")
		return
	}

	c.JSON(http.StatusOK, result)
}

// refreshToken exchanges a refresh token for a new access token
func (h *Handler) refreshToken(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	access, err := h.auth.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		h.respondError(c, err, "Failed to refresh token")
		return
	}

	c.JSON(http.StatusOK, gin.H{"access": access})
}

// getProfile returns the caller and their customer profile
func (h *Handler) getProfile(c *gin.Context) {
	user, customer, err := h.auth.Profile(c.Request.Context(), c.GetInt64(ctxUserID))
	if err != nil {
		h.respondError(c, err, "Failed to load profile")
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "customer": customer})
}

// updateProfile changes the caller's contact details
func (h *Handler) updateProfile(c *gin.Context) {
	var req service.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	userID := c.GetInt64(ctxUserID)
	if _, err := h.customers.UpdateProfile(ctx, userID, &req); err != nil {
		h.respondError(c, err, "Failed to update profile")
		return
	}

	user, customer, err := h.auth.Profile(ctx, userID)
	if err != nil {
		h.respondError(c, err, "Failed to load profile")
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "customer": customer})
}

// logout blacklists the posted refresh token
func (h *Handler) logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid token"})
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.Refresh); err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid token"})
			return
		}
		h.respondError(c, err, "Failed to log out")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// listCustomers returns every customer with its user details
func (h *Handler) listCustomers(c *gin.Context) {
	customers, err := h.customers.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to list customers")
		return
	}

	c.JSON(http.StatusOK, customers)
}
