package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/seatly/internal/subscription/domain"
)

func (s *Server) ListSubscriptions(c *gin.Context) {
	items, err := s.subscriptionSvc.ListSubscriptions(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetSubscription(c *gin.Context) {
	item, err := s.subscriptionSvc.GetSubscription(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

// UpdateSubscription applies one customer action: change_quantity, cancel
// or resume.
func (s *Server) UpdateSubscription(c *gin.Context) {
	var req subscriptiondomain.UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("action", "invalid_action", "action must be change_quantity, cancel or resume"))
		return
	}

	action, err := req.ToAction()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.subscriptionSvc.UpdateSubscription(c.Request.Context(), strings.TrimSpace(c.Param("id")), action)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListEntitlements(c *gin.Context) {
	items, err := s.subscriptionSvc.ListEntitlements(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) AssignSeat(c *gin.Context) {
	var req subscriptiondomain.AssignSeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("email", "invalid_email", "email is required"))
		return
	}

	item, err := s.subscriptionSvc.AssignSeat(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) UnassignSeat(c *gin.Context) {
	item, err := s.subscriptionSvc.UnassignSeat(
		c.Request.Context(),
		strings.TrimSpace(c.Param("id")),
		strings.TrimSpace(c.Param("entitlementId")),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) AdminListSubscriptions(c *gin.Context) {
	var req subscriptiondomain.ListSubscriptionRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.AdminListSubscriptions(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Subscriptions, "page_info": resp.PageInfo})
}

func (s *Server) AdminUpdateSubscription(c *gin.Context) {
	var req subscriptiondomain.AdminUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.subscriptionSvc.AdminUpdateSubscription(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) AdminCancelSubscription(c *gin.Context) {
	item, err := s.subscriptionSvc.AdminCancelSubscription(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}
