package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
)

// maxWebhookBody caps processor payloads read into memory.
const maxWebhookBody = 1 << 20

// HandleStripeWebhook verifies and applies one processor delivery. Replays
// of an already applied event are acknowledged so the processor stops
// retrying.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	event, err := s.paymentSvc.IngestWebhook(c.Request.Context(), paymentdomain.SourceStripe, payload, c.Request.Header)
	if event != nil {
		c.Set("webhook_event_type", event.Type)
	}
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
			c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
