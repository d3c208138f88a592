package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestGinMiddlewareCountsWebhookDeliveries(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m, err := NewHTTPMetricsWith(reg)
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.POST("/api/webhooks/stripe", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Equal(t, float64(2), testutil.ToFloat64(m.webhookDeliveries.WithLabelValues("200")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.requests.WithLabelValues("POST", "/api/webhooks/stripe", "200")))
}
