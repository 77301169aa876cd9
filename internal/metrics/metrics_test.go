package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Counters(t *testing.T) {
	p := NewPrometheus("orderflow", nil)
	p.OrderCreated()
	p.PaymentRequested(true)
	p.PaymentRequested(false)
	p.Settled(OutcomePaid)
	p.Settled(OutcomePaid)
	p.SettleConflict()
	p.WebhookReceived("payment_intent.succeeded", "processed")

	assert.Equal(t, 1.0, testutil.ToFloat64(p.orders))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.payments.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.settlements.WithLabelValues(OutcomePaid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.conflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.webhooks.WithLabelValues("payment_intent.succeeded", "processed")))
}

func TestPrometheus_MiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p := NewPrometheus("orderflow", nil)
	r := gin.New()
	r.Use(p.Middleware())
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(p.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Requests.WithLabelValues("/health", "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "orderflow_api_http_requests_total"))
}

type fakeCloudWatch struct {
	mu    sync.Mutex
	input []*cloudwatch.PutMetricDataInput
}

func (f *fakeCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = append(f.input, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestCloudWatch_PutsOneDatumPerEvent(t *testing.T) {
	cw := &fakeCloudWatch{}
	rec := Fanout{NewCloudWatch(cw, "OrderFlow", zerolog.Nop()), Nop{}}

	rec.Settled(OutcomeExpired)
	rec.WebhookReceived("payment_intent.payment_failed", "queued")

	require.Len(t, cw.input, 2)
	first := cw.input[0]
	assert.Equal(t, "OrderFlow", *first.Namespace)
	require.Len(t, first.MetricData, 1)
	assert.Equal(t, "Settlements", *first.MetricData[0].MetricName)
	require.Len(t, first.MetricData[0].Dimensions, 1)
	assert.Equal(t, OutcomeExpired, *first.MetricData[0].Dimensions[0].Value)
	assert.Len(t, cw.input[1].MetricData[0].Dimensions, 2)
}
