package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldExpire(t *testing.T) {
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	o := sampleOrder("user-1", created)

	assert.False(t, ShouldExpire(o, created.Add(29*time.Minute), DefaultExpiryWindow))
	assert.True(t, ShouldExpire(o, created.Add(30*time.Minute), DefaultExpiryWindow))
	assert.True(t, ShouldExpire(o, created.Add(31*time.Minute), DefaultExpiryWindow))
	assert.True(t, ShouldExpire(o, created.Add(31*time.Minute), 0), "zero window falls back to default")
	assert.True(t, ShouldExpire(o, created.Add(6*time.Minute), 5*time.Minute))
}

func TestShouldExpire_OnlyPendingWithTimestamp(t *testing.T) {
	created := time.Now().Add(-time.Hour)

	paid := sampleOrder("user-1", created)
	paid.Status = StatusPaid
	assert.False(t, ShouldExpire(paid, time.Now(), DefaultExpiryWindow))

	undated := sampleOrder("user-1", time.Time{})
	assert.False(t, ShouldExpire(undated, time.Now(), DefaultExpiryWindow))
}
