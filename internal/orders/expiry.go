package orders

import "time"

// DefaultExpiryWindow is how long an order may stay pending before a reader
// flips it to failed.
const DefaultExpiryWindow = 30 * time.Minute

// ShouldExpire reports whether a pending order has outlived the window.
func ShouldExpire(o Order, now time.Time, window time.Duration) bool {
	if window <= 0 {
		window = DefaultExpiryWindow
	}
	if o.Status != StatusPending || o.CreatedAt.IsZero() {
		return false
	}
	return now.Sub(o.CreatedAt) >= window
}
