// Package metrics records order-flow counters to Prometheus (API process) or
// CloudWatch (queue worker).
package metrics

// Settlement outcomes.
const (
	OutcomePaid      = "paid"
	OutcomeFailed    = "failed"
	OutcomeExpired   = "expired"
	OutcomeDuplicate = "duplicate"
	OutcomeLate      = "late"
)

// Recorder receives order-flow events.
type Recorder interface {
	OrderCreated()
	PaymentRequested(ok bool)
	Settled(outcome string)
	SettleConflict()
	WebhookReceived(eventType, result string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) OrderCreated()                  {}
func (Nop) PaymentRequested(bool)          {}
func (Nop) Settled(string)                 {}
func (Nop) SettleConflict()                {}
func (Nop) WebhookReceived(string, string) {}

// Fanout forwards every event to each recorder.
type Fanout []Recorder

func (f Fanout) OrderCreated() {
	for _, r := range f {
		r.OrderCreated()
	}
}

func (f Fanout) PaymentRequested(ok bool) {
	for _, r := range f {
		r.PaymentRequested(ok)
	}
}

func (f Fanout) Settled(outcome string) {
	for _, r := range f {
		r.Settled(outcome)
	}
}

func (f Fanout) SettleConflict() {
	for _, r := range f {
		r.SettleConflict()
	}
}

func (f Fanout) WebhookReceived(eventType, result string) {
	for _, r := range f {
		r.WebhookReceived(eventType, result)
	}
}
