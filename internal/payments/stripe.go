package payments

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

// StripeGateway implements Gateway with Stripe PaymentIntents.
type StripeGateway struct {
	intents paymentintent.Client
	logger  zerolog.Logger
}

// NewStripeGateway returns a gateway using the given backend. A nil backend
// talks to the live Stripe API.
func NewStripeGateway(secretKey string, backend stripe.Backend, logger zerolog.Logger) *StripeGateway {
	if backend == nil {
		backend = NewBackend("", logger)
	}
	return &StripeGateway{
		intents: paymentintent.Client{B: backend, Key: secretKey},
		logger:  logger.With().Str("component", "stripe").Logger(),
	}
}

// NewBackend builds a Stripe API backend that logs through zerolog. An empty
// url keeps Stripe's default endpoint.
func NewBackend(url string, logger zerolog.Logger) stripe.Backend {
	cfg := &stripe.BackendConfig{
		LeveledLogger:     stripeLogger{l: logger.With().Str("component", "stripe-client").Logger()},
		MaxNetworkRetries: stripe.Int64(2),
	}
	if url != "" {
		cfg.URL = stripe.String(url)
	}
	return stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
}

// CreateIntent creates and confirms a PromptPay intent so the QR is available
// immediately.
func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.AmountMinor),
		Currency:           stripe.String(req.Currency),
		PaymentMethodTypes: stripe.StringSlice([]string{string(stripe.PaymentMethodTypePromptPay)}),
		PaymentMethodData: &stripe.PaymentIntentPaymentMethodDataParams{
			Type: stripe.String(string(stripe.PaymentMethodTypePromptPay)),
			BillingDetails: &stripe.PaymentIntentPaymentMethodDataBillingDetailsParams{
				Email: stripe.String(req.Email),
			},
		},
		Confirm: stripe.Bool(true),
	}
	params.Context = ctx
	for k, v := range req.Metadata.Map() {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		g.logger.Error().Err(err).Str("order_id", req.Metadata.OrderID).Msg("create payment intent failed")
		return nil, gatewayError("create intent", err)
	}
	g.logger.Info().
		Str("payment_intent_id", pi.ID).
		Str("order_id", req.Metadata.OrderID).
		Str("status", string(pi.Status)).
		Msg("payment intent created")
	return intentFrom(pi), nil
}

// RetrieveIntent reads the intent's current state from Stripe.
func (g *StripeGateway) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.intents.Get(id, params)
	if err != nil {
		return nil, gatewayError("retrieve intent", err)
	}
	return intentFrom(pi), nil
}

func intentFrom(pi *stripe.PaymentIntent) *Intent {
	in := &Intent{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		Status:         string(pi.Status),
		AmountMinor:    pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		Metadata:       MetadataFrom(pi.Metadata),
		PaymentMethod:  paymentMethodOf(pi),
	}
	if pi.LastPaymentError != nil {
		in.FailureMessage = pi.LastPaymentError.Msg
	}
	if pi.NextAction != nil && pi.NextAction.PromptPayDisplayQRCode != nil {
		qr := pi.NextAction.PromptPayDisplayQRCode
		in.QR = &QRCode{Data: qr.Data, HostedURL: qr.HostedInstructionsURL}
		var raw rawQR
		if pi.LastResponse != nil {
			raw = parseRawQR(pi.LastResponse.RawJSON)
		}
		in.QR.ImageURL = qr.ImageURLPNG
		if in.QR.ImageURL == "" {
			in.QR.ImageURL = qr.ImageURLSVG
		}
		if in.QR.ImageURL == "" {
			in.QR.ImageURL = raw.Downloadable.URL
		}
		switch {
		case raw.ImageType != "":
			in.QR.ImageType = raw.ImageType
		case in.QR.ImageURL != "":
			in.QR.ImageType = "url"
		default:
			in.QR.ImageType = "png"
		}
		if raw.ExpiresAt != 0 {
			t := time.Unix(raw.ExpiresAt, 0).UTC()
			in.QR.ExpiresAt = &t
		}
	}
	return in
}

func paymentMethodOf(pi *stripe.PaymentIntent) string {
	if pi.PaymentMethod != nil && pi.PaymentMethod.Type != "" {
		return string(pi.PaymentMethod.Type)
	}
	if len(pi.PaymentMethodTypes) > 0 {
		return pi.PaymentMethodTypes[0]
	}
	return ""
}

// rawQR holds the next_action.promptpay_display_qr_code fields that newer API
// versions return but the typed struct does not carry.
type rawQR struct {
	ExpiresAt    int64  `json:"expires_at"`
	ImageType    string `json:"image_type"`
	Downloadable struct {
		URL string `json:"url"`
	} `json:"downloadable"`
}

func parseRawQR(raw []byte) rawQR {
	var body struct {
		NextAction struct {
			QR rawQR `json:"promptpay_display_qr_code"`
		} `json:"next_action"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &body) != nil {
		return rawQR{}
	}
	return body.NextAction.QR
}

type stripeLogger struct{ l zerolog.Logger }

func (s stripeLogger) Debugf(format string, v ...interface{}) { s.l.Debug().Msgf(format, v...) }
func (s stripeLogger) Infof(format string, v ...interface{})  { s.l.Info().Msgf(format, v...) }
func (s stripeLogger) Warnf(format string, v ...interface{})  { s.l.Warn().Msgf(format, v...) }
func (s stripeLogger) Errorf(format string, v ...interface{}) { s.l.Error().Msgf(format, v...) }
