package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/app"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/aws"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/config"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/logging"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/metrics"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/payments"
)

func main() {
	cfg, err := config.Load()
	logger := logging.New("worker", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWSRegion, cfg.AWSEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init aws clients")
	}
	rec := metrics.NewCloudWatch(clients.CloudWatch, cfg.MetricsNamespace, logger)
	gateway := payments.NewStripeGateway(cfg.StripeSecretKey, nil, logger)
	a := app.Wire(cfg, logger, clients, gateway, rec)

	p := NewProcessor(a.Engine, a.Idempotency, logger)

	// If RUN_LOCAL=true, process a single event body from LOCAL_SQS_BODY.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			logger.Fatal().Msg("LOCAL_SQS_BODY is required when RUN_LOCAL=true")
		}
		resp, _ := p.Handle(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if len(resp.BatchItemFailures) > 0 {
			logger.Fatal().Msg("local event failed")
		}
		return
	}

	lambda.Start(p.Handle)
}
