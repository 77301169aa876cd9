package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/app"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/aws"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/config"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/handlers"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/logging"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/metrics"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/payments"
)

func main() {
	cfg, err := config.Load()
	logger := logging.New("api", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if !cfg.RunLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewPrometheus(cfg.MetricsNamespace, reg)

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWSRegion, cfg.AWSEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init aws clients")
	}
	rec := recorder(cfg, prom, clients.CloudWatch, logger)
	gateway := payments.NewStripeGateway(cfg.StripeSecretKey, nil, logger)
	a := app.Wire(cfg, logger, clients, gateway, rec)

	hcfg := handlers.HandlerConfig{
		Engine:  a.Engine,
		Metrics: rec,
		Logger:  logger,
	}
	if cfg.StripeWebhookSecret != "" {
		hcfg.Verifier = payments.NewWebhookVerifier(cfg.StripeWebhookSecret)
	} else {
		logger.Warn().Msg("STRIPE_WEBHOOK_SECRET not set; /webhook will reject every delivery")
	}
	if cfg.WebhookMode == config.WebhookQueue {
		hcfg.Publisher = aws.NewPublisher(a.Clients.SQS, cfg.WebhookQueueURL)
	}

	r := handlers.NewRouter(hcfg, prom)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if cfg.RunLocal {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("webhook_mode", cfg.WebhookMode).Msg("running local server")
		if err := r.Run(addr); err != nil {
			logger.Fatal().Err(err).Msg("failed to run local server")
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

// recorder adds CloudWatch next to Prometheus when running in Lambda, where
// /metrics is never scraped.
func recorder(cfg config.Config, prom *metrics.Prometheus, cw aws.CloudWatchAPI, logger zerolog.Logger) metrics.Recorder {
	if cfg.RunLocal {
		return prom
	}
	return metrics.Fanout{prom, metrics.NewCloudWatch(cw, cfg.MetricsNamespace, logger)}
}
