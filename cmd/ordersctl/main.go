package main

import (
	"context"
	"fmt"
	"os"

	"github.com/imrishuroy/go-promptpay-orderflow/internal/app"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/config"
	"github.com/imrishuroy/go-promptpay-orderflow/internal/logging"
)

var Version = "dev"

func main() {
	build := func(ctx context.Context) (*app.App, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		logger := logging.New("ordersctl", cfg.LogLevel, "console")
		return app.New(ctx, cfg, logger, nil)
	}

	if err := newRootCmd(build).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
