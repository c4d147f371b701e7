// Command authapi serves one auth API handler, selected by HANDLER.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/mikecbrant/distro-backend/internal/awssdk"
	"github.com/mikecbrant/distro-backend/internal/config"
	"github.com/mikecbrant/distro-backend/internal/utils/logging"
	"github.com/mikecbrant/distro-backend/internal/wiring"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, logging.Fields{"app": cfg.AppName, "handler": cfg.Handler})
	if err := cfg.Validate(config.ScopeAuthAPI); err != nil {
		logger.Error("startup.config.invalid", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	// Remote calls are made once; failures go straight back to the caller.
	awsCfg, err := awssdk.LoadSingleAttempt(context.Background(), cfg.Region)
	if err != nil {
		logger.Error("startup.aws.failed", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	h, err := wiring.AuthAPI(cfg, awsCfg, logger)
	if err != nil {
		logger.Error("startup.wiring.failed", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	fn, err := h.Dispatch(cfg.Handler)
	if err != nil {
		logger.Error("startup.handler.unknown", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	lambda.Start(fn)
}
