// Command gql serves the weather GraphQL route.
package main

import (
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

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
	logger := logging.New(cfg.LogLevel, logging.Fields{"app": cfg.AppName, "handler": "gql"})
	if err := cfg.Validate(config.ScopeGQL); err != nil {
		logger.Error("startup.config.invalid", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	if cfg.WeatherAPIKey == "" {
		logger.Warn("startup.weather.no_key", nil)
	}
	h, err := wiring.GQL(cfg, logger)
	if err != nil {
		logger.Error("startup.wiring.failed", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	lambda.Start(h.Handle)
}
