package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/semmidev/mongosnap/internal/app"
	"github.com/semmidev/mongosnap/internal/config"
	"github.com/semmidev/mongosnap/internal/usecase"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
	exitLocked  = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "/etc/mongosnap/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("Error: load config: %v", err)
		return exitConfig
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Printf("Error: initialize app: %v", err)
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			return exitConfig
		}
		return exitFailure
	}
	defer application.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := application.Run(ctx)
	if err != nil {
		log.Printf("Error: %s: %v", res.Outcome, err)
	}
	return exitCode(res.Outcome)
}

func exitCode(outcome usecase.Outcome) int {
	switch outcome {
	case usecase.OutcomeSuccess, usecase.OutcomeIneligible:
		return exitOK
	case usecase.OutcomeLocked:
		return exitLocked
	default:
		return exitFailure
	}
}
