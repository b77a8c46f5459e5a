package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/campaign-dispatch/internal/app"
	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/service/campaign"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "optional YAML config file")
	mode := flag.String("mode", "scheduled", "sweep to run: scheduled or due")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		return 1
	}
	app.ConfigureLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("initialize sweep", "error", err)
		return 1
	}
	defer a.Close()

	var sweep func(context.Context) (*campaign.SweepReport, error)
	switch *mode {
	case "scheduled":
		sweep = a.Service.SweepScheduled
	case "due":
		sweep = a.Service.SweepDue
	default:
		logger.Error("unknown sweep mode", "mode", *mode)
		return 2
	}

	report, err := sweep(ctx)
	if err != nil {
		logger.Error("sweep failed", "mode", *mode, "error", err)
		return 1
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
	return 0
}
