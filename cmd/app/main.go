package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"FinSignal/internal/di"
	"FinSignal/pkg/config"
	"FinSignal/pkg/server"
	"FinSignal/pkg/util"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	mode := flag.String("mode", server.ModeCompute, "compute, backfill, trend, calibrate or consume")
	jobID := flag.String("job", "", "job id (derived from the arguments when empty)")
	profile := flag.String("profile", "", "scoring profile id")
	entities := flag.String("entities", "", "comma separated entity ids")
	from := flag.String("from", "", "start timestamp (RFC3339, YYYY-MM-DD or unix)")
	to := flag.String("to", "", "end timestamp")
	step := flag.String("step", "", "timestamp step: 1d, 1w or 1mo")
	restart := flag.Bool("restart", false, "ignore any saved checkpoint")
	flag.Parse()

	opts := server.Options{
		Mode:    *mode,
		JobID:   *jobID,
		Profile: *profile,
		Step:    *step,
		Restart: *restart,
		From:    mustTime("from", *from),
		To:      mustTime("to", *to),
	}
	if *entities != "" {
		opts.Entities = strings.Split(*entities, ",")
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = app.Run(ctx, opts)
	stop()
	cleanup()
	if err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

func mustTime(name, v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, ok := util.ParseTime(v)
	if !ok {
		log.Fatalf("invalid -%s %q", name, v)
	}
	return t
}
