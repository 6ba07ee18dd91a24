package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/LeonardoBeccarini/road-conditions/internal/config"
	"github.com/LeonardoBeccarini/road-conditions/internal/services/relay"
	"github.com/LeonardoBeccarini/road-conditions/pkg/logging"
	"github.com/LeonardoBeccarini/road-conditions/pkg/postgrest"
	"github.com/LeonardoBeccarini/road-conditions/pkg/socrata"
)

func main() {
	var date string
	const usage = "ISO-8601 date used to query records; rolled back by the safety margin"
	flag.StringVar(&date, "date", "", usage)
	flag.StringVar(&date, "d", "", usage+" (shorthand)")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log, err := logging.New(cfg.Logging("relay.log", "info"))
	if err != nil {
		logrus.WithError(err).Fatal("init logging")
	}
	if err := cfg.ValidateRelay(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	wm, err := relay.ParseWatermark(date)
	if err != nil {
		log.WithError(err).Fatal("invalid --date")
	}
	loc, err := time.LoadLocation(cfg.Relay.Timezone)
	if err != nil {
		log.WithError(err).Fatal("invalid timezone")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink := postgrest.New(postgrest.Config{Endpoint: cfg.Sink.Endpoint, Token: cfg.Sink.Token}, nil)
	portal := socrata.New(socrata.Config{
		Domain:     cfg.Portal.Domain,
		ResourceID: cfg.Portal.ResourceID,
		AppToken:   cfg.Portal.AppToken,
		KeyID:      cfg.Portal.KeyID,
		KeySecret:  cfg.Portal.KeySecret,
		Timeout:    cfg.Portal.Timeout,
	})

	var metrics *relay.Metrics
	if cfg.Relay.PushgatewayURL != "" {
		metrics = relay.NewMetrics()
	}
	r := relay.New(relay.Config{
		Rollback:  cfg.Relay.Rollback,
		ChunkSize: cfg.Relay.ChunkSize,
		Location:  loc,
	}, sink, portal, log, metrics)

	log.WithField("date", wm.String()).Info("relay starting")
	_, runErr := r.Run(ctx, wm)

	if metrics != nil {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := metrics.Push(pushCtx, cfg.Relay.PushgatewayURL); err != nil {
			log.WithError(err).Warn("pushgateway push failed")
		}
		cancel()
	}
	if runErr != nil {
		os.Exit(1)
	}
}
