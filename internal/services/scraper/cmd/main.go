package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/LeonardoBeccarini/road-conditions/internal/config"
	"github.com/LeonardoBeccarini/road-conditions/internal/model"
	"github.com/LeonardoBeccarini/road-conditions/internal/services/inventory"
	"github.com/LeonardoBeccarini/road-conditions/internal/services/scraper"
	"github.com/LeonardoBeccarini/road-conditions/pkg/logging"
	"github.com/LeonardoBeccarini/road-conditions/pkg/postgrest"
	"github.com/LeonardoBeccarini/road-conditions/pkg/rabbitmq"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log, err := logging.New(cfg.Logging("scraper.log", "debug"))
	if err != nil {
		logrus.WithError(err).Fatal("init logging")
	}
	if err := cfg.ValidateScraper(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	schema, err := model.LookupSchema(cfg.Scraper.Schema)
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Without an inventory there is nothing to poll.
	sensors, err := inventory.New(cfg.Inventory, log).Sensors(ctx)
	if err != nil {
		log.WithError(err).Fatal("inventory unavailable")
	}

	// One client for every agent; per request timeouts come from the agent.
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        len(sensors) + 16,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	sink := postgrest.New(postgrest.Config{
		Endpoint:        cfg.Sink.Endpoint,
		Token:           cfg.Sink.Token,
		BreakerFailures: cfg.Sink.BreakerFailures,
		BreakerOpenFor:  cfg.Sink.BreakerOpenFor,
	}, httpClient)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := scraper.NewMetrics(reg)

	deps := scraper.Deps{
		Client:  httpClient,
		Sink:    scraper.NewSinkUploader(sink),
		Mirrors: mirrors(ctx, cfg, log),
		Logger:  log,
		Metrics: metrics,
	}
	fleet := scraper.NewFleet(sensors, scraper.AgentConfig{
		Interval: cfg.Scraper.Interval,
		Timeout:  cfg.Scraper.Timeout,
		Schema:   schema,
		Retry: scraper.RetryPolicy{
			MaxAttempts:    cfg.Scraper.MaxAttempts,
			InitialBackoff: cfg.Scraper.BackoffInitial,
			MaxBackoff:     cfg.Scraper.BackoffMax,
			Classify:       scraper.ClassifyFetchError,
		},
	}, deps)
	if len(fleet.Agents()) == 0 {
		log.Fatal("inventory returned no pollable sensors")
	}

	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           scraper.NewHTTPMux(fleet, sink.State, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.WithField("addr", srv.Addr).Info("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server stopped")
		}
	}()

	if cfg.Metrics.GRPCHealthAddr != "" {
		hs, err := scraper.ServeGRPCHealth(ctx, cfg.Metrics.GRPCHealthAddr, log)
		if err != nil {
			log.WithError(err).Error("grpc health disabled")
		} else {
			scraper.SetServing(hs)
		}
	}

	fleet.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("scraper stopped")
}

// mirrors connects the optional secondary destinations. A mirror that cannot
// be reached at startup is skipped.
func mirrors(ctx context.Context, cfg *config.Config, log *logrus.Logger) []scraper.Mirror {
	var out []scraper.Mirror
	if cfg.MQTT.Enabled() {
		client, err := rabbitmq.Connect(ctx, rabbitmq.Config{
			Host:     cfg.MQTT.Host,
			Port:     cfg.MQTT.Port,
			User:     cfg.MQTT.User,
			Password: cfg.MQTT.Password,
			ClientID: cfg.MQTT.ClientID,
		}, log)
		if err != nil {
			log.WithError(err).Warn("mqtt mirror disabled")
		} else {
			out = append(out, scraper.NewMQTTMirror(rabbitmq.NewPublisher(client, cfg.MQTT.TopicPrefix)))
		}
	}
	if cfg.Influx.Enabled() {
		client := influxdb2.NewClient(cfg.Influx.URL, cfg.Influx.Token)
		go func() {
			<-ctx.Done()
			client.Close()
		}()
		w := client.WriteAPIBlocking(cfg.Influx.Org, cfg.Influx.Bucket)
		out = append(out, scraper.NewInfluxMirror(w, cfg.Influx.Measurement))
		log.WithField("url", cfg.Influx.URL).Info("influx mirror enabled")
	}
	return out
}
