package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	sensorSimulator "github.com/LeonardoBeccarini/road-conditions/internal/sensor-simulator"
)

func main() {
	addr := flag.String("addr", ":8081", "listen address")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	failEvery := flag.Int64("fail-every", 0, "answer 503 on every n-th request (0 disables)")
	empty := flag.Bool("empty", false, "answer with an empty body")
	noDot := flag.Bool("no-trailing-dot", false, "omit the trailing '.' on the last token")
	flag.Parse()

	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	gen := sensorSimulator.NewDataGenerator(*seed)
	gen.TrailingDot = !*noDot
	sim := sensorSimulator.NewSensorSimulator(gen, log)
	sim.FailEvery = *failEvery
	sim.Empty = *empty

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: *addr, Handler: sim.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", *addr).Info("sensor simulator serving " + sensorSimulator.DataPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("http server")
	}
}
