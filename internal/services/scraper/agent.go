package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/LeonardoBeccarini/road-conditions/internal/model"
)

// maxBody caps what is read from a sensor; a real payload is one short line.
const maxBody = 64 << 10

type State int32

const (
	StateIdle State = iota
	StateFetching
	StateParsing
	StateUploading
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateParsing:
		return "parsing"
	case StateUploading:
		return "uploading"
	case StateSleeping:
		return "sleeping"
	default:
		return "idle"
	}
}

// RecordSink is the primary destination of decoded records.
type RecordSink interface {
	Upload(ctx context.Context, rec model.SensorRecord) error
}

// Mirror is a secondary destination. Its failures never affect the agent.
type Mirror interface {
	Name() string
	Mirror(ctx context.Context, rec model.SensorRecord) error
}

type AgentConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	Schema   model.Schema
	Retry    RetryPolicy
}

// Deps are shared by every agent of a fleet.
type Deps struct {
	Client  *http.Client
	Sink    RecordSink
	Mirrors []Mirror
	Logger  *logrus.Logger
	Metrics *Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// CycleResult summarizes one fetch-parse-upload pass.
type CycleResult struct {
	Attempts int
	Record   *model.SensorRecord
	Uploaded bool
	Err      error
}

// Agent polls one sensor forever. Only the goroutine running it mutates its
// cycle fields; State may be read from anywhere.
type Agent struct {
	sensor  model.Sensor
	cfg     AgentConfig
	client  *http.Client
	sink    RecordSink
	mirrors []Mirror
	log     *logrus.Entry
	metrics *Metrics
	now     func() time.Time

	state     atomic.Int32
	fetchedAt time.Time
}

func NewAgent(sensor model.Sensor, cfg AgentConfig, deps Deps) *Agent {
	if deps.Client == nil {
		deps.Client = http.DefaultClient
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Agent{
		sensor:  sensor,
		cfg:     cfg,
		client:  deps.Client,
		sink:    deps.Sink,
		mirrors: deps.Mirrors,
		log:     deps.Logger.WithFields(logrus.Fields{"sensor_id": sensor.ID, "ip": sensor.IP}),
		metrics: deps.Metrics,
		now:     deps.Now,
	}
}

func (a *Agent) Sensor() model.Sensor { return a.sensor }

func (a *Agent) State() State { return State(a.state.Load()) }

func (a *Agent) setState(s State) { a.state.Store(int32(s)) }

// Run cycles until ctx is cancelled. A cycle starts every Interval measured
// from the previous fetch start; a cycle that overran starts the next at once.
func (a *Agent) Run(ctx context.Context) {
	a.metrics.agentStarted()
	defer a.metrics.agentStopped()
	a.log.Info("agent started")

	for {
		a.Cycle(ctx)

		wait := a.untilNext(a.now())
		a.setState(StateSleeping)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			a.setState(StateIdle)
			a.log.Info("agent stopped")
			return
		case <-t.C:
		}
	}
}

func (a *Agent) untilNext(now time.Time) time.Duration {
	wait := a.fetchedAt.Add(a.cfg.Interval).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Cycle runs a single fetch, parse and upload pass.
func (a *Agent) Cycle(ctx context.Context) CycleResult {
	a.fetchedAt = a.now()
	var res CycleResult
	defer func() {
		a.metrics.cycle(cycleLabel(res), a.now().Sub(a.fetchedAt).Seconds())
	}()

	a.setState(StateFetching)
	body, attempts, err := a.fetch(ctx)
	res.Attempts = attempts
	if err != nil {
		res.Err = err
		if !errors.Is(err, context.Canceled) {
			a.log.WithFields(logrus.Fields{
				"attempts":    attempts,
				"error_class": errorClass(err),
			}).Warn("no reading this cycle")
		}
		return res
	}

	a.setState(StateParsing)
	rec, err := model.Decode(a.cfg.Schema, body, model.DerivedFor(a.sensor, a.fetchedAt))
	switch {
	case errors.Is(err, model.ErrNoData):
		a.log.Debug("sensor returned no data")
		res.Err = err
		return res
	case err != nil:
		a.log.WithError(err).WithField("error_class", errorClass(err)).Warn("discarding malformed payload")
		res.Err = err
		return res
	}
	res.Record = &rec

	a.setState(StateUploading)
	if err := a.upload(ctx, rec); err != nil {
		res.Err = err
	} else {
		res.Uploaded = true
	}
	a.mirror(ctx, rec)
	return res
}

func cycleLabel(res CycleResult) string {
	switch {
	case res.Uploaded:
		return "uploaded"
	case errors.Is(res.Err, model.ErrNoData):
		return "no_data"
	case errors.Is(res.Err, model.ErrMalformed):
		return "malformed"
	case res.Record != nil:
		return "upload_failed"
	default:
		return "fetch_failed"
	}
}

func (a *Agent) fetch(ctx context.Context) (string, int, error) {
	var body string
	attempts, err := a.cfg.Retry.Do(ctx, func(ctx context.Context, _ int) error {
		b, err := a.get(ctx)
		if err != nil {
			return err
		}
		body = b
		a.metrics.attempt("ok")
		return nil
	}, func(attempt int, err error, outcome Outcome) {
		if errors.Is(err, context.Canceled) {
			return
		}
		class := errorClass(err)
		a.metrics.attempt(class)
		a.log.WithError(err).WithFields(logrus.Fields{
			"attempt":     attempt,
			"error_class": class,
			"outcome":     outcome.String(),
		}).Error("fetch failed")
	})
	return body, attempts, err
}

func (a *Agent) get(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.sensor.DataURL(), nil)
	if err != nil {
		return "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return "", &FetchStatusError{Status: resp.StatusCode}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(b), nil
}

func (a *Agent) upload(ctx context.Context, rec model.SensorRecord) error {
	if a.sink == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	if err := a.sink.Upload(ctx, rec); err != nil {
		class := errorClass(err)
		a.metrics.upload(class)
		a.log.WithError(err).WithField("error_class", class).Error("upload failed")
		return err
	}
	a.metrics.upload("ok")
	a.log.WithField("timestamp", a.fetchedAt.UTC().Format(model.TimestampLayout)).Debug("record uploaded")
	return nil
}

func (a *Agent) mirror(ctx context.Context, rec model.SensorRecord) {
	for _, m := range a.mirrors {
		mctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		err := m.Mirror(mctx, rec)
		cancel()
		if err != nil {
			a.metrics.mirrorFailed(m.Name())
			a.log.WithError(err).WithField("mirror", m.Name()).Warn("mirror write failed")
		}
	}
}
