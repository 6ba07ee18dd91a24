package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/road-conditions/internal/model"
)

const dummyLine = "1808   1759  1.028  27.05  30.21 1 1 DRY DRY 3 3 0.80 0.80 4 GOOD  78.18  27.19  45.29 -102."

var fetchTime = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

type memSink struct {
	mu   sync.Mutex
	recs []model.SensorRecord
	err  error
}

func (s *memSink) Upload(_ context.Context, rec model.SensorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

type memMirror struct {
	n   atomic.Int32
	err error
}

func (m *memMirror) Name() string { return "mem" }

func (m *memMirror) Mirror(context.Context, model.SensorRecord) error {
	m.n.Add(1)
	return m.err
}

func sensorAt(srv *httptest.Server, id string) model.Sensor {
	return model.Sensor{ID: id, IP: strings.TrimPrefix(srv.URL, "http://")}
}

func testConfig() AgentConfig {
	return AgentConfig{
		Interval: time.Minute,
		Timeout:  time.Second,
		Schema:   model.DefaultSchema(),
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	}
}

func testDeps(log *logrus.Logger, sink RecordSink, mirrors ...Mirror) Deps {
	return Deps{
		Client:  &http.Client{},
		Sink:    sink,
		Mirrors: mirrors,
		Logger:  log,
		Now:     func() time.Time { return fetchTime },
	}
}

func entriesWithMessage(hook *test.Hook, msg string) []logrus.Entry {
	var out []logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			out = append(out, *e)
		}
	}
	return out
}

func TestCycleUploadsDecodedRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data.zhtml", r.URL.Path)
		_, _ = w.Write([]byte(dummyLine))
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	sink := &memSink{}
	mirror := &memMirror{}
	a := NewAgent(sensorAt(srv, "17"), testConfig(), testDeps(log, sink, mirror))

	res := a.Cycle(context.Background())
	require.NoError(t, res.Err)
	assert.True(t, res.Uploaded)
	assert.Equal(t, 1, res.Attempts)
	require.Equal(t, 1, sink.Len())
	assert.EqualValues(t, 1, mirror.n.Load())

	rec := sink.recs[0]
	assert.Equal(t, "17", rec.SensorID())
	ts, _ := rec.Get(model.FieldTimestamp)
	assert.Equal(t, "2024-03-01T18:00:00.000000+00:00", ts)
	status, _ := rec.Get("status_code")
	assert.EqualValues(t, -102, status)
}

func TestCycleEveryAttemptTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	log, hook := test.NewNullLogger()
	sink := &memSink{}
	a := NewAgent(sensorAt(srv, "17"), cfg, testDeps(log, sink))

	res := a.Cycle(context.Background())
	require.Error(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
	assert.False(t, res.Uploaded)
	assert.Zero(t, sink.Len())

	failed := entriesWithMessage(hook, "fetch failed")
	require.Len(t, failed, 3)
	for i, e := range failed {
		assert.Equal(t, i+1, e.Data["attempt"])
		assert.Equal(t, "timeout", e.Data["error_class"])
		assert.Equal(t, "17", e.Data["sensor_id"])
	}
}

func TestCycleRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(dummyLine))
	}))
	defer srv.Close()

	log, hook := test.NewNullLogger()
	sink := &memSink{}
	a := NewAgent(sensorAt(srv, "17"), testConfig(), testDeps(log, sink))

	res := a.Cycle(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, sink.Len())

	failed := entriesWithMessage(hook, "fetch failed")
	require.Len(t, failed, 1)
	assert.Equal(t, "status_503", failed[0].Data["error_class"])
}

func TestCycleCancelledMidFetchLogsNothing(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	log, hook := test.NewNullLogger()
	sink := &memSink{}
	a := NewAgent(sensorAt(srv, "17"), testConfig(), testDeps(log, sink))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	res := a.Cycle(ctx)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 1, res.Attempts)
	assert.Zero(t, sink.Len())
	assert.Empty(t, entriesWithMessage(hook, "fetch failed"))
	assert.Empty(t, entriesWithMessage(hook, "no reading this cycle"))
}

func TestCycleDoesNotRetryClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	log, hook := test.NewNullLogger()
	a := NewAgent(sensorAt(srv, "17"), testConfig(), testDeps(log, &memSink{}))

	res := a.Cycle(context.Background())
	var fse *FetchStatusError
	require.ErrorAs(t, res.Err, &fse)
	assert.Equal(t, http.StatusNotFound, fse.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.Len(t, entriesWithMessage(hook, "fetch failed"), 1)
}

func TestCycleEmptyBodySkipsUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("  \n"))
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	sink := &memSink{}
	mirror := &memMirror{}
	a := NewAgent(sensorAt(srv, "17"), testConfig(), testDeps(log, sink, mirror))

	res := a.Cycle(context.Background())
	assert.ErrorIs(t, res.Err, model.ErrNoData)
	assert.Zero(t, sink.Len())
	assert.Zero(t, mirror.n.Load())
}

func TestCycleDiscardsMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("1808 1759 1.028"))
	}))
	defer srv.Close()

	log, hook := test.NewNullLogger()
	sink := &memSink{}
	a := NewAgent(sensorAt(srv, "17"), testConfig(), testDeps(log, sink))

	res := a.Cycle(context.Background())
	assert.ErrorIs(t, res.Err, model.ErrMalformed)
	assert.Zero(t, sink.Len())
	require.Len(t, entriesWithMessage(hook, "discarding malformed payload"), 1)
}

func TestUploadFailureStillMirrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(dummyLine))
	}))
	defer srv.Close()

	log, hook := test.NewNullLogger()
	sink := &memSink{err: errors.New("sink down")}
	mirror := &memMirror{err: errors.New("broker down")}
	a := NewAgent(sensorAt(srv, "17"), testConfig(), testDeps(log, sink, mirror))

	res := a.Cycle(context.Background())
	assert.Error(t, res.Err)
	assert.False(t, res.Uploaded)
	assert.NotNil(t, res.Record)
	assert.EqualValues(t, 1, mirror.n.Load())
	assert.Len(t, entriesWithMessage(hook, "upload failed"), 1)
	assert.Len(t, entriesWithMessage(hook, "mirror write failed"), 1)
}

func TestUntilNextIsAnchoredToFetchStart(t *testing.T) {
	a := NewAgent(model.Sensor{ID: "1", IP: "x"}, testConfig(), Deps{})
	a.fetchedAt = fetchTime

	assert.Equal(t, 45*time.Second, a.untilNext(fetchTime.Add(15*time.Second)))
	assert.Equal(t, time.Duration(0), a.untilNext(fetchTime.Add(90*time.Second)))
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(dummyLine))
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	sink := &memSink{}
	deps := testDeps(log, sink)
	deps.Now = time.Now
	a := NewAgent(sensorAt(srv, "17"), testConfig(), deps)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sink.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return a.State() == StateSleeping }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop")
	}
	assert.Equal(t, StateIdle, a.State())
}
