package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/road-conditions/internal/model"
	sensorSimulator "github.com/LeonardoBeccarini/road-conditions/internal/sensor-simulator"
)

func TestNewFleetDropsInvalidDescriptors(t *testing.T) {
	log, hook := test.NewNullLogger()
	sensors := []model.Sensor{
		{ID: "1", IP: "10.0.0.1"},
		{ID: "", IP: "10.0.0.2"},
		{ID: "3", IP: ""},
		{ID: "1", IP: "10.0.0.9"},
		{ID: "4", IP: "10.0.0.4"},
	}
	f := NewFleet(sensors, testConfig(), Deps{Logger: log})

	require.Len(t, f.Agents(), 2)
	assert.Equal(t, "1", f.Agents()[0].Sensor().ID)
	assert.Equal(t, "4", f.Agents()[1].Sensor().ID)

	var warnings int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 3, warnings)
	assert.Equal(t, map[string]int{"idle": 2}, f.States())
}

func TestFleetIsolatesFailingSensor(t *testing.T) {
	log, _ := test.NewNullLogger()
	sim := sensorSimulator.NewSensorSimulator(sensorSimulator.NewDataGenerator(7), log)
	good := httptest.NewServer(sim.Handler())
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	sink := &memSink{}
	cfg := testConfig()
	cfg.Interval = time.Hour
	deps := testDeps(log, sink)
	deps.Now = time.Now
	f := NewFleet([]model.Sensor{sensorAt(good, "good"), sensorAt(bad, "bad")}, cfg, deps)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return f.States()["sleeping"] == 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	require.Equal(t, 1, sink.Len())
	assert.Equal(t, "good", sink.recs[0].SensorID())
}
