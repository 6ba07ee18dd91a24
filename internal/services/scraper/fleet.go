package scraper

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/LeonardoBeccarini/road-conditions/internal/model"
)

// Fleet runs one agent per valid sensor.
type Fleet struct {
	agents []*Agent
	log    *logrus.Logger
}

// NewFleet drops descriptors without an IP or sensor ID, and repeated sensor
// IDs, logging a warning for each.
func NewFleet(sensors []model.Sensor, cfg AgentConfig, deps Deps) *Fleet {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	f := &Fleet{log: deps.Logger}
	seen := make(map[string]bool, len(sensors))
	for _, s := range sensors {
		entry := deps.Logger.WithFields(logrus.Fields{"sensor_id": s.ID, "ip": s.IP})
		if !s.Valid() {
			entry.Warn("skipping sensor without ip or sensor id")
			continue
		}
		if seen[s.ID] {
			entry.Warn("skipping duplicate sensor id")
			continue
		}
		seen[s.ID] = true
		f.agents = append(f.agents, NewAgent(s, cfg, deps))
	}
	return f
}

func (f *Fleet) Agents() []*Agent { return f.agents }

// States counts agents per state name.
func (f *Fleet) States() map[string]int {
	out := make(map[string]int)
	for _, a := range f.agents {
		out[a.State().String()]++
	}
	return out
}

// Run starts every agent and blocks until all of them return after ctx ends.
func (f *Fleet) Run(ctx context.Context) {
	f.log.WithField("agents", len(f.agents)).Info("starting sensor agents")
	var wg sync.WaitGroup
	for _, a := range f.agents {
		wg.Add(1)
		go func(a *Agent) {
			defer wg.Done()
			a.Run(ctx)
		}(a)
	}
	wg.Wait()
	f.log.Info("all sensor agents stopped")
}
