package sensor_simulator

import (
	"net/http"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// DataPath is where road sensors expose their current reading.
const DataPath = "/data.zhtml"

// SensorSimulator answers like a road sensor's embedded web server.
type SensorSimulator struct {
	gen *DataGenerator
	log *logrus.Entry

	// FailEvery makes every n-th request answer 503. Zero never fails.
	FailEvery int64
	// Empty makes the sensor answer with an empty body.
	Empty bool

	requests atomic.Int64
}

func NewSensorSimulator(gen *DataGenerator, log *logrus.Logger) *SensorSimulator {
	return &SensorSimulator{gen: gen, log: log.WithField("component", "sensor-simulator")}
}

// Requests reports how many readings were requested so far.
func (s *SensorSimulator) Requests() int64 { return s.requests.Load() }

func (s *SensorSimulator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(DataPath, s.serveData)
	return mux
}

func (s *SensorSimulator) serveData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	n := s.requests.Add(1)
	if s.FailEvery > 0 && n%s.FailEvery == 0 {
		s.log.WithField("request", n).Debug("simulating sensor failure")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	if s.Empty {
		return
	}
	line := s.gen.Line()
	s.log.WithField("request", n).Debug(line)
	_, _ = w.Write([]byte(line))
}
