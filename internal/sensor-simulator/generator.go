package sensor_simulator

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
)

type surface struct {
	code     int
	text     string
	friction float64
	grip     string
}

var surfaces = []surface{
	{1, "DRY", 0.80, "GOOD"},
	{2, "MOIST", 0.70, "GOOD"},
	{3, "WET", 0.55, "FAIR"},
	{4, "ICE", 0.25, "POOR"},
}

// DataGenerator keeps a drifting road-weather state and renders it in the
// sensor's whitespace separated layout.
type DataGenerator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	airTemp  float64
	surface  float64
	humidity float64
	lens     int
	// TrailingDot appends the "." artifact seen on real sensors to the last token.
	TrailingDot bool
}

func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng:         rand.New(rand.NewSource(seed)),
		airTemp:     27.2,
		surface:     30.2,
		humidity:    78.2,
		lens:        4,
		TrailingDot: true,
	}
}

// Line advances the state by one step and returns the next payload.
func (g *DataGenerator) Line() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.airTemp = clamp(g.airTemp+g.rng.NormFloat64()*0.3, -20, 50)
	g.surface = clamp(g.surface+g.rng.NormFloat64()*0.4, -25, 65)
	g.humidity = clamp(g.humidity+g.rng.NormFloat64()*1.5, 5, 100)
	if g.rng.Intn(20) == 0 {
		g.lens = int(clamp(float64(g.lens+g.rng.Intn(3)-1), 0, 9))
	}

	s := g.classify()
	vy := 1800 + g.rng.Intn(20)
	vx := 1750 + g.rng.Intn(20)
	status := -100 - g.rng.Intn(5)

	tokens := []string{
		fmt.Sprintf("%d", vy),
		fmt.Sprintf("%d", vx),
		fmt.Sprintf("%.3f", float64(vy)/float64(vx)),
		fmt.Sprintf("%.2f", g.airTemp-0.1),
		fmt.Sprintf("%.2f", g.surface),
		fmt.Sprintf("%d", s.code),
		fmt.Sprintf("%d", s.code),
		s.text,
		s.text,
		fmt.Sprintf("%d", s.code),
		fmt.Sprintf("%d", s.code),
		fmt.Sprintf("%.2f", s.friction),
		fmt.Sprintf("%.2f", s.friction),
		fmt.Sprintf("%d", g.lens),
		s.grip,
		fmt.Sprintf("%.2f", g.humidity),
		fmt.Sprintf("%.2f", g.airTemp),
		fmt.Sprintf("%.2f", g.airTemp+18),
		fmt.Sprintf("%d", status),
	}
	if g.TrailingDot {
		tokens[len(tokens)-1] += "."
	}
	return strings.Join(tokens, " ")
}

func (g *DataGenerator) classify() surface {
	switch {
	case g.surface <= 0 && g.humidity > 60:
		return surfaces[3]
	case g.humidity > 92:
		return surfaces[2]
	case g.humidity > 85:
		return surfaces[1]
	default:
		return surfaces[0]
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
