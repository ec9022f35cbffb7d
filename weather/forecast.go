// Package weather is the protected resource of the module: a five day
// forecast served by the resource server and fetched by the client.
package weather

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/welkome/identity/security"
)

const (
	// Days is the number of forecast entries, starting tomorrow.
	Days = 5

	minTemperatureC = -20
	maxTemperatureC = 55 // exclusive
)

// Summaries are the fixed forecast descriptions.
var Summaries = []string{
	"Freezing", "Bracing", "Chilly", "Cool", "Mild", "Warm", "Balmy", "Hot", "Sweltering", "Scorching",
}

// Forecast is one day of weather.
type Forecast struct {
	Date         time.Time `json:"date"`
	TemperatureC int       `json:"temperatureC"`
	TemperatureF int       `json:"temperatureF"`
	Summary      string    `json:"summary,omitempty"`
}

// Fahrenheit converts whole degrees Celsius with the 0.5556 factor the API
// has always used, truncating toward zero.
func Fahrenheit(celsius int) int {
	return 32 + int(float64(celsius)/0.5556)
}

// Generator produces stub forecasts. It is safe for concurrent use.
type Generator struct {
	mu    sync.Mutex
	rand  *rand.Rand
	clock security.Clock
}

// NewGenerator creates a generator. A nil clock uses the wall clock and a
// nil r a randomly seeded source.
func NewGenerator(clock security.Clock, r *rand.Rand) *Generator {
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{rand: r, clock: security.ClockOrDefault(clock)}
}

// Forecast returns Days entries dated one to Days days from now.
func (g *Generator) Forecast() []Forecast {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Forecast, 0, Days)
	for day := 1; day <= Days; day++ {
		c := minTemperatureC + g.rand.IntN(maxTemperatureC-minTemperatureC)
		out = append(out, Forecast{
			Date:         now.AddDate(0, 0, day),
			TemperatureC: c,
			TemperatureF: Fahrenheit(c),
			Summary:      Summaries[g.rand.IntN(len(Summaries))],
		})
	}
	return out
}
