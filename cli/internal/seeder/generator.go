package seeder

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/lensai/lensai-stack/ingest/pkg/models"
)

// price is USD per 1K tokens.
type price struct {
	in  float64
	out float64
}

var prices = map[string]price{
	"gpt-4o":           {0.0025, 0.01},
	"gpt-4o-mini":      {0.00015, 0.0006},
	"o3-mini":          {0.0011, 0.0044},
	"claude-sonnet-4":  {0.003, 0.015},
	"claude-haiku-3.5": {0.0008, 0.004},
	"gemini-2.0-flash": {0.0001, 0.0004},
	"gemini-1.5-pro":   {0.00125, 0.005},
	"mistral-large":    {0.002, 0.006},
	"mistral-small":    {0.0002, 0.0006},
}

var fallbackPrice = price{0.001, 0.002}

var failureStatuses = []string{"error", "rate_limited", "timeout"}

// Generator produces synthetic usage events. It is not safe for concurrent use.
type Generator struct {
	faker     *gofakeit.Faker
	projects  []string
	providers []string
	catalog   map[string][]string
	routes    []string
	users     []string
	spread    time.Duration
	errorRate float64
	now       func() time.Time
}

// NewGenerator builds a generator from cfg. A zero seed picks a random one.
func NewGenerator(cfg *Config) *Generator {
	faker := gofakeit.New(cfg.Defaults.Seed)

	providers := make([]string, 0, len(cfg.Catalog))
	for p := range cfg.Catalog {
		providers = append(providers, p)
	}
	sort.Strings(providers)

	projects := make([]string, cfg.Defaults.Projects)
	for i := range projects {
		projects[i] = fmt.Sprintf("proj-%s-%d", faker.Word(), i+1)
	}

	users := make([]string, 25)
	for i := range users {
		users[i] = "user_" + faker.Username()
	}

	return &Generator{
		faker:     faker,
		projects:  projects,
		providers: providers,
		catalog:   cfg.Catalog,
		routes:    cfg.Routes,
		users:     users,
		spread:    cfg.Defaults.TimeSpread,
		errorRate: cfg.Defaults.ErrorRate,
		now:       time.Now,
	}
}

// Projects returns the project ids events are spread across.
func (g *Generator) Projects() []string {
	return g.projects
}

// Event generates the index-th of total events.
func (g *Generator) Event(index, total int) *models.Event {
	f := g.faker
	provider := g.providers[f.Number(0, len(g.providers)-1)]
	model := f.RandomString(g.catalog[provider])

	tokensIn := float64(f.Number(20, 4000))
	tokensOut := float64(f.Number(10, 2000))
	status := "ok"
	if f.Float64() < g.errorRate {
		status = f.RandomString(failureStatuses)
		tokensOut = 0
	}

	p, ok := prices[model]
	if !ok {
		p = fallbackPrice
	}
	cost := round((tokensIn*p.in+tokensOut*p.out)/1000, 6)
	latency := math.Round(150 + tokensOut*f.Float64Range(4, 20))

	ev := &models.Event{
		TS:        g.eventTime(index, total).UTC().Format(time.RFC3339Nano),
		ProjectID: g.projects[f.Number(0, len(g.projects)-1)],
		RequestID: uuid.NewString(),
		Route:     f.RandomString(g.routes),
		Provider:  provider,
		Model:     model,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		CostUSD:   cost,
		LatencyMS: latency,
		Status:    status,
	}

	if f.Float64() < 0.7 {
		uid := g.users[f.Number(0, len(g.users)-1)]
		ev.UserID = &uid
	}

	meta := map[string]interface{}{
		"temperature": round(f.Float64Range(0, 1.2), 2),
		"stream":      f.Bool(),
		"user_agent":  f.UserAgent(),
	}
	if raw, err := json.Marshal(meta); err == nil {
		ev.Metadata = raw
	}

	return ev
}

// eventTime spreads events backwards from now across the configured window
// with up to 40% jitter around the even interval.
func (g *Generator) eventTime(index, total int) time.Time {
	now := g.now()
	if g.spread <= 0 || total <= 0 {
		return now
	}

	baseInterval := float64(g.spread) / float64(total)
	jitter := (g.faker.Float64()*2.0 - 1.0) * baseInterval * 0.4
	offset := time.Duration(float64(index)*baseInterval + jitter)
	if offset < 0 {
		offset = 0
	}
	if offset > g.spread {
		offset = g.spread
	}
	return now.Add(-(g.spread - offset))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
