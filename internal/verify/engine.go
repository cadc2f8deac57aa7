package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gnaf-verify/internal/extract"
	"github.com/gnaf-verify/internal/matcher"
	"github.com/gnaf-verify/internal/metrics"
	"github.com/gnaf-verify/internal/normalize"
	"github.com/gnaf-verify/internal/reference"
	"github.com/gnaf-verify/internal/resolver"
)

// Request is one address to verify: free-text lines plus optional
// structured hints.
type Request struct {
	RequestID    string   `json:"requestId,omitempty"`
	AddressLines []string `json:"addressLines"`
	Suburb       string   `json:"suburb,omitempty"`
	State        string   `json:"state,omitempty"`
	Postcode     string   `json:"postcode,omitempty"`
}

// Matched identifies the reference records a request resolved to.
type Matched struct {
	AddressPid   string  `json:"addressPid,omitempty"`
	StreetPid    string  `json:"streetPid,omitempty"`
	LocalityPid  string  `json:"localityPid,omitempty"`
	BuildingName string  `json:"buildingName,omitempty"`
	Longitude    float64 `json:"longitude"`
	Latitude     float64 `json:"latitude"`
	GeocodeOf    string  `json:"geocodeSource"`
	SA1          string  `json:"sa1,omitempty"`
	LGA          string  `json:"lga,omitempty"`
}

// CandidateSummary is one entry of the ranked runner-up list.
type CandidateSummary struct {
	ID         string  `json:"id"`
	State      string  `json:"state"`
	Source     string  `json:"source"`
	FuzzLevel  int     `json:"fuzzLevel"`
	Confidence float64 `json:"confidence"`
}

// Response is the verification result. Verification never errors; every
// outcome, including NoMatch and Timeout, is a Response.
type Response struct {
	RequestID   string             `json:"requestId"`
	Status      string             `json:"status"`
	Accuracy    int                `json:"accuracy"`
	State       string             `json:"state"`
	Confidence  float64            `json:"confidence"`
	FuzzLevel   int                `json:"fuzzLevel"`
	Source      string             `json:"source,omitempty"`
	Matched     *Matched           `json:"matched,omitempty"`
	Candidates  []CandidateSummary `json:"candidates,omitempty"`
	Ambiguous   bool               `json:"ambiguous,omitempty"`
	TiedIDs     []string           `json:"tiedIds,omitempty"`
	TimedOut    bool               `json:"timedOut,omitempty"`
	Diagnostics []string           `json:"diagnostics,omitempty"`
}

// Config assembles the engine.
type Config struct {
	Matcher  matcher.Config
	Resolver resolver.Config
	Extract  extract.Options
	// Timeout bounds a single request's fuzzy search. Zero disables it.
	Timeout time.Duration
	// Workers caps batch concurrency. Zero means four.
	Workers int
	// MaxCandidates caps the runner-up list on the response.
	MaxCandidates int
}

func DefaultConfig() Config {
	return Config{
		Matcher:       matcher.DefaultConfig(),
		Resolver:      resolver.DefaultConfig(),
		Timeout:       2 * time.Second,
		Workers:       4,
		MaxCandidates: 5,
	}
}

// Engine wires the pipeline over a shared read-only index. It is safe for
// concurrent use; requests share nothing but the index.
type Engine struct {
	idx      *reference.Index
	norm     *normalize.Normalizer
	parser   *extract.Parser
	resolver *resolver.Resolver
	cfg      Config
	met      *metrics.Metrics
	log      zerolog.Logger
}

// NewEngine builds the pipeline. met may be nil.
func NewEngine(idx *reference.Index, cfg Config, met *metrics.Metrics, log zerolog.Logger) *Engine {
	m := matcher.New(idx, cfg.Matcher, log)
	return &Engine{
		idx:      idx,
		norm:     normalize.New(idx, log),
		parser:   extract.New(idx, cfg.Extract, log),
		resolver: resolver.New(idx, m, cfg.Resolver, log),
		cfg:      cfg,
		met:      met,
		log:      log.With().Str("component", "verify").Logger(),
	}
}

// Verify resolves one request.
func (e *Engine) Verify(ctx context.Context, req Request) Response {
	start := time.Now()
	if e.met != nil {
		e.met.Requests.Inc()
	}

	id := req.RequestID
	if id == "" {
		id = uuid.NewString()
	}

	raw := strings.Join(req.AddressLines, ", ")
	norm := e.norm.Normalize(raw)
	comps := e.parser.Extract(norm, extract.Hints{
		Suburb:   req.Suburb,
		State:    req.State,
		Postcode: req.Postcode,
	})

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	out := e.resolver.Resolve(ctx, comps)

	resp := e.buildResponse(id, norm, comps, out)
	e.observe(out, time.Since(start))
	e.log.Debug().
		Str("requestId", id).
		Str("state", out.State.String()).
		Int("fuzzLevel", out.FuzzUsed).
		Dur("took", time.Since(start)).
		Msg("verified")
	return resp
}

func (e *Engine) buildResponse(id string, norm normalize.Result, comps extract.Components, out resolver.Outcome) Response {
	resp := Response{
		RequestID: id,
		Status:    out.State.Status(),
		Accuracy:  out.State.Accuracy(),
		State:     out.State.String(),
		Ambiguous: out.Ambiguous(),
		TimedOut:  out.TimedOut,
	}

	for _, step := range norm.Steps {
		resp.Diagnostics = append(resp.Diagnostics, fmt.Sprintf("normalize/%s: %q -> %q", step.Name, step.Before, step.After))
	}
	resp.Diagnostics = append(resp.Diagnostics, norm.Violations...)
	for _, step := range comps.Steps {
		resp.Diagnostics = append(resp.Diagnostics, "extract: "+step)
	}
	if comps.Ambiguous {
		resp.Diagnostics = append(resp.Diagnostics,
			fmt.Sprintf("extract: %d plausible partitions forwarded", len(comps.Partitions)))
	}

	if out.Best == nil {
		return resp
	}
	best := out.Best
	resp.Confidence = best.Confidence
	resp.FuzzLevel = best.FuzzLevel
	resp.Source = string(best.Source)
	resp.Matched = matchedOf(best)

	limit := e.cfg.MaxCandidates
	if limit <= 0 {
		limit = 5
	}
	for i, c := range out.Candidates {
		if i >= limit {
			break
		}
		resp.Candidates = append(resp.Candidates, CandidateSummary{
			ID:         c.ID(),
			State:      c.State.String(),
			Source:     string(c.Source),
			FuzzLevel:  c.FuzzLevel,
			Confidence: c.Confidence,
		})
	}
	for _, c := range out.Tied {
		resp.TiedIDs = append(resp.TiedIDs, c.ID())
	}
	if len(resp.TiedIDs) == 1 {
		resp.TiedIDs = nil
	}
	return resp
}

func matchedOf(c *resolver.Candidate) *Matched {
	m := &Matched{
		Longitude: c.Geocode.Longitude,
		Latitude:  c.Geocode.Latitude,
		GeocodeOf: c.Geocode.Source.String(),
		SA1:       c.Geocode.SA1,
		LGA:       c.Geocode.LGA,
	}
	if c.Address != nil {
		m.AddressPid = c.Address.Pid
		m.BuildingName = c.Address.BuildingName
	}
	if c.Street != nil {
		m.StreetPid = c.Street.Street.Pid
		m.LocalityPid = c.Street.LocalityPid
	} else if c.Locality != nil {
		m.LocalityPid = c.Locality.Locality.Pid
	}
	return m
}

func (e *Engine) observe(out resolver.Outcome, took time.Duration) {
	if e.met == nil {
		return
	}
	e.met.Outcomes.WithLabelValues(out.State.String()).Inc()
	e.met.Duration.Observe(took.Seconds())
	e.met.FuzzLevel.Observe(float64(out.FuzzUsed))
	if out.TimedOut {
		e.met.Timeouts.Inc()
	}
	if out.Ambiguous() {
		e.met.Ambiguous.Inc()
	}
}

// VerifyBatch resolves many requests concurrently. Results keep request
// order. One bad record never affects the others: a panic inside a worker
// is converted into a NoMatch response for that record alone.
func (e *Engine) VerifyBatch(ctx context.Context, reqs []Request) []Response {
	out := make([]Response, len(reqs))
	workers := e.cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error().Interface("panic", r).Int("record", i).Msg("record isolated after panic")
					out[i] = Response{
						RequestID:   req.RequestID,
						Status:      resolver.NoMatch.Status(),
						State:       resolver.NoMatch.String(),
						Diagnostics: []string{fmt.Sprintf("record failed: %v", r)},
					}
				}
			}()
			out[i] = e.Verify(ctx, req)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors
	return out
}
