package stationgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"tsde.dev/stationgraph/downloader"
	"tsde.dev/stationgraph/model"
	"tsde.dev/stationgraph/parse"
)

// The parts of the timetable API the crawler talks to.
type TimetableAPI interface {
	Plan(ctx context.Context, eva int64, date string, hour string) ([]byte, error)
	LookupStation(ctx context.Context, name string) (int64, string, error)
}

// Stations discovered but not yet queried, in discovery order, and
// the stations already queried. A name is never in both.
type Frontier struct {
	pending    []string
	pendingSet map[string]bool
	queried    map[string]bool
	order      []string
}

func NewFrontier() *Frontier {
	return &Frontier{
		pendingSet: map[string]bool{},
		queried:    map[string]bool{},
	}
}

// Adds name to the pending queue, unless it is already pending or
// queried. Returns true if it was added.
func (f *Frontier) Push(name string) bool {
	if name == "" || f.pendingSet[name] || f.queried[name] {
		return false
	}
	f.pending = append(f.pending, name)
	f.pendingSet[name] = true
	return true
}

// Removes and returns the oldest pending name.
func (f *Frontier) Pop() (string, bool) {
	for len(f.pending) > 0 {
		name := f.pending[0]
		f.pending = f.pending[1:]
		if f.pendingSet[name] {
			delete(f.pendingSet, name)
			return name, true
		}
	}
	return "", false
}

// Marks name as queried, dropping it from the pending queue.
func (f *Frontier) MarkQueried(name string) {
	if f.queried[name] {
		return
	}
	delete(f.pendingSet, name)
	f.queried[name] = true
	f.order = append(f.order, name)
}

func (f *Frontier) IsQueried(name string) bool {
	return f.queried[name]
}

func (f *Frontier) IsPending(name string) bool {
	return f.pendingSet[name]
}

func (f *Frontier) Pending() int {
	return len(f.pendingSet)
}

// Queried names in the order they were marked.
func (f *Frontier) Queried() []string {
	return append([]string{}, f.order...)
}

type SkipReason int

const (
	// No EVA number could be found for the station name.
	SkipNoEVA SkipReason = iota + 1

	// The response couldn't be parsed.
	SkipMalformed

	// The API refused the query for this station (4xx other than
	// auth and rate limiting).
	SkipRejected

	// The response exceeded the client's size limit.
	SkipTooLarge
)

func (r SkipReason) String() string {
	switch r {
	case SkipNoEVA:
		return "no_eva"
	case SkipMalformed:
		return "malformed"
	case SkipRejected:
		return "rejected"
	case SkipTooLarge:
		return "too_large"
	}
	return fmt.Sprintf("skip(%d)", int(r))
}

// A station the crawl gave up on.
type Skip struct {
	Name   string
	EVA    int64
	Reason SkipReason
	Err    error
}

// A station to query.
type Target struct {
	Name string
	EVA  int64
}

// Everything a crawl run has accumulated so far.
type CrawlState struct {
	Frontier *Frontier
	Stops    []*model.JourneyStop
	Skipped  []Skip
	Queries  int
	Lookups  int

	stopIndex map[string]int
}

func NewCrawlState() *CrawlState {
	return &CrawlState{
		Frontier:  NewFrontier(),
		Stops:     []*model.JourneyStop{},
		Skipped:   []Skip{},
		stopIndex: map[string]int{},
	}
}

// Stops are keyed by ID; a stop seen again replaces the earlier one.
func (s *CrawlState) addStop(js *model.JourneyStop) {
	if i, found := s.stopIndex[js.ID]; found {
		s.Stops[i] = js
		return
	}
	s.stopIndex[js.ID] = len(s.Stops)
	s.Stops = append(s.Stops, js)
}

type CrawlResult struct {
	Stops   []*model.JourneyStop
	Queried []string
	Skipped []Skip
	Queries int
	Lookups int

	// False if the crawl stopped before the frontier was empty.
	Complete bool
}

// Breadth first crawl of the timetable API. Each queried station's
// journeys name further stations (their terminals), which are queued
// and queried in turn until no new stations turn up.
//
// Requests are strictly sequential and paced by Pacer.
type Crawler struct {
	API   TimetableAPI
	Index *StationIndex
	Pacer *Pacer

	// Timetable slice to fetch, YYMMdd and HH.
	Date string
	Hour string

	// Stop after this many plan queries. 0 means no limit.
	MaxQueries int

	// Ask the station endpoint for names the index can't resolve.
	LookupFallback bool

	logger *slog.Logger
}

func NewCrawler(api TimetableAPI, index *StationIndex, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		API:    api,
		Index:  index,
		Pacer:  NewPacer(DefaultMinInterval),
		logger: logger.With("component", "crawler"),
	}
}

// Errors that should end the crawl. Rejections of a single station
// (most 4xx) are not among them.
func isFatal(err error) bool {
	code := downloader.StatusCode(err)
	switch code {
	case 0, http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return code < 400 || code >= 500
}

// Fetches the timetable of the target station, after waiting for the
// pacer.
func (c *Crawler) Query(ctx context.Context, state *CrawlState, t Target) ([]byte, error) {
	if err := c.Pacer.Wait(ctx); err != nil {
		return nil, err
	}
	state.Queries++
	c.logger.Debug("querying", "station", t.Name, "eva", t.EVA, "query", state.Queries)
	return c.API.Plan(ctx, t.EVA, c.Date, c.Hour)
}

// Parses a response for the target station into state. The station
// is marked queried (under the name it was queried by and the name
// the response reports), its journey stops are recorded and their
// terminals queued. A malformed response marks the station queried
// and adds nothing else.
func (c *Crawler) Apply(state *CrawlState, t Target, body []byte) {
	state.Frontier.MarkQueried(t.Name)

	tt, err := parse.ParseTimetable(body, t.Name, t.EVA)
	if err != nil {
		c.skip(state, Skip{Name: t.Name, EVA: t.EVA, Reason: SkipMalformed, Err: err})
		return
	}
	state.Frontier.MarkQueried(tt.Station)

	for _, err := range tt.Errors {
		c.logger.Warn("skipping journey", "station", tt.Station, "eva", t.EVA, "error", err)
	}

	added := 0
	for _, js := range tt.Stops {
		state.addStop(js)
		if state.Frontier.Push(js.Terminal) {
			added++
		}
	}

	c.logger.Info(
		"queried station",
		"station", tt.Station,
		"eva", t.EVA,
		"stops", len(tt.Stops),
		"skipped", len(tt.Errors),
		"new_stations", added,
		"pending", state.Frontier.Pending(),
		"queried", len(state.Frontier.queried),
	)
}

// Pops pending names until one resolves to an EVA number. Names that
// don't resolve are marked queried and skipped. Returns false once
// the frontier is empty. Only a fatal lookup failure is an error.
func (c *Crawler) SelectNext(ctx context.Context, state *CrawlState) (Target, bool, error) {
	for {
		name, ok := state.Frontier.Pop()
		if !ok {
			return Target{}, false, nil
		}

		eva, found, err := c.resolve(ctx, state, name)
		if err != nil {
			state.Frontier.MarkQueried(name)
			return Target{}, false, err
		}
		if found {
			return Target{Name: name, EVA: eva}, true, nil
		}

		state.Frontier.MarkQueried(name)
	}
}

func (c *Crawler) resolve(ctx context.Context, state *CrawlState, name string) (int64, bool, error) {
	if eva, ok := c.Index.EVA(name); ok {
		return eva, true, nil
	}

	if !c.LookupFallback {
		c.skip(state, Skip{Name: name, Reason: SkipNoEVA})
		return 0, false, nil
	}

	if err := c.Pacer.Wait(ctx); err != nil {
		return 0, false, err
	}
	state.Lookups++
	eva, _, err := c.API.LookupStation(ctx, name)
	switch {
	case err == nil && eva > 0:
		c.logger.Debug("resolved by lookup", "station", name, "eva", eva)
		return eva, true, nil
	case err == nil:
		c.skip(state, Skip{Name: name, Reason: SkipNoEVA})
	case errors.Is(err, parse.ErrNoStation):
		c.skip(state, Skip{Name: name, Reason: SkipNoEVA, Err: err})
	case errors.Is(err, parse.ErrMalformed):
		c.skip(state, Skip{Name: name, Reason: SkipMalformed, Err: err})
	case errors.Is(err, downloader.ErrTooLarge):
		c.skip(state, Skip{Name: name, Reason: SkipTooLarge, Err: err})
	case isFatal(err):
		return 0, false, fmt.Errorf("looking up %s: %w", name, err)
	default:
		c.skip(state, Skip{Name: name, Reason: SkipNoEVA, Err: err})
	}
	return 0, false, nil
}

func (c *Crawler) skip(state *CrawlState, s Skip) {
	state.Skipped = append(state.Skipped, s)
	if s.Err != nil {
		c.logger.Warn("skipping station", "station", s.Name, "eva", s.EVA, "reason", s.Reason.String(), "error", s.Err)
	} else {
		c.logger.Info("skipping station", "station", s.Name, "eva", s.EVA, "reason", s.Reason.String())
	}
}

func (c *Crawler) result(state *CrawlState, complete bool) *CrawlResult {
	return &CrawlResult{
		Stops:    state.Stops,
		Queried:  state.Frontier.Queried(),
		Skipped:  state.Skipped,
		Queries:  state.Queries,
		Lookups:  state.Lookups,
		Complete: complete,
	}
}

// Crawls from the seed station until the frontier is empty. If the
// seed has no EVA number, it is resolved like any discovered station.
//
// On a fatal error (auth rejected, API unavailable, transport failure,
// cancelled context) the partial result is returned along with the
// error. Hitting MaxQueries returns an incomplete result and no
// error.
func (c *Crawler) Crawl(ctx context.Context, seed Target) (*CrawlResult, error) {
	state := NewCrawlState()

	target := seed
	if target.EVA == 0 {
		eva, found, err := c.resolve(ctx, state, seed.Name)
		if err != nil {
			return c.result(state, false), err
		}
		if !found {
			return c.result(state, false), fmt.Errorf("seed station %q has no EVA number", seed.Name)
		}
		target.EVA = eva
	}

	c.logger.Info("starting crawl", "seed", target.Name, "eva", target.EVA, "date", c.Date, "hour", c.Hour)

	for {
		if c.MaxQueries > 0 && state.Queries >= c.MaxQueries {
			c.logger.Warn("query limit reached", "max_queries", c.MaxQueries, "pending", state.Frontier.Pending())
			return c.result(state, false), nil
		}

		body, err := c.Query(ctx, state, target)
		switch {
		case err == nil:
			c.Apply(state, target, body)
		case errors.Is(err, downloader.ErrTooLarge):
			state.Frontier.MarkQueried(target.Name)
			c.skip(state, Skip{Name: target.Name, EVA: target.EVA, Reason: SkipTooLarge, Err: err})
		case isFatal(err):
			c.logger.Error("aborting crawl", "station", target.Name, "eva", target.EVA, "error", err)
			return c.result(state, false), fmt.Errorf("querying %s (%d): %w", target.Name, target.EVA, err)
		default:
			state.Frontier.MarkQueried(target.Name)
			c.skip(state, Skip{Name: target.Name, EVA: target.EVA, Reason: SkipRejected, Err: err})
		}

		next, ok, err := c.SelectNext(ctx, state)
		if err != nil {
			c.logger.Error("aborting crawl", "error", err)
			return c.result(state, false), err
		}
		if !ok {
			break
		}
		target = next
	}

	c.logger.Info(
		"crawl finished",
		"queries", state.Queries,
		"lookups", state.Lookups,
		"stations", len(state.Frontier.queried),
		"stops", len(state.Stops),
		"skipped", len(state.Skipped),
	)

	return c.result(state, true), nil
}
