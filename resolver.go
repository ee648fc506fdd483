package stationgraph

import (
	"log/slog"
	"slices"

	"golang.org/x/exp/maps"

	"tsde.dev/stationgraph/model"
)

const DefaultGeoThreshold = 0.01

// A station the geo pass found more than one registry entry for.
type AmbiguousMatch struct {
	StationID  string
	Name       string
	Candidates []int64
}

type ResolveReport struct {
	Counts    map[model.Resolution]int
	Ambiguous []AmbiguousMatch

	// Override station ids that aren't in the station table.
	UnknownOverrides []string
}

// Assigns EVA numbers to stations by matching them against the EVA
// registry.
//
// Matching is done in three passes. First on normalized name, taking
// the first registry entry in input order on ties. Then, for stations
// still unresolved, by position: registry entries strictly closer than
// Threshold degrees are candidates, and a station with exactly one
// candidate is resolved. Finally the manual Overrides (station id to
// EVA) are applied, replacing whatever the earlier passes decided.
type Resolver struct {
	Threshold float64
	Overrides map[string]int64

	logger *slog.Logger
}

func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		Threshold: DefaultGeoThreshold,
		Overrides: map[string]int64{},
		logger:    logger.With("component", "resolver"),
	}
}

// Resolves stations in place. Each station ends up with exactly one
// Resolution. Prior resolutions are discarded.
func (r *Resolver) Resolve(stations []*model.Station, registry []*model.RegistryEntry) *ResolveReport {
	report := &ResolveReport{
		Counts:           map[model.Resolution]int{},
		Ambiguous:        []AmbiguousMatch{},
		UnknownOverrides: []string{},
	}

	for _, st := range stations {
		if st.NormalizedName == "" {
			st.NormalizedName = model.NormalizeName(st.Name)
		}
		st.EVA = 0
		st.Resolution = model.Unresolved
	}
	for _, e := range registry {
		if e.NormalizedName == "" {
			e.NormalizedName = model.NormalizeName(e.Name)
		}
	}

	r.resolveExact(stations, registry)
	r.resolveGeo(stations, registry, report)
	r.applyOverrides(stations, report)

	for _, st := range stations {
		report.Counts[st.Resolution]++
	}

	r.logger.Info(
		"resolved stations",
		"stations", len(stations),
		"registry_entries", len(registry),
		"exact", report.Counts[model.ResolvedExact],
		"geo", report.Counts[model.ResolvedGeo],
		"manual", report.Counts[model.ResolvedManual],
		"ambiguous", report.Counts[model.Ambiguous],
		"unresolved", report.Counts[model.Unresolved],
	)

	return report
}

func (r *Resolver) resolveExact(stations []*model.Station, registry []*model.RegistryEntry) {
	byName := map[string]*model.RegistryEntry{}
	for _, e := range registry {
		if e.NormalizedName == "" {
			continue
		}
		if _, found := byName[e.NormalizedName]; !found {
			byName[e.NormalizedName] = e
		}
	}

	for _, st := range stations {
		if st.NormalizedName == "" {
			continue
		}
		if e, found := byName[st.NormalizedName]; found {
			st.EVA = e.EVA
			st.Resolution = model.ResolvedExact
		}
	}
}

func (r *Resolver) resolveGeo(stations []*model.Station, registry []*model.RegistryEntry, report *ResolveReport) {
	located := []*model.RegistryEntry{}
	for _, e := range registry {
		if e.Position != nil {
			located = append(located, e)
		}
	}
	if len(located) == 0 {
		r.logger.Warn("registry has no coordinates, skipping geo matching")
		return
	}

	for _, st := range stations {
		if st.Resolution != model.Unresolved || st.Position == nil {
			continue
		}

		candidates := map[int64]bool{}
		for _, e := range located {
			if st.Position.DegreeDistance(*e.Position) < r.Threshold {
				candidates[e.EVA] = true
			}
		}

		switch len(candidates) {
		case 0:
			r.logger.Debug("no match", "station_id", st.ID, "name", st.Name)
		case 1:
			for eva := range candidates {
				st.EVA = eva
			}
			st.Resolution = model.ResolvedGeo
		default:
			evas := maps.Keys(candidates)
			slices.Sort(evas)
			st.Resolution = model.Ambiguous
			report.Ambiguous = append(report.Ambiguous, AmbiguousMatch{
				StationID:  st.ID,
				Name:       st.Name,
				Candidates: evas,
			})
			r.logger.Warn(
				"ambiguous geo match, needs manual review",
				"station_id", st.ID,
				"name", st.Name,
				"candidates", evas,
			)
		}
	}
}

func (r *Resolver) applyOverrides(stations []*model.Station, report *ResolveReport) {
	byID := map[string]*model.Station{}
	for _, st := range stations {
		byID[st.ID] = st
	}

	ids := maps.Keys(r.Overrides)
	slices.Sort(ids)
	for _, id := range ids {
		st, found := byID[id]
		if !found {
			r.logger.Warn("override for unknown station", "station_id", id)
			report.UnknownOverrides = append(report.UnknownOverrides, id)
			continue
		}
		if st.Resolution.Resolved() && st.EVA != r.Overrides[id] {
			r.logger.Info(
				"override replaces match",
				"station_id", id,
				"name", st.Name,
				"was", st.EVA,
				"now", r.Overrides[id],
			)
		}
		st.EVA = r.Overrides[id]
		st.Resolution = model.ResolvedManual
	}
}
