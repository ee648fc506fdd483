package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Holds all external facing types and constants.

// Station category as published in the station registry. Categories
// are ordered from 1 (largest) to 7. Stations without a category get
// CategoryUnknown.
type Category int

const (
	CategoryMin     Category = 1
	CategoryMax     Category = 7
	CategoryUnknown Category = 8
)

// Parses the registry's "CATEGORY_3" form. Anything that can't be
// parsed yields CategoryUnknown.
func ParseCategory(s string) Category {
	s = strings.TrimSpace(s)
	if s == "" {
		return CategoryUnknown
	}
	n, err := strconv.Atoi(s[len(s)-1:])
	if err != nil || Category(n) < CategoryMin || Category(n) > CategoryUnknown {
		return CategoryUnknown
	}
	return Category(n)
}

// How a Station got (or failed to get) its EVA number. Every station
// carries exactly one of these.
type Resolution int

const (
	Unresolved Resolution = iota
	ResolvedExact
	ResolvedGeo
	ResolvedManual
	Ambiguous
)

func (r Resolution) String() string {
	switch r {
	case Unresolved:
		return "unresolved"
	case ResolvedExact:
		return "exact"
	case ResolvedGeo:
		return "geo"
	case ResolvedManual:
		return "manual"
	case Ambiguous:
		return "ambiguous"
	}
	return fmt.Sprintf("resolution(%d)", int(r))
}

func (r Resolution) Resolved() bool {
	return r == ResolvedExact || r == ResolvedGeo || r == ResolvedManual
}

type Position struct {
	Lat float64
	Lon float64
}

type Station struct {
	ID             string
	Name           string
	NormalizedName string
	PostalCode     string
	City           string
	Category       Category

	// Nil when the registry has no coordinates for the station.
	Position *Position

	// External (EVA) identifier. Zero unless Resolution is one of
	// the resolved states.
	EVA        int64
	Resolution Resolution
}

func (s *Station) HasEVA() bool {
	return s.EVA != 0 && s.Resolution.Resolved()
}

// A row of the EVA registry (D_Bahnhof_*.csv).
type RegistryEntry struct {
	EVA            int64
	DS100          string
	Name           string
	NormalizedName string
	Position       *Position
}

type EventType string

const (
	EventArrival   EventType = "ar"
	EventDeparture EventType = "dp"
)

// The three parts of a timetable stop id.
//
// Date is the planned start date of the trip (YYMMdd). Real ids
// carry the planned start time (HHmm) right after the date, which
// ends up in StartTime.
type StopID struct {
	DailyTripID string
	Date        string
	StartTime   string
	Position    string
}

func (id StopID) String() string {
	return id.DailyTripID + "-" + id.Date + id.StartTime + "-" + id.Position
}

// A single arrival or departure observed when querying a station's
// timetable.
type JourneyStop struct {
	ID          string
	StopID      StopID
	StationName string
	EVA         int64
	Category    string
	Time        string
	Line        string
	EventType   EventType
	Path        []string
	Terminal    string
}

// Planned time of the event. Timetable times are YYMMddHHmm in German
// local time.
func (j *JourneyStop) PlannedTime(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("0601021504", j.Time, loc)
}
