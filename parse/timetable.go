package parse

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"tsde.dev/stationgraph/model"
)

type timetableXML struct {
	XMLName xml.Name  `xml:"timetable"`
	Station string    `xml:"station,attr"`
	Stops   []stopXML `xml:"s"`
}

type stopXML struct {
	ID        string        `xml:"id,attr"`
	TripLabel *tripLabelXML `xml:"tl"`
	Arrival   *eventXML     `xml:"ar"`
	Departure *eventXML     `xml:"dp"`
}

type tripLabelXML struct {
	Category string `xml:"c,attr"`
	Number   string `xml:"n,attr"`
	Owner    string `xml:"o,attr"`
}

type eventXML struct {
	Time string `xml:"pt,attr"`
	Line string `xml:"l,attr"`
	Path string `xml:"ppth,attr"`
}

type stationsXML struct {
	XMLName  xml.Name     `xml:"stations"`
	Stations []stationXML `xml:"station"`
}

type stationXML struct {
	Name string `xml:"name,attr"`
	EVA  string `xml:"eva,attr"`
}

// Journey stops extracted from one /plan response.
type Timetable struct {
	// Station name as reported by the API.
	Station string

	Stops []*model.JourneyStop

	// Entries that were skipped, one error per entry.
	Errors []error
}

// Parses a /plan response for the station with the given name and EVA
// number. The name is used only if the response doesn't carry one.
//
// An undecodable document is an ErrMalformed error. Problems with
// individual entries are collected in Timetable.Errors and the entry
// is dropped.
func ParseTimetable(data []byte, stationName string, eva int64) (*Timetable, error) {
	doc := timetableXML{}
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "decoding timetable xml: %v", err)
	}

	tt := &Timetable{
		Station: strings.Trim(doc.Station, `\`),
	}
	if tt.Station == "" {
		tt.Station = stationName
	}

	for i, s := range doc.Stops {
		stop, err := parseStop(s, tt.Station, eva)
		if err != nil {
			tt.Errors = append(tt.Errors, errors.Wrapf(err, "entry %d (id '%s')", i, s.ID))
			continue
		}
		tt.Stops = append(tt.Stops, stop)
	}

	return tt, nil
}

func parseStop(s stopXML, stationName string, eva int64) (*model.JourneyStop, error) {
	stopID, err := SplitStopID(s.ID)
	if err != nil {
		return nil, err
	}

	if s.TripLabel == nil {
		return nil, errors.Wrap(ErrMalformed, "missing tl")
	}

	var event *eventXML
	var eventType model.EventType
	switch {
	case s.Arrival != nil && s.Departure != nil:
		return nil, errors.Wrap(ErrEventTags, "found both")
	case s.Arrival != nil:
		event, eventType = s.Arrival, model.EventArrival
	case s.Departure != nil:
		event, eventType = s.Departure, model.EventDeparture
	default:
		return nil, errors.Wrap(ErrEventTags, "found neither")
	}

	if event.Path == "" {
		return nil, ErrEmptyPath
	}
	path := strings.Split(event.Path, "|")

	// Departing trains are followed to the last stop, arriving
	// ones back to their first.
	terminal := path[len(path)-1]
	if eventType == model.EventArrival {
		terminal = path[0]
	}

	return &model.JourneyStop{
		ID:          s.ID,
		StopID:      stopID,
		StationName: stationName,
		EVA:         eva,
		Category:    s.TripLabel.Category,
		Time:        event.Time,
		Line:        event.Line,
		EventType:   eventType,
		Path:        path,
		Terminal:    terminal,
	}, nil
}

// Splits a stop id into daily trip id, date and position.
//
// The first character is set aside (it may be the sign of the trip
// id), the rest is split on the next two dashes, and the trip id gets
// its first character back. The middle part must start with a 6 digit
// YYMMdd date; digits after it are the planned start time. The last
// part is the position of the stop within the trip and may itself
// contain dashes.
//
//	A1234-560101-5                      => A1234, 560101, "", 5
//	-7874571842864554321-1403311221-11  => -7874571842864554321, 140331, 1221, 11
func SplitStopID(id string) (model.StopID, error) {
	if len(id) < 2 {
		return model.StopID{}, errors.Wrapf(ErrStopID, "'%s' is too short", id)
	}

	parts := strings.SplitN(id[1:], "-", 3)
	if len(parts) != 3 {
		return model.StopID{}, errors.Wrapf(ErrStopID, "'%s' has %d dash separated parts, expected 3", id, len(parts))
	}

	tripID := id[:1] + parts[0]
	if tripID == "-" || tripID == "+" {
		return model.StopID{}, errors.Wrapf(ErrStopID, "'%s' has no daily trip id", id)
	}
	if parts[2] == "" {
		return model.StopID{}, errors.Wrapf(ErrStopID, "'%s' has no position", id)
	}

	date := parts[1]
	if len(date) < 6 || !isDigits(date) {
		return model.StopID{}, errors.Wrapf(ErrStopID, "'%s' has invalid date '%s'", id, date)
	}

	return model.StopID{
		DailyTripID: tripID,
		Date:        date[:6],
		StartTime:   date[6:],
		Position:    parts[2],
	}, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Parses a /station/{name} response. Returns EVA number and name of
// the first station listed.
func ParseStationLookup(data []byte) (int64, string, error) {
	doc := stationsXML{}
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return 0, "", errors.Wrapf(ErrMalformed, "decoding station xml: %v", err)
	}

	if len(doc.Stations) == 0 {
		return 0, "", ErrNoStation
	}

	first := doc.Stations[0]
	eva, err := strconv.ParseInt(strings.TrimSpace(first.EVA), 10, 64)
	if err != nil {
		return 0, "", errors.Wrapf(ErrMalformed, "invalid eva '%s'", first.EVA)
	}

	return eva, first.Name, nil
}
