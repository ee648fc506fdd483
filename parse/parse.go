package parse

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"tsde.dev/stationgraph/model"
)

var (
	// Payload couldn't be decoded at all.
	ErrMalformed = errors.New("malformed payload")

	// A timetable entry carried both or neither of the ar/dp
	// elements.
	ErrEventTags = errors.New("expected exactly one of ar/dp")

	// A timetable entry had no path.
	ErrEmptyPath = errors.New("empty path")

	// A stop id didn't follow the <trip>-<YYMMdd[HHmm]>-<position>
	// grammar.
	ErrStopID = errors.New("invalid stop id")

	// A station lookup returned no stations.
	ErrNoStation = errors.New("no station in response")
)

// Reader for the semicolon separated registry dumps. The BOM reader
// strips unicode BOMs if present, and LazyQuotes survives the odd
// stray quote in station names.
func registryCSVReader(in io.Reader) gocsv.CSVReader {
	r := csv.NewReader(bom.NewReader(in))
	r.Comma = ';'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return r
}

// Parses a decimal number written with a comma as decimal separator
// ("50,8736"). A point is accepted too.
func parseLocaleFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", ".")
	return strconv.ParseFloat(s, 64)
}

// Builds a Position from two locale formatted strings. Returns nil if
// either is blank or unparsable.
func parseLocalePosition(lat, lon string) *model.Position {
	if strings.TrimSpace(lat) == "" || strings.TrimSpace(lon) == "" {
		return nil
	}
	la, err := parseLocaleFloat(lat)
	if err != nil {
		return nil
	}
	lo, err := parseLocaleFloat(lon)
	if err != nil {
		return nil
	}
	return &model.Position{Lat: la, Lon: lo}
}
