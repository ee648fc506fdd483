package parse

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"tsde.dev/stationgraph/model"
)

// A row of D_Bahnhof_*.csv. Coordinates are kept as strings since the
// file uses comma as decimal separator.
type RegistryCSV struct {
	EVA      string `csv:"EVA_NR"`
	DS100    string `csv:"DS100"`
	Name     string `csv:"NAME"`
	Traffic  string `csv:"Verkehr"`
	Lon      string `csv:"Laenge"`
	Lat      string `csv:"Breite"`
	Operator string `csv:"Betreiber_Name"`
	Status   string `csv:"Status"`
}

// Parsed EVA registry. Rows with an unusable EVA number end up in
// Errors and are left out of Entries.
type Registry struct {
	Entries []*model.RegistryEntry
	Errors  []error
}

// Parses the EVA registry. Rows without EVA number are dropped. Rows
// with missing or broken coordinates are kept, without Position.
func ParseRegistry(data io.Reader) (*Registry, error) {
	registryCsv := []*RegistryCSV{}
	if err := gocsv.UnmarshalCSV(registryCSVReader(data), &registryCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling registry csv: %w", err)
	}

	registry := &Registry{
		Entries: make([]*model.RegistryEntry, 0, len(registryCsv)),
	}
	for i, row := range registryCsv {
		evaStr := strings.TrimSpace(row.EVA)
		if evaStr == "" {
			continue
		}

		eva, err := strconv.ParseInt(evaStr, 10, 64)
		if err != nil || eva <= 0 {
			registry.Errors = append(registry.Errors, fmt.Errorf("invalid EVA_NR '%s' (row %d)", row.EVA, i+1))
			continue
		}

		registry.Entries = append(registry.Entries, &model.RegistryEntry{
			EVA:            eva,
			DS100:          strings.TrimSpace(row.DS100),
			Name:           row.Name,
			NormalizedName: model.NormalizeName(row.Name),
			Position:       parseLocalePosition(row.Lat, row.Lon),
		})
	}

	return registry, nil
}
