package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"tsde.dev/stationgraph/model"
)

// The registry has been seen with both numeric and string ids and
// categories. This accepts either.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type stationsJSON struct {
	Stations []stationJSON `json:"stations"`
}

type stationJSON struct {
	ID    flexString `json:"stationID"`
	Names map[string]struct {
		Name string `json:"name"`
	} `json:"names"`
	Address *struct {
		PostalCode flexString `json:"postalCode"`
		City       string     `json:"city"`
	} `json:"address"`
	Category flexString `json:"stationCategory"`
	Position *struct {
		Lat *float64 `json:"latitude"`
		Lon *float64 `json:"longitude"`
	} `json:"position"`
}

// Parses the station registry (stations.json). All optional fields
// may be missing; the German name is used as display name.
//
// Returned stations are unresolved and in file order.
func ParseStations(data io.Reader) ([]*model.Station, error) {
	raw := stationsJSON{}
	if err := json.NewDecoder(data).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding stations json: %w", err)
	}

	seen := map[string]bool{}
	stations := make([]*model.Station, 0, len(raw.Stations))
	for i, st := range raw.Stations {
		id := strings.TrimSpace(string(st.ID))
		if id == "" {
			return nil, fmt.Errorf("empty stationID (entry %d)", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("repeated stationID '%s'", id)
		}
		seen[id] = true

		name := st.Names["DE"].Name

		station := &model.Station{
			ID:             id,
			Name:           name,
			NormalizedName: model.NormalizeName(name),
			Category:       model.ParseCategory(string(st.Category)),
			Resolution:     model.Unresolved,
		}

		if st.Address != nil {
			station.PostalCode = string(st.Address.PostalCode)
			station.City = st.Address.City
		}

		if st.Position != nil && st.Position.Lat != nil && st.Position.Lon != nil {
			station.Position = &model.Position{
				Lat: *st.Position.Lat,
				Lon: *st.Position.Lon,
			}
		}

		stations = append(stations, station)
	}

	return stations, nil
}
