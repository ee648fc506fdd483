package parse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsde.dev/stationgraph/model"
)

func TestParseStations(t *testing.T) {
	for _, tc := range []struct {
		name     string
		content  string
		stations []*model.Station
		err      bool
	}{
		{
			"full station",
			`{"stations": [{
  "stationID": "5896",
  "names": {"DE": {"name": "Siegen Hbf"}},
  "address": {"postalCode": "57072", "city": "Siegen"},
  "stationCategory": "CATEGORY_2",
  "position": {"longitude": 8.0174, "latitude": 50.8753}
}]}`,
			[]*model.Station{{
				ID:             "5896",
				Name:           "Siegen Hbf",
				NormalizedName: "SiegenHbf",
				PostalCode:     "57072",
				City:           "Siegen",
				Category:       2,
				Position:       &model.Position{Lat: 50.8753, Lon: 8.0174},
				Resolution:     model.Unresolved,
			}},
			false,
		},

		{
			"numeric id and category, no optional fields",
			`{"stations": [{"stationID": 3729, "names": {"DE": {"name": "Ebersbach (Sachs)"}}, "stationCategory": 3}]}`,
			[]*model.Station{{
				ID:             "3729",
				Name:           "Ebersbach (Sachs)",
				NormalizedName: "EbersbachSachs",
				Category:       3,
			}},
			false,
		},

		{
			"missing category and partial position",
			`{"stations": [{"stationID": "1", "names": {"DE": {"name": "A"}}, "position": {"latitude": 50.1}}]}`,
			[]*model.Station{{
				ID:             "1",
				Name:           "A",
				NormalizedName: "A",
				Category:       model.CategoryUnknown,
			}},
			false,
		},

		{
			"missing name",
			`{"stations": [{"stationID": "1", "names": {"EN": {"name": "A"}}}]}`,
			[]*model.Station{{
				ID:       "1",
				Category: model.CategoryUnknown,
			}},
			false,
		},

		{
			"repeated stationID",
			`{"stations": [{"stationID": "1"}, {"stationID": 1}]}`,
			nil,
			true,
		},

		{
			"blank stationID",
			`{"stations": [{"names": {"DE": {"name": "A"}}}]}`,
			nil,
			true,
		},

		{
			"not json",
			`<stations/>`,
			nil,
			true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			stations, err := ParseStations(bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.stations, stations)
		})
	}
}
