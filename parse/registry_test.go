package parse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsde.dev/stationgraph/model"
)

func TestParseRegistry(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		entries []*model.RegistryEntry
		rowErrs int
		err     bool
	}{
		{
			"minimal",
			`
EVA_NR;NAME
8000046;Siegen Hbf`,
			[]*model.RegistryEntry{
				{EVA: 8000046, Name: "Siegen Hbf", NormalizedName: "SiegenHbf"},
			},
			0,
			false,
		},

		{
			"full row with locale decimals",
			`
EVA_NR;DS100;IFOPT;NAME;Verkehr;Laenge;Breite;Betreiber_Name;Betreiber_Nr;Status
8000046;KSI;de:05970:8000046;Siegen Hbf;RV;8,0174;50,8753;DB Station und Service AG;5896;
8000105;FF;de:06412:7;Frankfurt(Main)Hbf;FV;8,663003;50,106817;DB Station und Service AG;1866;`,
			[]*model.RegistryEntry{
				{
					EVA:            8000046,
					DS100:          "KSI",
					Name:           "Siegen Hbf",
					NormalizedName: "SiegenHbf",
					Position:       &model.Position{Lat: 50.8753, Lon: 8.0174},
				},
				{
					EVA:            8000105,
					DS100:          "FF",
					Name:           "Frankfurt(Main)Hbf",
					NormalizedName: "FrankfurtMainHbf",
					Position:       &model.Position{Lat: 50.106817, Lon: 8.663003},
				},
			},
			0,
			false,
		},

		{
			"byte order mark",
			"\xEF\xBB\xBFEVA_NR;NAME\n8000046;Siegen Hbf",
			[]*model.RegistryEntry{
				{EVA: 8000046, Name: "Siegen Hbf", NormalizedName: "SiegenHbf"},
			},
			0,
			false,
		},

		{
			"missing and broken coordinates",
			`
EVA_NR;NAME;Laenge;Breite
1;A;;50,1
2;B;8,x;50,1
3;C;8,1;50,2`,
			[]*model.RegistryEntry{
				{EVA: 1, Name: "A", NormalizedName: "A"},
				{EVA: 2, Name: "B", NormalizedName: "B"},
				{EVA: 3, Name: "C", NormalizedName: "C", Position: &model.Position{Lat: 50.2, Lon: 8.1}},
			},
			0,
			false,
		},

		{
			"no coordinate columns",
			`
EVA_NR;NAME
1;A`,
			[]*model.RegistryEntry{
				{EVA: 1, Name: "A", NormalizedName: "A"},
			},
			0,
			false,
		},

		{
			"blank EVA_NR is skipped",
			`
EVA_NR;NAME
;A
2;B`,
			[]*model.RegistryEntry{
				{EVA: 2, Name: "B", NormalizedName: "B"},
			},
			0,
			false,
		},

		{
			"invalid EVA_NR rows are skipped",
			`
EVA_NR;NAME
8000046;Siegen Hbf
n/a;Kaputt
-3;Negativ
8000001;Aachen Hbf`,
			[]*model.RegistryEntry{
				{EVA: 8000046, Name: "Siegen Hbf", NormalizedName: "SiegenHbf"},
				{EVA: 8000001, Name: "Aachen Hbf", NormalizedName: "AachenHbf"},
			},
			2,
			false,
		},

		{
			"empty file",
			``,
			nil,
			0,
			true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			registry, err := ParseRegistry(bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, registry.Errors, tc.rowErrs)
			if tc.rowErrs > 0 {
				assert.Contains(t, registry.Errors[0].Error(), "'n/a' (row 2)")
			}
			entries := registry.Entries
			assert.Equal(t, len(tc.entries), len(entries))
			for i := range tc.entries {
				assert.Equal(t, tc.entries[i].EVA, entries[i].EVA)
				assert.Equal(t, tc.entries[i].DS100, entries[i].DS100)
				assert.Equal(t, tc.entries[i].Name, entries[i].Name)
				assert.Equal(t, tc.entries[i].NormalizedName, entries[i].NormalizedName)
				if tc.entries[i].Position == nil {
					assert.Nil(t, entries[i].Position)
					continue
				}
				require.NotNil(t, entries[i].Position)
				assert.InDelta(t, tc.entries[i].Position.Lat, entries[i].Position.Lat, 1e-9)
				assert.InDelta(t, tc.entries[i].Position.Lon, entries[i].Position.Lon, 1e-9)
			}
		})
	}
}

func TestParseLocaleFloat(t *testing.T) {
	f, err := parseLocaleFloat("50,8753")
	require.NoError(t, err)
	assert.InDelta(t, 50.8753, f, 1e-9)

	f, err = parseLocaleFloat(" 8.0174 ")
	require.NoError(t, err)
	assert.InDelta(t, 8.0174, f, 1e-9)

	_, err = parseLocaleFloat("8,0,1")
	assert.Error(t, err)
}
