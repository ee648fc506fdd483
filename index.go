package stationgraph

import (
	"tsde.dev/stationgraph/model"
)

// Looks up stations by name. Names are compared normalized, and when
// several stations share a normalized name the first one in table
// order wins.
type StationIndex struct {
	byName map[string]*model.Station
}

func NewStationIndex(stations []*model.Station) *StationIndex {
	idx := &StationIndex{
		byName: map[string]*model.Station{},
	}
	for _, st := range stations {
		key := st.NormalizedName
		if key == "" {
			key = model.NormalizeName(st.Name)
		}
		if key == "" {
			continue
		}
		if _, found := idx.byName[key]; !found {
			idx.byName[key] = st
		}
	}
	return idx
}

func (idx *StationIndex) Lookup(name string) (*model.Station, bool) {
	st, found := idx.byName[model.NormalizeName(name)]
	return st, found
}

// EVA number of the named station, if it has one.
func (idx *StationIndex) EVA(name string) (int64, bool) {
	st, found := idx.Lookup(name)
	if !found || !st.HasEVA() {
		return 0, false
	}
	return st.EVA, true
}

func (idx *StationIndex) HasPosition(name string) bool {
	st, found := idx.Lookup(name)
	return found && st.Position != nil
}

func (idx *StationIndex) Len() int {
	return len(idx.byName)
}
