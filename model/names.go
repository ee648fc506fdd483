package model

import (
	"strings"
)

// Applied in order. Later rules see the output of earlier ones.
var nameReplacements = []struct {
	search string
	repl   string
}{
	{"Kr ", ""},
	{"Hauptbahnhof", "Hbf"},
	{"Bahnhof", "bf"},
	{"bahnhof", "bf"},
	{" bei ", "b"},
	{"(bei", "b"},
}

// Canonicalizes a station name for use as a join key between the
// station registry, the EVA registry and timetable responses.
//
// Abbreviations are expanded/contracted first, then everything that
// isn't a German letter is dropped. Case is kept. Stripping can glue
// together a new abbreviation ("Bahn-hof"), so both steps repeat until
// the name stops changing. Every step shortens the name, so this
// terminates.
func NormalizeName(name string) string {
	for {
		next := normalizeOnce(name)
		if next == name {
			return name
		}
		name = next
	}
}

func normalizeOnce(name string) string {
	for _, r := range nameReplacements {
		name = strings.ReplaceAll(name, r.search, r.repl)
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isGermanLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isGermanLetter(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		return true
	}
	switch r {
	case 'Ä', 'ä', 'Ö', 'ö', 'Ü', 'ü', 'ß':
		return true
	}
	return false
}
