// Package gazetteer is an in-memory geocoder over the packaged settlement
// feature collection. It is loaded once at startup and is read-only after
// that, so it can be shared freely across goroutines.
package gazetteer

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/trempist/trempist/pkg/geo"
	"gopkg.in/yaml.v3"
)

//go:embed data/settlements.json
var settlementsRaw []byte

//go:embed data/aliases.yaml
var aliasesRaw []byte

// Entry is one settlement from the feature collection.
type Entry struct {
	ID         string  `json:"id"`
	NameHe     string  `json:"name_he"`
	NameEn     string  `json:"name_en"`
	Kind       string  `json:"kind"`
	Population int     `json:"population"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

// Point returns the settlement's coordinate.
func (e *Entry) Point() geo.Point { return geo.Point{Lat: e.Lat, Lon: e.Lon} }

// Gazetteer maps normalized place labels to settlements.
type Gazetteer struct {
	entries []Entry
	byName  map[string]*Entry
}

// Load builds the gazetteer from the embedded settlement and alias assets.
func Load() (*Gazetteer, error) {
	return load(settlementsRaw, aliasesRaw)
}

func load(settlements, aliases []byte) (*Gazetteer, error) {
	var entries []Entry
	if err := json.Unmarshal(settlements, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse settlements asset: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("settlements asset is empty")
	}

	g := &Gazetteer{
		entries: entries,
		byName:  make(map[string]*Entry, 3*len(entries)),
	}

	// Ambiguity resolves deterministically: highest population wins, then
	// lexicographic id.
	for i := range g.entries {
		e := &g.entries[i]
		g.index(Normalize(e.NameHe), e)
		g.index(Normalize(e.NameEn), e)
	}

	var aliasTable map[string]string
	if err := yaml.Unmarshal(aliases, &aliasTable); err != nil {
		return nil, fmt.Errorf("failed to parse aliases asset: %w", err)
	}
	for alias, canonical := range aliasTable {
		target, ok := g.byName[Normalize(canonical)]
		if !ok {
			return nil, fmt.Errorf("alias %q points at unknown settlement %q", alias, canonical)
		}
		g.index(Normalize(alias), target)
	}

	return g, nil
}

func (g *Gazetteer) index(name string, e *Entry) {
	if name == "" {
		return
	}
	cur, ok := g.byName[name]
	if !ok {
		g.byName[name] = e
		return
	}
	if e.Population > cur.Population ||
		(e.Population == cur.Population && e.ID < cur.ID) {
		g.byName[name] = e
	}
}

// Lookup resolves a user-written label to a settlement. Returns nil when the
// label is unknown; it never fails.
func (g *Gazetteer) Lookup(label string) *Entry {
	return g.byName[Normalize(label)]
}

// LookupPoint is a convenience wrapper returning just the coordinate.
func (g *Gazetteer) LookupPoint(label string) (geo.Point, bool) {
	e := g.Lookup(label)
	if e == nil {
		return geo.Point{}, false
	}
	return e.Point(), true
}

// SameSettlement reports whether two labels resolve to the same entry.
// Unknown labels never compare equal through here.
func (g *Gazetteer) SameSettlement(a, b string) bool {
	ea, eb := g.Lookup(a), g.Lookup(b)
	return ea != nil && eb != nil && ea.ID == eb.ID
}

// KnownNames returns every indexed lookup key in sorted order, for
// diagnostics.
func (g *Gazetteer) KnownNames() []string {
	names := make([]string, 0, len(g.byName))
	for name := range g.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of settlement entries.
func (g *Gazetteer) Len() int { return len(g.entries) }
