package domain

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed data/personas.json
var personasJSON []byte

// Persona is a simulated domain expert tied to one globe location.
type Persona struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	Location   string   `json:"location"`
	Industry   string   `json:"industry"`
	Expertise  []string `json:"expertise"`
	Experience string   `json:"experience"`
	Bio        string   `json:"bio,omitempty"`
	Insights   []string `json:"insights,omitempty"`
}

// LocationPrefix returns the city part of the persona location.
func (p *Persona) LocationPrefix() string {
	return LocationPrefix(p.Location)
}

// LocationPrefix returns the text before the first comma, trimmed.
// "New York, USA" -> "New York", "Singapore" -> "Singapore".
func LocationPrefix(location string) string {
	if idx := strings.Index(location, ","); idx >= 0 {
		location = location[:idx]
	}
	return strings.TrimSpace(location)
}

// PersonaCatalog is the read-only persona directory. It is built once and
// never mutated, so concurrent readers need no locking.
type PersonaCatalog struct {
	personas   []*Persona
	byID       map[string]*Persona
	byLocation map[string][]*Persona
	locations  []string
}

// LoadPersonaCatalog decodes the embedded persona directory.
func LoadPersonaCatalog() (*PersonaCatalog, error) {
	var personas []*Persona
	if err := json.Unmarshal(personasJSON, &personas); err != nil {
		return nil, fmt.Errorf("failed to decode embedded personas: %w", err)
	}
	return NewPersonaCatalog(personas)
}

func NewPersonaCatalog(personas []*Persona) (*PersonaCatalog, error) {
	c := &PersonaCatalog{
		personas:   make([]*Persona, 0, len(personas)),
		byID:       make(map[string]*Persona, len(personas)),
		byLocation: make(map[string][]*Persona),
	}

	for i, p := range personas {
		if p == nil {
			return nil, fmt.Errorf("persona at index %d is nil", i)
		}
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("persona at index %d has no id", i)
		}
		if _, exists := c.byID[id]; exists {
			return nil, fmt.Errorf("duplicate persona id %q", id)
		}

		c.personas = append(c.personas, p)
		c.byID[id] = p

		prefix := p.LocationPrefix()
		if _, seen := c.byLocation[prefix]; !seen {
			c.locations = append(c.locations, prefix)
		}
		c.byLocation[prefix] = append(c.byLocation[prefix], p)
	}

	return c, nil
}

// GetAllPersonas returns every persona in catalog order. The slice is a copy;
// the personas are shared.
func (c *PersonaCatalog) GetAllPersonas() []*Persona {
	out := make([]*Persona, len(c.personas))
	copy(out, c.personas)
	return out
}

// GetPersonasForLocation matches name exactly (case-sensitive) against the
// location prefix index. An unknown name yields an empty slice.
func (c *PersonaCatalog) GetPersonasForLocation(name string) []*Persona {
	matches := c.byLocation[name]
	out := make([]*Persona, len(matches))
	copy(out, matches)
	return out
}

func (c *PersonaCatalog) FindPersonaByID(id string) *Persona {
	return c.byID[id]
}

func (c *PersonaCatalog) Len() int {
	return len(c.personas)
}

// Locations lists the distinct location prefixes in first-seen order.
func (c *PersonaCatalog) Locations() []string {
	out := make([]string, len(c.locations))
	copy(out, c.locations)
	return out
}

// UnreachablePersonas lists personas whose location prefix has no entry in
// globe. Such personas can be rated but never focused on the globe.
func (c *PersonaCatalog) UnreachablePersonas(globe []GlobeLocation) []*Persona {
	known := make(map[string]struct{}, len(globe))
	for _, loc := range globe {
		known[loc.Name] = struct{}{}
	}

	var missing []*Persona
	for _, p := range c.personas {
		if _, ok := known[p.LocationPrefix()]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}
