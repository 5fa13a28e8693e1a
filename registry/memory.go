package registry

import (
	"context"
	"fmt"
	"strings"
)

// Document is the declarative registry representation carried in the gateway
// config file. Memory serves queries straight from it.
type Document struct {
	Services      []LogicModule  `json:"services,omitempty" yaml:"services,omitempty"`
	Models        []Model        `json:"models,omitempty" yaml:"models,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty" yaml:"relationships,omitempty"`
	JoinRecords   []JoinRecord   `json:"join_records,omitempty" yaml:"join_records,omitempty"`
}

// Validate cross-checks the document's references and invariants.
func (d *Document) Validate() error {
	services := make(map[string]struct{}, len(d.Services))
	for _, s := range d.Services {
		if s.Name == "" {
			return fmt.Errorf("registry: service with empty name")
		}
		if s.SchemaURL == "" {
			return fmt.Errorf("registry: service %q has no schema_url", s.Name)
		}
		if _, dup := services[s.Name]; dup {
			return fmt.Errorf("registry: duplicate service %q", s.Name)
		}
		services[s.Name] = struct{}{}
	}

	models := make(map[ModelRef]struct{}, len(d.Models))
	for _, m := range d.Models {
		if _, ok := services[m.Service]; !ok {
			return fmt.Errorf("registry: model %s%s references unknown service", m.Service, m.Endpoint)
		}
		if m.LookupField == "" {
			return fmt.Errorf("registry: model %s%s has no lookup_field", m.Service, m.Endpoint)
		}
		ref := m.Ref()
		if _, dup := models[ref]; dup {
			return fmt.Errorf("registry: duplicate model %s%s", m.Service, m.Endpoint)
		}
		models[ref] = struct{}{}
	}

	keys := make(map[string]Relationship, len(d.Relationships))
	for _, rel := range d.Relationships {
		if rel.Key == "" {
			return fmt.Errorf("registry: relationship with empty key")
		}
		if _, dup := keys[rel.Key]; dup {
			return fmt.Errorf("registry: duplicate relationship key %q", rel.Key)
		}
		for _, ref := range []ModelRef{rel.Origin, rel.Related} {
			if _, ok := models[ref]; !ok {
				return fmt.Errorf("registry: relationship %q references unknown model %s", rel.Key, ref)
			}
		}
		keys[rel.Key] = rel
	}

	for i, jr := range d.JoinRecords {
		if _, ok := keys[jr.Relationship]; !ok {
			return fmt.Errorf("registry: join record %d references unknown relationship %q", i, jr.Relationship)
		}
		if err := jr.Validate(); err != nil {
			return fmt.Errorf("registry: join record %d: %w", i, err)
		}
	}
	return nil
}

// Memory is a Registry backed by an in-process Document. It is immutable
// after construction and therefore safe for concurrent readers.
type Memory struct {
	services map[string]LogicModule
	models   map[ModelRef]Model
	rels     []Relationship
	joins    []JoinRecord
}

// NewMemory builds a Memory registry from a validated document.
func NewMemory(doc *Document) (*Memory, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	m := &Memory{
		services: make(map[string]LogicModule, len(doc.Services)),
		models:   make(map[ModelRef]Model, len(doc.Models)),
		rels:     append([]Relationship(nil), doc.Relationships...),
		joins:    append([]JoinRecord(nil), doc.JoinRecords...),
	}
	for _, s := range doc.Services {
		m.services[s.Name] = s
	}
	for _, mm := range doc.Models {
		m.models[normRef(mm.Service, mm.Endpoint)] = mm
	}
	return m, nil
}

// normRef normalizes an endpoint reference so "/products/", "products/" and
// "products" all name the same model.
func normRef(service, endpoint string) ModelRef {
	return ModelRef{Service: service, Endpoint: strings.Trim(endpoint, "/")}
}

// LogicModule implements Registry.
func (m *Memory) LogicModule(_ context.Context, name string) (*LogicModule, error) {
	s, ok := m.services[name]
	if !ok {
		return nil, &NotFoundError{Kind: "service", Name: name}
	}
	return &s, nil
}

// Model implements Registry.
func (m *Memory) Model(_ context.Context, service, endpoint string) (*Model, error) {
	mm, ok := m.models[normRef(service, endpoint)]
	if !ok {
		return nil, &NotFoundError{Kind: "model", Name: service + endpoint}
	}
	return &mm, nil
}

// Relationships implements Registry. Links come back in declaration order;
// a model appearing as the related side of an edge sees it as a reverse link.
func (m *Memory) Relationships(_ context.Context, service, endpoint string) ([]Link, error) {
	ref := normRef(service, endpoint)
	var links []Link
	for _, rel := range m.rels {
		switch ref {
		case normRef(rel.Origin.Service, rel.Origin.Endpoint):
			links = append(links, Link{Relationship: rel, Forward: true})
		case normRef(rel.Related.Service, rel.Related.Endpoint):
			links = append(links, Link{Relationship: rel, Forward: false})
		}
	}
	return links, nil
}

// JoinRecords implements Registry.
func (m *Memory) JoinRecords(_ context.Context, originPK string, rel Relationship, forward bool) ([]JoinRecord, error) {
	var out []JoinRecord
	for _, jr := range m.joins {
		if jr.Relationship != rel.Key {
			continue
		}
		if jr.OriginKey(forward) == originPK {
			out = append(out, jr)
		}
	}
	return out, nil
}
