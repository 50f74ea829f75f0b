// Package summary builds the two denormalized master tables the reports
// are cut from: one row per installation and one row per account. Each
// builder runs a fixed sequence of merge passes over staged data,
// accumulating partial field sets into a uniform wide record per entity.
package summary

import (
	"log/slog"

	"github.com/fieldscope-labs/fieldscope/internal/staging"
)

// missingMarker is the explicit "no value" marker. It is distinct from nil
// so an intentional gap can be told apart from a NULL that leaked out of a
// query. Flatten converts it to SQL NULL.
type missingMarker struct{}

// Missing marks a field explicitly absent for an entity.
var Missing = missingMarker{}

// SeedPolicy controls what happens when a merge pass produces a row for an
// entity the accumulator has not seen.
type SeedPolicy int

const (
	// AdmitNew creates an entry for unknown keys. The installation
	// builder uses this: its first pass enumerates every installation.
	AdmitNew SeedPolicy = iota

	// SeedOnly drops rows for unknown keys entirely. The account builder
	// uses this: accounts not seeded up front never enter the summary.
	SeedOnly
)

// Accumulator merges successive partial-field result sets into one
// uniform record per entity. The first column of every pass row is the
// entity key; remaining columns are named fields. After each pass every
// tracked entity holds every field any pass has introduced, with Missing
// standing in where a pass produced no row.
type Accumulator struct {
	policy    SeedPolicy
	keyField  string
	keys      []string
	entities  map[string]map[string]any
	fields    []string
	fieldSeen map[string]bool
	logger    *slog.Logger
}

// NewAccumulator creates an accumulator whose flattened rows lead with
// keyField. A nil logger uses a discard logger.
func NewAccumulator(policy SeedPolicy, keyField string, logger *slog.Logger) *Accumulator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Accumulator{
		policy:    policy,
		keyField:  keyField,
		entities:  make(map[string]map[string]any),
		fieldSeen: make(map[string]bool),
		logger:    logger,
	}
}

// Seed inserts an entity if absent. Seed order is the flatten order.
func (a *Accumulator) Seed(key string) {
	if _, ok := a.entities[key]; ok {
		return
	}
	a.entities[key] = make(map[string]any)
	a.keys = append(a.keys, key)
}

// Len reports the number of tracked entities.
func (a *Accumulator) Len() int {
	return len(a.keys)
}

// Has reports whether an entity is tracked.
func (a *Accumulator) Has(key string) bool {
	_, ok := a.entities[key]
	return ok
}

// ApplyPass merges one result set. The first result column is the entity
// key. Under SeedOnly, rows keyed by unknown entities are discarded; under
// AdmitNew they seed a new entry. A later pass's field silently overwrites
// an earlier pass's same-named field. A pass with zero rows still
// registers its columns so the uniform field set holds.
func (a *Accumulator) ApplyPass(name string, rows *staging.NamedRows) {
	if rows == nil || len(rows.Columns) < 2 {
		return
	}
	passFields := rows.Columns[1:]
	for _, f := range passFields {
		if !a.fieldSeen[f] {
			a.fieldSeen[f] = true
			a.fields = append(a.fields, f)
		}
	}

	applied, dropped := 0, 0
	for _, row := range rows.Rows {
		key, ok := keyString(row[0])
		if !ok {
			dropped++
			continue
		}
		entity, tracked := a.entities[key]
		if !tracked {
			if a.policy == SeedOnly {
				dropped++
				continue
			}
			a.Seed(key)
			entity = a.entities[key]
		}
		for i, f := range passFields {
			entity[f] = row[i+1]
		}
		applied++
	}

	// Backfill: every entity the pass did not touch gets an explicit
	// Missing for each of the pass's fields.
	for _, entity := range a.entities {
		for _, f := range passFields {
			if _, ok := entity[f]; !ok {
				entity[f] = Missing
			}
		}
	}

	a.logger.Debug("merge pass applied",
		"pass", name, "rows", applied, "dropped", dropped, "fields", len(passFields))
}

// Fields returns the flattened column list: key first, then every field in
// first-discovered order.
func (a *Accumulator) Fields() []string {
	out := make([]string, 0, len(a.fields)+1)
	out = append(out, a.keyField)
	out = append(out, a.fields...)
	return out
}

// Flatten produces one row per entity in seed order, key first, fields in
// first-discovered order. Missing markers become nil (SQL NULL).
func (a *Accumulator) Flatten() [][]any {
	rows := make([][]any, 0, len(a.keys))
	for _, key := range a.keys {
		entity := a.entities[key]
		row := make([]any, 0, len(a.fields)+1)
		row = append(row, key)
		for _, f := range a.fields {
			v, ok := entity[f]
			if !ok || v == Missing {
				row = append(row, nil)
			} else {
				row = append(row, v)
			}
		}
		rows = append(rows, row)
	}
	return rows
}
