// Package kg implements the concierge knowledge graph: typed entities and
// directed typed relations that give the agent cross-turn memory about the
// user. The graph is pure state; no tool invocation or LLM calls happen here.
package kg

import (
	"errors"
	"fmt"
	"time"
	"unicode"
)

// Sentinel errors for graph operations.
var (
	// ErrInvalidEntityType indicates an entity type tag that is empty or
	// contains characters outside the validated vocabulary.
	ErrInvalidEntityType = errors.New("kg: invalid entity type")

	// ErrTypeMismatch indicates an upsert attempted to change the
	// immutable type of an existing entity.
	ErrTypeMismatch = errors.New("kg: entity type is immutable")

	// ErrDanglingRelation indicates a relation endpoint that does not
	// exist while create-if-missing is disabled.
	ErrDanglingRelation = errors.New("kg: relation endpoint does not exist")

	// ErrInvalidPredicate indicates a query predicate that failed to
	// compile.
	ErrInvalidPredicate = errors.New("kg: invalid query predicate")

	// ErrEntityNotFound indicates a lookup for an unknown entity id.
	ErrEntityNotFound = errors.New("kg: entity not found")
)

// Entity is a typed, attributed node in the knowledge graph.
type Entity struct {
	// ID is the stable unique key. Immutable after creation.
	ID string `json:"id"`

	// Type is the entity type tag (e.g. PERSON, PREFERENCE, LOCATION,
	// EVENT). Immutable after creation.
	Type string `json:"type"`

	// Attributes contains arbitrary key-value data. Updates merge per
	// key; a key is removed only through an explicit clear.
	Attributes map[string]any `json:"attributes,omitempty"`

	// CreatedAt is when the entity was first written.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the entity was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the entity.
func (e Entity) Clone() Entity {
	out := e
	out.Attributes = cloneAttrs(e.Attributes)
	return out
}

// Relation is a typed, directed edge between two entities.
type Relation struct {
	// Source is the source entity id.
	Source string `json:"source"`

	// Target is the target entity id.
	Target string `json:"target"`

	// Type is the verb-like relation tag (e.g. PREFERS, LOCATED_AT).
	Type string `json:"type"`

	// Attributes contains optional relation metadata.
	Attributes map[string]any `json:"attributes,omitempty"`

	// CreatedAt is when the relation was first written.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the relation was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the deduplication key of the (source, target, type) triple.
func (r Relation) Key() string {
	return fmt.Sprintf("%s|%s|%s", r.Source, r.Target, r.Type)
}

// Clone returns a deep copy of the relation.
func (r Relation) Clone() Relation {
	out := r
	out.Attributes = cloneAttrs(r.Attributes)
	return out
}

// Export is a read-only snapshot of the whole graph, keyed for the
// visualization boundary: entities by id, relations by triple key.
type Export struct {
	Entities  map[string]Entity   `json:"entities"`
	Relations map[string]Relation `json:"relations"`
}

// ValidateType checks an entity or relation type tag: non-empty, letters,
// digits and underscores only, starting with a letter. The vocabulary itself
// is open-ended.
func ValidateType(tag string) error {
	if tag == "" {
		return fmt.Errorf("%w: empty tag", ErrInvalidEntityType)
	}
	for i, r := range tag {
		if i == 0 && !unicode.IsLetter(r) {
			return fmt.Errorf("%w: %q must start with a letter", ErrInvalidEntityType, tag)
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return fmt.Errorf("%w: %q contains invalid character %q", ErrInvalidEntityType, tag, r)
		}
	}
	return nil
}

func cloneAttrs(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
