package kg

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Graph is an in-memory knowledge graph. All mutation is serialized through
// an internal lock; reads return copies, so callers never observe a write in
// progress.
type Graph struct {
	mu        sync.RWMutex
	entities  map[string]Entity
	relations map[string]Relation

	// createMissing controls whether UpsertRelation creates absent
	// endpoints instead of failing with ErrDanglingRelation.
	createMissing bool

	// root anchors first-person statements and Neighborhood exports.
	root string

	now func() time.Time
}

// Option configures a Graph.
type Option func(*Graph)

// WithCreateMissing enables create-if-missing for relation endpoints.
// Created endpoints get the ENTITY type tag.
func WithCreateMissing() Option {
	return func(g *Graph) {
		g.createMissing = true
	}
}

// WithRoot sets the root person entity id.
func WithRoot(id string) Option {
	return func(g *Graph) {
		g.root = id
	}
}

// withClock overrides the time source. Used by tests.
func withClock(now func() time.Time) Option {
	return func(g *Graph) {
		g.now = now
	}
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		entities:  make(map[string]Entity),
		relations: make(map[string]Relation),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Root returns the root person entity id, or "" when unset.
func (g *Graph) Root() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.root
}

// SetRoot records the root person entity id.
func (g *Graph) SetRoot(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.root = id
}

// UpsertEntity creates or updates an entity. The id and type are immutable:
// upserting an existing id with a different type fails with ErrTypeMismatch.
// Attribute updates merge per key (last writer wins per attribute), never
// replacing the whole map. Upsert is idempotent under identical input.
func (g *Graph) UpsertEntity(id, typ string, attrs map[string]any) (Entity, error) {
	if id == "" {
		return Entity{}, fmt.Errorf("%w: empty id", ErrEntityNotFound)
	}
	if err := ValidateType(typ); err != nil {
		return Entity{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.upsertEntityLocked(id, typ, attrs)
}

func (g *Graph) upsertEntityLocked(id, typ string, attrs map[string]any) (Entity, error) {
	now := g.now()
	existing, ok := g.entities[id]
	if !ok {
		e := Entity{
			ID:         id,
			Type:       typ,
			Attributes: cloneAttrs(attrs),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if e.Attributes == nil {
			e.Attributes = make(map[string]any)
		}
		g.entities[id] = e
		return e.Clone(), nil
	}

	if !strings.EqualFold(existing.Type, typ) {
		return Entity{}, fmt.Errorf("%w: %s is %s, not %s", ErrTypeMismatch, id, existing.Type, typ)
	}
	merged := existing.Clone()
	for k, v := range attrs {
		merged.Attributes[k] = v
	}
	merged.UpdatedAt = now
	g.entities[id] = merged
	return merged.Clone(), nil
}

// ClearAttribute removes a single attribute key from an entity. Clearing is
// the only way to drop an attribute; upserts never do.
func (g *Graph) ClearAttribute(id, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entities[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	cleared := e.Clone()
	delete(cleared.Attributes, key)
	cleared.UpdatedAt = g.now()
	g.entities[id] = cleared
	return nil
}

// UpsertRelation creates or updates a directed relation. Both endpoints must
// exist unless create-if-missing is enabled; a dangling endpoint fails with
// ErrDanglingRelation and writes nothing. Duplicate (source, target, type)
// triples merge attributes instead of doubling.
func (g *Graph) UpsertRelation(source, target, typ string, attrs map[string]any) (Relation, error) {
	if err := ValidateType(typ); err != nil {
		return Relation{}, err
	}
	if source == "" || target == "" {
		return Relation{}, fmt.Errorf("%w: empty endpoint", ErrDanglingRelation)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range []string{source, target} {
		if _, ok := g.entities[id]; !ok {
			if !g.createMissing {
				return Relation{}, fmt.Errorf("%w: %s", ErrDanglingRelation, id)
			}
			if _, err := g.upsertEntityLocked(id, "ENTITY", nil); err != nil {
				return Relation{}, err
			}
		}
	}

	now := g.now()
	rel := Relation{Source: source, Target: target, Type: typ}
	key := rel.Key()
	if existing, ok := g.relations[key]; ok {
		merged := existing.Clone()
		for k, v := range attrs {
			merged.Attributes[k] = v
		}
		merged.UpdatedAt = now
		g.relations[key] = merged
		return merged.Clone(), nil
	}

	rel.Attributes = cloneAttrs(attrs)
	if rel.Attributes == nil {
		rel.Attributes = make(map[string]any)
	}
	rel.CreatedAt = now
	rel.UpdatedAt = now
	g.relations[key] = rel
	return rel.Clone(), nil
}

// GetEntity looks up an entity by id. The second return is false when the
// id is unknown.
func (g *Graph) GetEntity(id string) (Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.entities[id]
	if !ok {
		return Entity{}, false
	}
	return e.Clone(), true
}

// RelationsOf returns every relation touching the entity, in key order.
func (g *Graph) RelationsOf(id string) []Relation {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Relation
	for _, key := range sortedKeys(g.relations) {
		r := g.relations[key]
		if r.Source == id || r.Target == id {
			out = append(out, r.Clone())
		}
	}
	return out
}

// Len returns the entity and relation counts.
func (g *Graph) Len() (entities, relations int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entities), len(g.relations)
}

// Export returns a deep-copied snapshot of the whole graph.
func (g *Graph) Export() Export {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.exportLocked()
}

func (g *Graph) exportLocked() Export {
	out := Export{
		Entities:  make(map[string]Entity, len(g.entities)),
		Relations: make(map[string]Relation, len(g.relations)),
	}
	for id, e := range g.entities {
		out.Entities[id] = e.Clone()
	}
	for key, r := range g.relations {
		out.Relations[key] = r.Clone()
	}
	return out
}

// Neighborhood returns the snapshot restricted to the connected component
// containing root (edges followed in both directions). An unknown root
// yields the full export.
func (g *Graph) Neighborhood(root string) Export {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.entities[root]; !ok {
		return g.exportLocked()
	}

	reachable := map[string]bool{root: true}
	frontier := []string{root}
	for len(frontier) > 0 {
		next := frontier[:0:0]
		for _, id := range frontier {
			for _, r := range g.relations {
				var other string
				switch id {
				case r.Source:
					other = r.Target
				case r.Target:
					other = r.Source
				default:
					continue
				}
				if !reachable[other] {
					reachable[other] = true
					next = append(next, other)
				}
			}
		}
		frontier = next
	}

	out := Export{
		Entities:  make(map[string]Entity),
		Relations: make(map[string]Relation),
	}
	for id, e := range g.entities {
		if reachable[id] {
			out.Entities[id] = e.Clone()
		}
	}
	for key, r := range g.relations {
		if reachable[r.Source] && reachable[r.Target] {
			out.Relations[key] = r.Clone()
		}
	}
	return out
}

// Clear empties the graph. The root marker survives.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entities = make(map[string]Entity)
	g.relations = make(map[string]Relation)
}

// Digest renders a prompt-ready text summary of the graph: the root person
// first, then entities whose ids appear in mentioned, then the most
// recently updated, up to max lines. The root always makes the cut since
// its relations carry most of the user context. It feeds the decision
// policy's KG context.
func (g *Graph) Digest(mentioned []string, max int) string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if max <= 0 {
		max = 12
	}

	mentionedSet := make(map[string]bool, len(mentioned))
	for _, m := range mentioned {
		mentionedSet[strings.ToLower(m)] = true
	}

	ids := make([]string, 0, len(g.entities))
	for id := range g.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := ids[i] == g.root, ids[j] == g.root
		if ri != rj {
			return ri
		}
		mi, mj := mentionedSet[strings.ToLower(ids[i])], mentionedSet[strings.ToLower(ids[j])]
		if mi != mj {
			return mi
		}
		ti, tj := g.entities[ids[i]].UpdatedAt, g.entities[ids[j]].UpdatedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ids[i] < ids[j]
	})

	var b strings.Builder
	lines := 0
	for _, id := range ids {
		if lines >= max {
			break
		}
		e := g.entities[id]
		fmt.Fprintf(&b, "- %s (%s)", e.ID, strings.ToLower(e.Type))
		var rels []string
		for _, key := range sortedKeys(g.relations) {
			r := g.relations[key]
			if r.Source == id {
				rels = append(rels, fmt.Sprintf("%s %s", strings.ToLower(r.Type), r.Target))
			}
		}
		if len(rels) > 0 {
			fmt.Fprintf(&b, ": %s", strings.Join(rels, ", "))
		}
		b.WriteString("\n")
		lines++
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func sortedKeys(m map[string]Relation) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
