package kg

import (
	"fmt"
	"regexp"
	"strings"
)

// Common entity type tags produced by extraction.
const (
	TypePerson     = "PERSON"
	TypePreference = "PREFERENCE"
	TypeActivity   = "ACTIVITY"
	TypeGoal       = "GOAL"
	TypeEvent      = "EVENT"
)

// Common relation type tags produced by extraction.
const (
	RelLikes     = "LIKES"
	RelDislikes  = "DISLIKES"
	RelHasGoal   = "HAS_GOAL"
	RelDoes      = "DOES"
	RelKnows     = "KNOWS"
	RelScheduled = "SCHEDULED"
)

// Pattern maps a regex over user utterances to an entity plus a relation
// from the root person. Capture group 1 is the extracted entity id.
type Pattern struct {
	Expr       *regexp.Regexp
	EntityType string
	Relation   string
}

// Extractor pulls entities and relations out of free-form first-person
// statements and merges them into a graph anchored at its root person.
// It is a deliberately shallow pass: a handful of regexes plus a list of
// relationship nouns, not a language model.
type Extractor struct {
	patterns   []Pattern
	indicators *regexp.Regexp
	roles      []string
}

// defaultRoles are relationship nouns recognized in "my <role> <Name>"
// statements.
var defaultRoles = []string{
	"wife", "husband", "partner", "friend", "trainer", "coach",
	"doctor", "brother", "sister", "mother", "father", "son", "daughter",
	"colleague", "boss",
}

// NewExtractor builds an extractor with the default patterns.
func NewExtractor() *Extractor {
	e := &Extractor{roles: append([]string(nil), defaultRoles...)}
	e.compileIndicators()

	e.MustAddPattern(`(?i)\bi (?:really )?(?:like|love|enjoy|prefer)\s+([a-z0-9][a-z0-9 '-]{1,40}?)(?:[.,!?]|$)`, TypePreference, RelLikes)
	e.MustAddPattern(`(?i)\bi (?:dislike|hate|can't stand|don't like)\s+([a-z0-9][a-z0-9 '-]{1,40}?)(?:[.,!?]|$)`, TypePreference, RelDislikes)
	e.MustAddPattern(`(?i)\bmy goal is(?: to)?\s+([a-z0-9][a-z0-9 '-]{1,60}?)(?:[.,!?]|$)`, TypeGoal, RelHasGoal)
	e.MustAddPattern(`(?i)\bi want to\s+([a-z0-9][a-z0-9 '-]{1,60}?)(?:[.,!?]|$)`, TypeGoal, RelHasGoal)
	e.MustAddPattern(`(?i)\bi (?:do|practice|play|train)\s+([a-z0-9][a-z0-9 '-]{1,40}?)(?:[.,!?]|$)`, TypeActivity, RelDoes)
	return e
}

// AddPattern registers an extra extraction pattern. The expression must
// contain at least one capture group.
func (e *Extractor) AddPattern(expr, entityType, relation string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("kg: bad pattern %q: %w", expr, err)
	}
	if re.NumSubexp() < 1 {
		return fmt.Errorf("kg: pattern %q has no capture group", expr)
	}
	if err := ValidateType(entityType); err != nil {
		return err
	}
	if err := ValidateType(relation); err != nil {
		return err
	}
	e.patterns = append(e.patterns, Pattern{Expr: re, EntityType: entityType, Relation: relation})
	return nil
}

// MustAddPattern is AddPattern for compile-time-known expressions.
func (e *Extractor) MustAddPattern(expr, entityType, relation string) {
	if err := e.AddPattern(expr, entityType, relation); err != nil {
		panic(err)
	}
}

// AddIndicator registers an extra relationship noun for "my <role> <Name>"
// statements.
func (e *Extractor) AddIndicator(role string) {
	e.roles = append(e.roles, strings.ToLower(role))
	e.compileIndicators()
}

func (e *Extractor) compileIndicators() {
	e.indicators = regexp.MustCompile(
		`(?i)\bmy (` + strings.Join(e.roles, "|") + `)(?:,| is| is named| named)?\s+([A-Z][a-z]+)`)
}

// Extract runs every pattern over the text and merges the findings into g,
// anchored at the graph's root person. A graph without a root gets one
// ("user"). It returns the ids of entities touched by this pass.
func (e *Extractor) Extract(g *Graph, text string) ([]string, error) {
	root := g.Root()
	if root == "" {
		root = "user"
		g.SetRoot(root)
	}
	if _, err := g.UpsertEntity(root, TypePerson, nil); err != nil {
		return nil, err
	}

	var touched []string
	seen := map[string]bool{}
	note := func(id string) {
		if !seen[id] {
			seen[id] = true
			touched = append(touched, id)
		}
	}

	for _, p := range e.patterns {
		for _, m := range p.Expr.FindAllStringSubmatch(text, -1) {
			id := normalizeID(m[1])
			if id == "" || id == root {
				continue
			}
			if _, err := g.UpsertEntity(id, p.EntityType, nil); err != nil {
				return touched, err
			}
			if _, err := g.UpsertRelation(root, id, p.Relation, nil); err != nil {
				return touched, err
			}
			note(id)
		}
	}

	for _, m := range e.indicators.FindAllStringSubmatch(text, -1) {
		role := strings.ToLower(m[1])
		name := m[2]
		id := normalizeID(name)
		if id == "" || id == root {
			continue
		}
		if _, err := g.UpsertEntity(id, TypePerson, map[string]any{"name": name}); err != nil {
			return touched, err
		}
		if _, err := g.UpsertRelation(root, id, RelKnows, map[string]any{"role": role}); err != nil {
			return touched, err
		}
		note(id)
	}

	return touched, nil
}

// ParseProfile seeds the graph from a structured profile map (the kind a
// signup form produces). Recognized keys: name, likes, dislikes, goals,
// activities; list values may be []string, []any, or a comma-separated
// string. Everything else becomes a root attribute.
func (e *Extractor) ParseProfile(g *Graph, profile map[string]any) error {
	root := g.Root()
	if root == "" {
		root = "user"
		g.SetRoot(root)
	}
	// Root must exist before any relation points at it.
	if _, err := g.UpsertEntity(root, TypePerson, nil); err != nil {
		return err
	}

	attrs := map[string]any{}
	lists := map[string][2]string{
		"likes":      {TypePreference, RelLikes},
		"dislikes":   {TypePreference, RelDislikes},
		"goals":      {TypeGoal, RelHasGoal},
		"activities": {TypeActivity, RelDoes},
	}

	for key, val := range profile {
		if spec, ok := lists[strings.ToLower(key)]; ok {
			for _, item := range toList(val) {
				id := normalizeID(item)
				if id == "" {
					continue
				}
				if _, err := g.UpsertEntity(id, spec[0], nil); err != nil {
					return err
				}
				if _, err := g.UpsertRelation(root, id, spec[1], nil); err != nil {
					return err
				}
			}
			continue
		}
		attrs[strings.ToLower(key)] = val
	}

	_, err := g.UpsertEntity(root, TypePerson, attrs)
	return err
}

func toList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func normalizeID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".,!?'\" ")
	return strings.Join(strings.Fields(s), "_")
}
