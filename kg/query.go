package kg

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"
)

var (
	entityEnv   *cel.Env
	relationEnv *cel.Env
)

// The variable is named kind rather than type: CEL reserves type as a
// standard identifier and rejects environments that redeclare it.
func init() {
	var err error
	entityEnv, err = cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("attributes", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		panic(fmt.Sprintf("kg: entity query env: %v", err))
	}
	relationEnv, err = cel.NewEnv(
		cel.Variable("source", cel.StringType),
		cel.Variable("target", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("attributes", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		panic(fmt.Sprintf("kg: relation query env: %v", err))
	}
}

func compilePredicate(env *cel.Env, expr string) (cel.Program, error) {
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPredicate, iss.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: expression must evaluate to bool, got %s", ErrInvalidPredicate, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPredicate, err)
	}
	return prg, nil
}

// QueryEntities evaluates a CEL predicate against every entity and returns
// the matches in id order. The predicate sees id, kind (the entity type),
// and attributes. Compile failures surface as ErrInvalidPredicate;
// per-entity evaluation errors (such as a missing attribute key) skip the
// entity rather than failing the query.
func (g *Graph) QueryEntities(ctx context.Context, expr string) ([]Entity, error) {
	prg, err := compilePredicate(entityEnv, expr)
	if err != nil {
		return nil, err
	}

	snapshot := g.Export()
	ids := make([]string, 0, len(snapshot.Entities))
	for id := range snapshot.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Entity
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := snapshot.Entities[id]
		val, _, err := prg.ContextEval(ctx, map[string]any{
			"id":         e.ID,
			"kind":       e.Type,
			"attributes": e.Attributes,
		})
		if err != nil {
			continue
		}
		if matched, ok := val.Value().(bool); ok && matched {
			out = append(out, e)
		}
	}
	return out, nil
}

// QueryRelations evaluates a CEL predicate against every relation and
// returns the matches in key order. The predicate sees source, target,
// kind (the relation type), and attributes.
func (g *Graph) QueryRelations(ctx context.Context, expr string) ([]Relation, error) {
	prg, err := compilePredicate(relationEnv, expr)
	if err != nil {
		return nil, err
	}

	snapshot := g.Export()
	keys := make([]string, 0, len(snapshot.Relations))
	for key := range snapshot.Relations {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []Relation
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := snapshot.Relations[key]
		val, _, err := prg.ContextEval(ctx, map[string]any{
			"source":     r.Source,
			"target":     r.Target,
			"kind":       r.Type,
			"attributes": r.Attributes,
		})
		if err != nil {
			continue
		}
		if matched, ok := val.Value().(bool); ok && matched {
			out = append(out, r)
		}
	}
	return out, nil
}
