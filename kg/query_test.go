package kg

import (
	"context"
	"errors"
	"testing"
)

func seedQueryGraph(t *testing.T) *Graph {
	t.Helper()
	g := New(WithRoot("user"))
	entities := []struct {
		id, typ string
		attrs   map[string]any
	}{
		{"user", TypePerson, map[string]any{"name": "Sam"}},
		{"pizza", TypePreference, map[string]any{"cuisine": "italian"}},
		{"sushi", TypePreference, map[string]any{"cuisine": "japanese"}},
		{"yoga", TypeActivity, nil},
	}
	for _, e := range entities {
		if _, err := g.UpsertEntity(e.id, e.typ, e.attrs); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if _, err := g.UpsertRelation("user", "pizza", RelLikes, map[string]any{"strength": "strong"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := g.UpsertRelation("user", "sushi", RelDislikes, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return g
}

func TestQueryEntities(t *testing.T) {
	g := seedQueryGraph(t)
	ctx := context.Background()

	t.Run("filters by kind", func(t *testing.T) {
		got, err := g.QueryEntities(ctx, `kind == "PREFERENCE"`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 entities, got %d", len(got))
		}
		if got[0].ID != "pizza" || got[1].ID != "sushi" {
			t.Errorf("expected id-ordered results, got %s, %s", got[0].ID, got[1].ID)
		}
	})

	t.Run("filters by attribute", func(t *testing.T) {
		got, err := g.QueryEntities(ctx, `attributes["cuisine"] == "italian"`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].ID != "pizza" {
			t.Errorf("unexpected results: %+v", got)
		}
	})

	t.Run("missing attribute skips entity instead of failing", func(t *testing.T) {
		got, err := g.QueryEntities(ctx, `attributes["name"] == "Sam"`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].ID != "user" {
			t.Errorf("unexpected results: %+v", got)
		}
	})

	t.Run("compile error surfaces as ErrInvalidPredicate", func(t *testing.T) {
		_, err := g.QueryEntities(ctx, `kind ==`)
		if !errors.Is(err, ErrInvalidPredicate) {
			t.Errorf("expected ErrInvalidPredicate, got %v", err)
		}
	})

	t.Run("non-bool expression rejected", func(t *testing.T) {
		_, err := g.QueryEntities(ctx, `id`)
		if !errors.Is(err, ErrInvalidPredicate) {
			t.Errorf("expected ErrInvalidPredicate, got %v", err)
		}
	})

	t.Run("predicates without a kind term still compile", func(t *testing.T) {
		got, err := g.QueryEntities(ctx, `id == "yoga"`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].ID != "yoga" {
			t.Errorf("unexpected results: %+v", got)
		}
	})
}

func TestQueryRelations(t *testing.T) {
	g := seedQueryGraph(t)
	ctx := context.Background()

	got, err := g.QueryRelations(ctx, `source == "user" && kind == "LIKES"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Target != "pizza" {
		t.Fatalf("unexpected results: %+v", got)
	}
	if got[0].Attributes["strength"] != "strong" {
		t.Errorf("attributes not carried: %+v", got[0].Attributes)
	}
}
