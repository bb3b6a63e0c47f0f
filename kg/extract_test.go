package kg

import (
	"testing"
)

func TestExtract(t *testing.T) {
	t.Run("first-person preference", func(t *testing.T) {
		g := New(WithRoot("user"))
		touched, err := NewExtractor().Extract(g, "I like pizza.")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(touched) != 1 || touched[0] != "pizza" {
			t.Fatalf("unexpected touched ids: %v", touched)
		}
		e, ok := g.GetEntity("pizza")
		if !ok || e.Type != TypePreference {
			t.Fatalf("expected PREFERENCE entity, got %+v (ok=%v)", e, ok)
		}
		rels := g.RelationsOf("user")
		if len(rels) != 1 || rels[0].Type != RelLikes || rels[0].Target != "pizza" {
			t.Errorf("expected user LIKES pizza, got %+v", rels)
		}
	})

	t.Run("dislike and goal in one utterance", func(t *testing.T) {
		g := New(WithRoot("user"))
		if _, err := NewExtractor().Extract(g, "I hate burpees, and my goal is to run a marathon."); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if e, ok := g.GetEntity("burpees"); !ok || e.Type != TypePreference {
			t.Errorf("burpees not extracted as preference: %+v (ok=%v)", e, ok)
		}
		if e, ok := g.GetEntity("run_a_marathon"); !ok || e.Type != TypeGoal {
			t.Errorf("goal not extracted: %+v (ok=%v)", e, ok)
		}
	})

	t.Run("relationship indicator", func(t *testing.T) {
		g := New(WithRoot("user"))
		if _, err := NewExtractor().Extract(g, "My trainer Maria says I should stretch more."); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		e, ok := g.GetEntity("maria")
		if !ok || e.Type != TypePerson {
			t.Fatalf("expected PERSON entity for maria, got %+v (ok=%v)", e, ok)
		}
		rels := g.RelationsOf("maria")
		if len(rels) != 1 || rels[0].Type != RelKnows || rels[0].Attributes["role"] != "trainer" {
			t.Errorf("expected KNOWS relation with trainer role, got %+v", rels)
		}
	})

	t.Run("missing root gets anchored", func(t *testing.T) {
		g := New()
		if _, err := NewExtractor().Extract(g, "I like tea"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if g.Root() != "user" {
			t.Errorf("root not anchored, got %q", g.Root())
		}
		if _, ok := g.GetEntity("user"); !ok {
			t.Error("root person entity missing")
		}
	})

	t.Run("repeated extraction is idempotent", func(t *testing.T) {
		g := New(WithRoot("user"))
		ex := NewExtractor()
		for i := 0; i < 3; i++ {
			if _, err := ex.Extract(g, "I like pizza"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		entities, relations := g.Len()
		if entities != 2 || relations != 1 {
			t.Errorf("expected 2 entities / 1 relation, got %d/%d", entities, relations)
		}
	})

	t.Run("custom pattern", func(t *testing.T) {
		g := New(WithRoot("user"))
		ex := NewExtractor()
		if err := ex.AddPattern(`(?i)\bi booked\s+([a-z0-9 ]{1,30}?)(?:[.,!?]|$)`, TypeEvent, RelScheduled); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := ex.Extract(g, "I booked spin class."); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if e, ok := g.GetEntity("spin_class"); !ok || e.Type != TypeEvent {
			t.Errorf("custom pattern not applied: %+v (ok=%v)", e, ok)
		}
	})

	t.Run("rejects patterns without capture group", func(t *testing.T) {
		ex := NewExtractor()
		if err := ex.AddPattern(`no groups here`, TypeEvent, RelScheduled); err == nil {
			t.Error("expected error for pattern without capture group")
		}
	})
}

func TestParseProfile(t *testing.T) {
	g := New()
	profile := map[string]any{
		"name":       "Sam",
		"likes":      []string{"pizza", "climbing"},
		"dislikes":   "early mornings",
		"goals":      []any{"run a marathon"},
		"experience": "beginner",
	}
	if err := NewExtractor().ParseProfile(g, profile); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	root, ok := g.GetEntity("user")
	if !ok {
		t.Fatal("root person missing")
	}
	if root.Attributes["name"] != "Sam" || root.Attributes["experience"] != "beginner" {
		t.Errorf("scalar profile keys not stored as attributes: %+v", root.Attributes)
	}

	for id, typ := range map[string]string{
		"pizza":          TypePreference,
		"climbing":       TypePreference,
		"early_mornings": TypePreference,
		"run_a_marathon": TypeGoal,
	} {
		e, ok := g.GetEntity(id)
		if !ok || e.Type != typ {
			t.Errorf("%s: expected %s, got %+v (ok=%v)", id, typ, e, ok)
		}
	}

	rels := g.RelationsOf("user")
	if len(rels) != 4 {
		t.Errorf("expected 4 relations from root, got %d", len(rels))
	}
}
