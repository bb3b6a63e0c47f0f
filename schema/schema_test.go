package schema

import (
	"strings"
	"testing"
)

func workoutParams() Params {
	return Params{
		"activity": Required(String("what to do")),
		"duration": WithDefault(Int("length in minutes"), 60),
		"level":    WithEnum(String("difficulty"), "easy", "hard"),
	}
}

func TestCoerce(t *testing.T) {
	t.Run("integers canonicalize to int64", func(t *testing.T) {
		for name, v := range map[string]any{
			"int":            42,
			"float64":        float64(42),
			"numeric string": "42",
		} {
			out, err := workoutParams().Coerce(map[string]any{"activity": "yoga", "duration": v})
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", name, err)
			}
			if got, ok := out["duration"].(int64); !ok || got != 42 {
				t.Errorf("%s: expected int64(42), got %T(%v)", name, out["duration"], out["duration"])
			}
		}
	})

	t.Run("default applied as int64", func(t *testing.T) {
		out, err := workoutParams().Coerce(map[string]any{"activity": "yoga"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, ok := out["duration"].(int64); !ok || got != 60 {
			t.Errorf("expected int64(60), got %T(%v)", out["duration"], out["duration"])
		}
	})

	t.Run("fractional value rejected for integer", func(t *testing.T) {
		_, err := workoutParams().Coerce(map[string]any{"activity": "yoga", "duration": 30.5})
		if err == nil {
			t.Fatal("expected an error for a fractional integer")
		}
	})

	t.Run("unknown keys dropped", func(t *testing.T) {
		out, err := workoutParams().Coerce(map[string]any{"activity": "yoga", "mystery": true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := out["mystery"]; ok {
			t.Error("unknown key should be dropped")
		}
	})
}

func TestValidate(t *testing.T) {
	t.Run("missing required", func(t *testing.T) {
		err := workoutParams().Validate(map[string]any{"duration": int64(30)})
		if err == nil || !strings.Contains(err.Error(), "activity") {
			t.Fatalf("expected missing-activity error, got %v", err)
		}
	})

	t.Run("enum enforced", func(t *testing.T) {
		err := workoutParams().Validate(map[string]any{"activity": "yoga", "level": "extreme"})
		if err == nil || !strings.Contains(err.Error(), "level") {
			t.Fatalf("expected enum error, got %v", err)
		}
	})

	t.Run("valid args pass", func(t *testing.T) {
		args, err := workoutParams().Coerce(map[string]any{"activity": "yoga", "level": "easy"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := workoutParams().Validate(args); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestMissing(t *testing.T) {
	p := Params{
		"a": Required(String("")),
		"b": Required(String("")),
		"c": String(""),
	}
	missing := p.Missing(map[string]any{"b": "  ", "c": "ok"})
	if len(missing) != 2 || missing[0] != "a" || missing[1] != "b" {
		t.Errorf("expected [a b], got %v", missing)
	}
}

func TestJSONSchema(t *testing.T) {
	s := workoutParams().JSONSchema()
	if s["type"] != "object" {
		t.Errorf("expected object schema, got %v", s["type"])
	}
	required, ok := s["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "activity" {
		t.Errorf("unexpected required list: %v", s["required"])
	}
	props := s["properties"].(map[string]any)
	duration := props["duration"].(map[string]any)
	if duration["type"] != "integer" || duration["default"] != 60 {
		t.Errorf("unexpected duration property: %v", duration)
	}
}
