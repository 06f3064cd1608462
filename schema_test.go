package replicant

import "testing"

const testSchemaJSON = `{
	"type": "object",
	"properties": {
		"home": {"type": "number", "minimum": 0},
		"away": {"type": "number", "minimum": 0}
	},
	"required": ["home", "away"]
}`

func TestCompileSchema_Valid(t *testing.T) {
	s, err := compileSchema([]byte(testSchemaJSON))
	if err != nil {
		t.Fatalf("compileSchema() error = %v", err)
	}
	if s.sum == "" {
		t.Error("expected non-empty content sum")
	}
}

func TestCompileSchema_InvalidJSON(t *testing.T) {
	if _, err := compileSchema([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestCompiledSchema_Validate_Passes(t *testing.T) {
	s, err := compileSchema([]byte(testSchemaJSON))
	if err != nil {
		t.Fatalf("compileSchema() error = %v", err)
	}
	if errs := s.validate(map[string]any{"home": float64(1), "away": float64(0)}); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestCompiledSchema_Validate_Fails(t *testing.T) {
	s, err := compileSchema([]byte(testSchemaJSON))
	if err != nil {
		t.Fatalf("compileSchema() error = %v", err)
	}
	errs := s.validate(map[string]any{"home": float64(-1)})
	if len(errs) == 0 {
		t.Fatal("expected validation errors for missing/invalid fields")
	}
}

func TestCompiledSchema_Validate_IsGreedy(t *testing.T) {
	s, err := compileSchema([]byte(testSchemaJSON))
	if err != nil {
		t.Fatalf("compileSchema() error = %v", err)
	}
	// home violates its minimum and away is missing entirely; both must be
	// reported in one pass rather than stopping at the first violation.
	errs := s.validate(map[string]any{"home": float64(-1)})
	if len(errs) != 2 {
		t.Fatalf("expected 2 violations, got %d: %+v", len(errs), errs)
	}
	byField := map[string]ValidationErrorDetail{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	home, ok := byField["/home"]
	if !ok {
		t.Fatalf("expected a violation for /home, got %+v", errs)
	}
	if home.Expected == "" || home.Value != float64(-1) {
		t.Errorf("expected /home violation to carry Expected/Value, got %+v", home)
	}
	away, ok := byField["/away"]
	if !ok {
		t.Fatalf("expected a violation for /away, got %+v", errs)
	}
	if away.Message == "" {
		t.Errorf("expected /away violation to carry a message, got %+v", away)
	}
}

func TestCompiledSchema_Validate_NilSchemaAlwaysPasses(t *testing.T) {
	var s *compiledSchema
	if errs := s.validate(map[string]any{"anything": true}); errs != nil {
		t.Errorf("expected nil errors for a nil schema, got %v", errs)
	}
}

func TestCompileSchema_SameContentSameSum(t *testing.T) {
	a, err := compileSchema([]byte(testSchemaJSON))
	if err != nil {
		t.Fatalf("compileSchema() error = %v", err)
	}
	b, err := compileSchema([]byte(testSchemaJSON))
	if err != nil {
		t.Fatalf("compileSchema() error = %v", err)
	}
	if a.sum != b.sum {
		t.Errorf("expected identical content to hash identically, got %q and %q", a.sum, b.sum)
	}
}
