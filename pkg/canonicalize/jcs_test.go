package canonicalize

import (
	"encoding/json"
	"testing"
)

func TestJCS_Sorting(t *testing.T) {
	input := map[string]interface{}{
		"c": 3,
		"a": 1,
		"b": 2,
	}

	expected := `{"a":1,"b":2,"c":3}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_RecursiveSorting(t *testing.T) {
	input := map[string]interface{}{
		"z": map[string]interface{}{
			"y": "foo",
			"x": "bar",
		},
		"a": 1,
	}

	expected := `{"a":1,"z":{"x":"bar","y":"foo"}}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	input := map[string]string{
		"html": "<script>alert('xss')</script> &",
	}

	// Standard encoding/json produces < escapes; RFC 8785 forbids them.
	expected := `{"html":"<script>alert('xss')</script> &"}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_StructTags(t *testing.T) {
	type rec struct {
		ZField string `json:"z_field"`
		AField int    `json:"a_field"`
		Omit   string `json:"omit,omitempty"`
	}

	b, err := JCS(rec{ZField: "v", AField: 7})
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	expected := `{"a_field":7,"z_field":"v"}`
	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestCanonicalHash_Vector(t *testing.T) {
	// sha256 of {"a":1,"b":2}
	const want = "43258cff783fe7036d8a43033f830adfc60ec037382473548ac742b888292777"

	got, err := CanonicalHash(map[string]int{"b": 2, "a": 1})
	if err != nil {
		t.Fatalf("CanonicalHash failed: %v", err)
	}
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestJCSString_MatchesBytes(t *testing.T) {
	v := map[string]interface{}{"k": []interface{}{1, "two", nil}}

	s, err := JCSString(v)
	if err != nil {
		t.Fatalf("JCSString failed: %v", err)
	}
	b, err := JCS(v)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}
	if s != string(b) {
		t.Errorf("JCSString %q != JCS %q", s, string(b))
	}
}

func TestJCS_OutputIsValidJSON(t *testing.T) {
	b, err := JCS(map[string]interface{}{
		"num":  123.456,
		"bool": true,
		"null": nil,
		"arr":  []interface{}{3, 1, 2},
	})
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	var check interface{}
	if err := json.Unmarshal(b, &check); err != nil {
		t.Errorf("JCS output is not valid JSON: %s", string(b))
	}
}
