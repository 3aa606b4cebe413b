package analyst

import "testing"

func TestExtractJSONRawParse(t *testing.T) {
	t.Parallel()
	obj, err := ExtractJSON(`{"a":1}`)
	if err != nil {
		t.Fatalf("ExtractJSON() error = %v", err)
	}
	if string(obj) != `{"a":1}` {
		t.Errorf("ExtractJSON() = %s, want raw object", obj)
	}
}

func TestExtractJSONCodeFence(t *testing.T) {
	t.Parallel()
	raw := "Here is the classification:\n```json\n{\"a\": 1}\n```\nLet me know if you need more."
	obj, err := ExtractJSON(raw)
	if err != nil {
		t.Fatalf("ExtractJSON() error = %v", err)
	}
	if !jsonEqual(t, obj, `{"a": 1}`) {
		t.Errorf("ExtractJSON() = %s", obj)
	}
}

func TestExtractJSONBraceExtraction(t *testing.T) {
	t.Parallel()
	raw := `Sure, based on my analysis: {"relationship_type": "equivalent"} is the classification.`
	obj, err := ExtractJSON(raw)
	if err != nil {
		t.Fatalf("ExtractJSON() error = %v", err)
	}
	if !jsonEqual(t, obj, `{"relationship_type": "equivalent"}`) {
		t.Errorf("ExtractJSON() = %s", obj)
	}
}

func TestExtractJSONAllStrategiesFail(t *testing.T) {
	t.Parallel()
	if _, err := ExtractJSON("no json here at all"); err == nil {
		t.Error("ExtractJSON() should fail when no object is present")
	}
}

func jsonEqual(t *testing.T, got []byte, want string) bool {
	t.Helper()
	return string(got) == want
}
