package settings

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)
	defaults := map[string]Value{
		"lang": {Kind: KindString, String: "en"},
	}

	s, err := NewFileStore(dir, "ext.test", defaults, logger)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	// Unset key falls back to the schema default.
	if got := s.Get("lang"); got.String != "en" {
		t.Errorf("Default lang = %+v", got)
	}
	if got := s.Get("unknown"); got.Kind != KindNull {
		t.Errorf("Unknown key = %+v", got)
	}

	s.Set("lang", Value{Kind: KindString, String: "ja"})
	s.Set("nsfw", Value{Kind: KindBool, Bool: true})
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// A fresh store over the same file sees the overrides.
	s2, err := NewFileStore(dir, "ext.test", defaults, logger)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if got := s2.Get("lang"); got.String != "ja" {
		t.Errorf("Persisted lang = %+v", got)
	}
	if got := s2.Get("nsfw"); !got.Bool {
		t.Errorf("Persisted nsfw = %+v", got)
	}
}

func TestFileStoreIsolatedPerExtension(t *testing.T) {
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)

	a, _ := NewFileStore(dir, "ext.a", nil, logger)
	a.Set("k", Value{Kind: KindInt, Int: 1})
	if err := a.Save(); err != nil {
		t.Fatal(err)
	}

	b, err := NewFileStore(dir, "ext.b", nil, logger)
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Get("k"); got.Kind != KindNull {
		t.Errorf("ext.b sees ext.a value: %+v", got)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ext.bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(dir, "ext.bad", nil, zaptest.NewLogger(t)); err == nil {
		t.Fatal("Corrupt settings file accepted")
	}
}

func TestSetNullRestoresDefault(t *testing.T) {
	s := NewMemoryStore(map[string]Value{
		"quality": {Kind: KindString, String: "high"},
	})
	s.Set("quality", Value{Kind: KindString, String: "low"})
	if got := s.Get("quality"); got.String != "low" {
		t.Fatalf("Override = %+v", got)
	}
	s.Set("quality", Null())
	if got := s.Get("quality"); got.String != "high" {
		t.Errorf("Default not restored: %+v", got)
	}
}

func TestParseSchemaDefaults(t *testing.T) {
	schema := []byte(`[
		{"key": "nsfw", "type": "switch", "default": true},
		{"key": "per_page", "type": "stepper", "default": 20},
		{"key": "quality", "type": "select", "default": "high"},
		{"key": "langs", "type": "multi-select", "default": ["en", "ja"]},
		{"type": "group", "items": [
			{"key": "nested", "type": "text", "default": "x"}
		]},
		{"key": "no_default", "type": "text"},
		{"key": "bad", "type": "stepper", "default": "not-a-number"}
	]`)

	defaults, err := ParseSchema(schema)
	if err != nil {
		t.Fatalf("ParseSchema failed: %v", err)
	}

	if v := defaults["nsfw"]; v.Kind != KindBool || !v.Bool {
		t.Errorf("nsfw = %+v", v)
	}
	if v := defaults["per_page"]; v.Kind != KindInt || v.Int != 20 {
		t.Errorf("per_page = %+v", v)
	}
	if v := defaults["quality"]; v.Kind != KindString || v.String != "high" {
		t.Errorf("quality = %+v", v)
	}
	if v := defaults["langs"]; v.Kind != KindStringList || len(v.StringList) != 2 {
		t.Errorf("langs = %+v", v)
	}
	if v := defaults["nested"]; v.String != "x" {
		t.Errorf("nested group default = %+v", v)
	}
	if _, ok := defaults["no_default"]; ok {
		t.Error("Entry without default produced a value")
	}
	if _, ok := defaults["bad"]; ok {
		t.Error("Mistyped default produced a value")
	}
}

func TestParseSchemaMalformed(t *testing.T) {
	if _, err := ParseSchema([]byte(`{"not": "an array"}`)); err == nil {
		t.Fatal("Malformed schema accepted")
	}
}
