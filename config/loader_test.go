package config

import (
	"errors"
	"testing"
)

func TestLoader_LoadFromBytes_Empty(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadFromBytes(nil)
	if !errors.Is(err, ErrConfigEmpty) {
		t.Fatalf("expected ErrConfigEmpty, got %v", err)
	}
}

func TestLoader_LoadFromBytes_Valid(t *testing.T) {
	l := NewLoader()
	data := []byte(`{
		"graph": {
			"name": "pipeline",
			"tasks": [
				{"id": "fetch", "handler": "http.fetch"},
				{"id": "parse", "handler": "text.parse", "depends_on": ["fetch"]},
				{"id": "store", "handler": "db.store", "depends_on": ["parse"]}
			]
		},
		"run": {"concurrency": 2}
	}`)

	cfg, err := l.LoadFromBytes(data)
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	if len(cfg.Graph.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(cfg.Graph.Tasks))
	}
	if cfg.Run.Concurrency != 2 {
		t.Fatalf("expected concurrency 2, got %d", cfg.Run.Concurrency)
	}
}

func TestLoader_LoadFromBytes_DefaultsConcurrency(t *testing.T) {
	l := NewLoader()
	data := []byte(`{"graph": {"tasks": [{"id": "a", "handler": "noop"}]}}`)

	cfg, err := l.LoadFromBytes(data)
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	if cfg.Run.Concurrency != defaultConcurrency {
		t.Fatalf("expected default concurrency %d, got %d", defaultConcurrency, cfg.Run.Concurrency)
	}
}

func TestLoader_LoadFromFile_MissingFile(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadFromFile("/nonexistent/path/graph.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoader_LoadFromBytes_MalformedJSON(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadFromBytes([]byte(`{not json`))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
