package config

import (
	"testing"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
model:
  bundle_path: /tmp/bundle.json
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.Embedder != "hash-ngram-256-v1" {
		t.Errorf("Embedder = %q, want default hash-ngram-256-v1", cfg.Model.Embedder)
	}
	if cfg.Train.HoldoutRatio != 0.2 || cfg.Train.MinSamples != 10 || cfg.Train.Seed != 42 {
		t.Errorf("train defaults not applied: %+v", cfg.Train)
	}
	if cfg.Stores.CacheTTL != 3600 {
		t.Errorf("CacheTTL = %d, want 3600", cfg.Stores.CacheTTL)
	}
}

func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(`
model:
  bundle_path: data/bundle.json
  embedder: "remote:paraphrase-multilingual"
  dimension: 384
  endpoint: http://embeddings:8080
train:
  holdout_ratio: 0.3
  num_trees: 50
stores:
  postgres_dsn: postgres://app@db/quests
  redis_addr: redis:6379
feast:
  endpoint: feast:6565
  project: quest_tracker
rules:
  - when: 'stats.streak_days >= 7'
    adjust: 0.03
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.Dimension != 384 {
		t.Errorf("Dimension = %d, want 384", cfg.Model.Dimension)
	}
	if cfg.Train.HoldoutRatio != 0.3 || cfg.Train.NumTrees != 50 {
		t.Errorf("train overrides not applied: %+v", cfg.Train)
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0].Adjust != 0.03 {
		t.Errorf("rules not parsed: %+v", cfg.Rules)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults ok", mutate: func(c *Config) {}},
		{name: "missing bundle path", mutate: func(c *Config) { c.Model.BundlePath = "" }, wantErr: true},
		{name: "remote without endpoint", mutate: func(c *Config) {
			c.Model.Embedder = "remote:sbert"
			c.Model.Dimension = 384
		}, wantErr: true},
		{name: "remote without dimension", mutate: func(c *Config) {
			c.Model.Embedder = "remote:sbert"
			c.Model.Endpoint = "http://e:8080"
		}, wantErr: true},
		{name: "bad holdout", mutate: func(c *Config) { c.Train.HoldoutRatio = 1.5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestBuildEmbedderFromConfig(t *testing.T) {
	cfg := Default()
	cfg.Model.Embedder = "hash-ngram-64-v1"

	embedder, err := BuildEmbedder(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if embedder.Dimension() != 64 {
		t.Errorf("Dimension = %d, want 64", embedder.Dimension())
	}

	cfg.Model.Embedder = "remote:sbert"
	cfg.Model.Endpoint = "http://localhost:8080"
	cfg.Model.Dimension = 384
	embedder, err = BuildEmbedder(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if embedder.ModelID() != "remote:sbert" || embedder.Dimension() != 384 {
		t.Errorf("remote embedder = %q/%d", embedder.ModelID(), embedder.Dimension())
	}
}
