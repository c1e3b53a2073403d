// Copyright 2026 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProviderConfig describes one embedding provider endpoint. Name is the
// stable identifier used for vector slots; secrets are referenced by
// environment variable name, never stored in the file.
type ProviderConfig struct {
	Name           string `yaml:"name"`
	Type           string `yaml:"type"` // "openai" or "ollama"
	Host           string `yaml:"host"`
	Model          string `yaml:"model"`
	Dimension      int    `yaml:"dimension"`
	APIKeyEnv      string `yaml:"api_key_env"`
	MaxConcurrency int    `yaml:"max_concurrency"`
}

// APIKey resolves the provider's API key from the environment.
func (p *ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// DatabaseConfig points at the Postgres instance. The URL is resolved
// from the environment so connection strings with credentials stay out
// of the config file.
type DatabaseConfig struct {
	URLEnv string `yaml:"url_env"`
}

// URL resolves the connection string from the environment.
func (d *DatabaseConfig) URL() string {
	return os.Getenv(d.URLEnv)
}

// CacheConfig configures the local embedding cache.
type CacheConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// SearchConfig tunes the retrieval engine.
type SearchConfig struct {
	Fusion       string  `yaml:"fusion"` // "weighted" or "rrf"
	DiversityCap int     `yaml:"diversity_cap"`
	Limit        int     `yaml:"limit"`
	Threshold    float64 `yaml:"threshold"`
}

// IngestConfig tunes the ingestion pipeline and the embedding backfill.
type IngestConfig struct {
	PoolSize       int `yaml:"pool_size"`
	BatchSize      int `yaml:"batch_size"`
	ReportInterval int `yaml:"report_interval"`
	MaxRetries     int `yaml:"max_retries"`
	RetryDelaySecs int `yaml:"retry_delay_secs"`
}

// AppConfig is the root configuration structure.
type AppConfig struct {
	Database  DatabaseConfig      `yaml:"database"`
	Providers []ProviderConfig    `yaml:"providers"`
	Chains    map[string][]string `yaml:"chains"`
	Cache     CacheConfig         `yaml:"cache"`
	Search    SearchConfig        `yaml:"search"`
	Ingest    IngestConfig        `yaml:"ingest"`
}

// Load reads a config from path. If the file does not exist, returns
// defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Validate checks the parts every command needs.
func (c *AppConfig) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("config: at least one provider is required")
	}
	seen := make(map[string]struct{}, len(c.Providers))
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Name == "" {
			return fmt.Errorf("config: provider %d has no name", i)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("config: duplicate provider %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.Type != "openai" && p.Type != "ollama" {
			return fmt.Errorf("config: provider %q has unknown type %q", p.Name, p.Type)
		}
		if p.Dimension <= 0 {
			return fmt.Errorf("config: provider %q needs a positive dimension", p.Name)
		}
	}
	for op, chain := range c.Chains {
		for _, name := range chain {
			if _, ok := seen[name]; !ok {
				return fmt.Errorf("config: chain %q references unknown provider %q", op, name)
			}
		}
	}
	if c.Search.Fusion != "weighted" && c.Search.Fusion != "rrf" {
		return fmt.Errorf("config: unknown fusion %q", c.Search.Fusion)
	}
	return nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Database: DatabaseConfig{URLEnv: "DATABASE_URL"},
		Providers: []ProviderConfig{{
			Name:      "ollama",
			Type:      "ollama",
			Host:      "http://localhost:11434",
			Model:     "embeddinggemma",
			Dimension: 768,
		}},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Database.URLEnv == "" {
		cfg.Database.URLEnv = "DATABASE_URL"
	}
	if cfg.Search.Fusion == "" {
		cfg.Search.Fusion = "weighted"
	}
	if cfg.Search.Limit == 0 {
		cfg.Search.Limit = 10
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 100
	}
	if cfg.Ingest.ReportInterval == 0 {
		cfg.Ingest.ReportInterval = 100
	}
	if cfg.Ingest.MaxRetries == 0 {
		cfg.Ingest.MaxRetries = 3
	}
	if cfg.Ingest.RetryDelaySecs == 0 {
		cfg.Ingest.RetryDelaySecs = 1
	}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.Name == "" {
			p.Name = p.Type
		}
	}
}
