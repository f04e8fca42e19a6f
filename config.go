package agentmem

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kylebrodeur/agentmem/internal/knowledge"
)

// Logger is the structured logging sink used throughout the store. Its
// shape matches internal/logging.Logger so any value satisfying one
// satisfies the other; callers never need to import an internal
// package to supply their own.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// Config configures an Open call. Zero-value fields are replaced with
// DefaultConfig's choices except ProjectRoot, which is required.
type Config struct {
	// ProjectRoot is the directory under which .state/ is created.
	ProjectRoot string

	// EmbeddingDim is the vector width produced by the embedder.
	EmbeddingDim int

	// DedupThreshold is the cosine similarity at or above which two
	// Conventions/Learnings are merged on add.
	DedupThreshold float64

	// DecayRate is the per-day confidence decay applied by
	// DecayConfidence.
	DecayRate float64

	// Clock returns the current time; overridden in tests for
	// deterministic timestamps.
	Clock func() time.Time

	// IDGenerator produces new entry ids; overridden in tests for
	// deterministic ids.
	IDGenerator func() string

	// Logger receives structured diagnostic events, in particular when
	// Open repairs an embedding index left out of sync with the
	// conversation/knowledge logs by a prior crash. Defaults to a no-op
	// sink.
	Logger Logger
}

// DefaultConfig returns a Config with this package's reference defaults
// (384-dim embeddings, 0.85 dedup threshold, 0.01/day confidence decay)
// rooted at projectRoot.
func DefaultConfig(projectRoot string) Config {
	return Config{
		ProjectRoot:    projectRoot,
		EmbeddingDim:   384,
		DedupThreshold: knowledge.DedupThreshold,
		DecayRate:      knowledge.DecayRate,
		Clock:          func() time.Time { return time.Now().UTC().Truncate(time.Second) },
		IDGenerator:    func() string { return uuid.NewString() },
		Logger:         nil,
	}
}

// fileConfig is the subset of Config that can live in a YAML file on
// disk: the tunable thresholds, not the injectable Clock/IDGenerator/
// Logger function values.
type fileConfig struct {
	ProjectRoot    string  `yaml:"project_root"`
	EmbeddingDim   int     `yaml:"embedding_dim"`
	DedupThreshold float64 `yaml:"dedup_threshold"`
	DecayRate      float64 `yaml:"decay_rate"`
}

// LoadConfigFile reads a YAML config file (see fileConfig's tags for the
// accepted keys) and layers it over DefaultConfig of the file's
// project_root ("." when the key is absent), so a project can check in
// an agentmem.yaml next to its source without hand-writing Go. Keys it
// omits keep the default's value.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("agentmem: read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("agentmem: parse config %s: %w", path, err)
	}

	root := fc.ProjectRoot
	if root == "" {
		root = "."
	}
	cfg := DefaultConfig(root)
	if fc.EmbeddingDim > 0 {
		cfg.EmbeddingDim = fc.EmbeddingDim
	}
	if fc.DedupThreshold > 0 {
		cfg.DedupThreshold = fc.DedupThreshold
	}
	if fc.DecayRate > 0 {
		cfg.DecayRate = fc.DecayRate
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.EmbeddingDim <= 0 {
		c.EmbeddingDim = 384
	}
	if c.DedupThreshold <= 0 {
		c.DedupThreshold = knowledge.DedupThreshold
	}
	if c.DecayRate <= 0 {
		c.DecayRate = knowledge.DecayRate
	}
	if c.Clock == nil {
		c.Clock = func() time.Time { return time.Now().UTC().Truncate(time.Second) }
	}
	if c.IDGenerator == nil {
		c.IDGenerator = func() string { return uuid.NewString() }
	}
	return c
}
