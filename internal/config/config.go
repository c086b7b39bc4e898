package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"horse.fit/themedup/internal/dedup"
	"horse.fit/themedup/internal/embedding"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBMinConns  int32  `envconfig:"THEMEDUP_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"THEMEDUP_DB_MAX_CONNS" default:"8"`

	EmbeddingEndpoint          string        `envconfig:"EMBEDDING_ENDPOINT" default:"http://127.0.0.1:8844/embed"`
	EmbeddingModelName         string        `envconfig:"EMBEDDING_MODEL_NAME" default:"Qwen3-Embedding-8B"`
	EmbeddingMaxLength         int           `envconfig:"EMBEDDING_MAX_LENGTH" default:"512"`
	EmbeddingBatchSize         int           `envconfig:"EMBEDDING_BATCH_SIZE" default:"32"`
	EmbeddingConcurrency       int           `envconfig:"EMBEDDING_CONCURRENCY" default:"4"`
	EmbeddingRequestsPerSecond float64       `envconfig:"EMBEDDING_REQUESTS_PER_SECOND" default:"0"`
	EmbeddingRequestTimeout    time.Duration `envconfig:"EMBEDDING_REQUEST_TIMEOUT" default:"45s"`

	DedupPreset string    `envconfig:"DEDUP_PRESET" default:"broad"`
	Dedup       Overrides `ignored:"true"`

	APIKeyHash         string `envconfig:"API_KEY_HASH" default:""`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

// Overrides are optional per-threshold replacements for the preset values.
// A nil field keeps the preset.
type Overrides struct {
	WithinSubjectMinCosine       *float64 `envconfig:"DEDUP_WITHIN_SUBJECT_MIN_COSINE"`
	WithinSubjectMinJaccard      *float64 `envconfig:"DEDUP_WITHIN_SUBJECT_MIN_JACCARD"`
	CrossSubjectMinCosine        *float64 `envconfig:"DEDUP_CROSS_SUBJECT_MIN_COSINE"`
	CrossSubjectMinEntityOverlap *float64 `envconfig:"DEDUP_CROSS_SUBJECT_MIN_ENTITY_OVERLAP"`
	MNNK                         *int     `envconfig:"DEDUP_MNN_K"`
	MaxSuggestionsPerSubject     *int     `envconfig:"DEDUP_MAX_SUGGESTIONS_PER_SUBJECT"`
	MaxClusterSize               *int     `envconfig:"DEDUP_MAX_CLUSTER_SIZE"`
	MinInterviewsPerCluster      *int     `envconfig:"DEDUP_MIN_INTERVIEWS_PER_CLUSTER"`
	EvidenceMinCosine            *float64 `envconfig:"DEDUP_EVIDENCE_MIN_COSINE"`
	LanguageGate                 *bool    `envconfig:"DEDUP_LANGUAGE_GATE"`
	SurfaceLowConfidence         *bool    `envconfig:"DEDUP_SURFACE_LOW_CONFIDENCE"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := envconfig.Process("", &cfg.Dedup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBMinConns < 0 {
		return fmt.Errorf("THEMEDUP_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("THEMEDUP_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("THEMEDUP_DB_MIN_CONNS (%d) cannot exceed THEMEDUP_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if strings.TrimSpace(c.EmbeddingEndpoint) == "" {
		return fmt.Errorf("EMBEDDING_ENDPOINT is required")
	}
	if c.EmbeddingBatchSize < 1 {
		return fmt.Errorf("EMBEDDING_BATCH_SIZE must be >= 1")
	}
	if c.EmbeddingConcurrency < 1 {
		return fmt.Errorf("EMBEDDING_CONCURRENCY must be >= 1")
	}
	if c.EmbeddingRequestsPerSecond < 0 {
		return fmt.Errorf("EMBEDDING_REQUESTS_PER_SECOND must be >= 0")
	}
	if c.EmbeddingRequestTimeout <= 0 {
		return fmt.Errorf("EMBEDDING_REQUEST_TIMEOUT must be > 0")
	}
	if _, err := c.DedupSettings(); err != nil {
		return err
	}
	return nil
}

// RequireDatabase reports a usable error for commands that need DATABASE_URL.
func (c *Config) RequireDatabase() error {
	if c == nil || strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// DedupSettings resolves DEDUP_PRESET and applies any overrides on top.
func (c *Config) DedupSettings() (dedup.Settings, error) {
	settings, err := dedup.PresetSettings(dedup.Preset(c.DedupPreset))
	if err != nil {
		return dedup.Settings{}, err
	}
	c.Dedup.Apply(&settings)
	if err := settings.Validate(); err != nil {
		return dedup.Settings{}, err
	}
	return settings, nil
}

// Apply copies the set overrides into s.
func (o Overrides) Apply(s *dedup.Settings) {
	setFloat(&s.WithinSubjectMinCosine, o.WithinSubjectMinCosine)
	setFloat(&s.WithinSubjectMinJaccard, o.WithinSubjectMinJaccard)
	setFloat(&s.CrossSubjectMinCosine, o.CrossSubjectMinCosine)
	setFloat(&s.CrossSubjectMinEntityOverlap, o.CrossSubjectMinEntityOverlap)
	setFloat(&s.EvidenceMinCosine, o.EvidenceMinCosine)
	setInt(&s.MNNK, o.MNNK)
	setInt(&s.MaxSuggestionsPerSubject, o.MaxSuggestionsPerSubject)
	setInt(&s.MaxClusterSize, o.MaxClusterSize)
	setInt(&s.MinInterviewsPerCluster, o.MinInterviewsPerCluster)
	if o.LanguageGate != nil {
		s.LanguageGate = *o.LanguageGate
	}
	if o.SurfaceLowConfidence != nil {
		s.SurfaceLowConfidence = *o.SurfaceLowConfidence
	}
}

func (c *Config) HTTPEmbeddingOptions() embedding.HTTPOptions {
	return embedding.HTTPOptions{
		Endpoint:       c.EmbeddingEndpoint,
		ModelName:      c.EmbeddingModelName,
		MaxLength:      c.EmbeddingMaxLength,
		RequestTimeout: c.EmbeddingRequestTimeout,
	}
}

func (c *Config) BatchOptions() embedding.BatchOptions {
	return embedding.BatchOptions{
		BatchSize:         c.EmbeddingBatchSize,
		Concurrency:       c.EmbeddingConcurrency,
		RequestsPerSecond: c.EmbeddingRequestsPerSecond,
	}
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
