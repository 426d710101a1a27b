package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ErrMissingCredential is returned when LLM_API_KEY is absent.
var ErrMissingCredential = errors.New("config: LLM_API_KEY is required in the environment or .env file")

const (
	KeyLLMAPIKey          = "LLM_API_KEY"
	KeyAccessControl      = "ENABLE_BACKEND_ACCESS_CONTROL"
	KeyEngineURL          = "KGRBAC_ENGINE_URL"
	KeyPostgresDSN        = "KGRBAC_PG_DSN"
	KeyDataDir            = "KGRBAC_DATA_DIR"
	KeyMigrationProvider  = "MIGRATION_DB_PROVIDER"
	KeyMigrationPath      = "MIGRATION_DB_PATH"
	KeyMigrationName      = "MIGRATION_DB_NAME"
	KeyLLMEndpoint        = "LLM_ENDPOINT"
	KeyLLMModel           = "LLM_MODEL"
	KeyEmbeddingModel     = "EMBEDDING_MODEL"
	KeyHTTPAddr           = "KGRBAC_HTTP_ADDR"
	KeyGRPCAddr           = "KGRBAC_GRPC_ADDR"
	KeySessionSecret      = "KGRBAC_SESSION_SECRET"
	defaultDataDir        = "demo_files"
	defaultLLMEndpoint    = "https://generativelanguage.googleapis.com/v1beta"
	defaultLLMModel       = "gemini-2.5-flash"
	defaultEmbeddingModel = "text-embedding-004"
)

// MigrationSource describes the relational database consumed by the graph PoC.
type MigrationSource struct {
	Provider string
	Path     string
	Name     string
}

// File returns the full path of the source database.
func (m MigrationSource) File() string {
	return filepath.Join(m.Path, m.Name)
}

// Config holds process settings resolved from the environment and .env.
type Config struct {
	LLMAPIKey      string
	AccessControl  bool
	EngineURL      string
	PostgresDSN    string
	DataDir        string
	Migration      MigrationSource
	LLMEndpoint    string
	LLMModel       string
	EmbeddingModel string
	HTTPAddr       string
	GRPCAddr       string
	SessionSecret  string
}

// Load reads .env from the working directory (if present) and the process environment.
func Load() (Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is not an error.
func LoadFile(dotenv string) (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault(KeyAccessControl, true)
	v.SetDefault(KeyDataDir, defaultDataDir)
	v.SetDefault(KeyMigrationProvider, "sqlite")
	v.SetDefault(KeyMigrationName, "alpha_fund_data.db")
	v.SetDefault(KeyLLMEndpoint, defaultLLMEndpoint)
	v.SetDefault(KeyLLMModel, defaultLLMModel)
	v.SetDefault(KeyEmbeddingModel, defaultEmbeddingModel)
	v.SetDefault(KeyHTTPAddr, ":8501")
	v.SetDefault(KeyGRPCAddr, ":9091")

	if dotenv != "" {
		v.SetConfigFile(dotenv)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read %s: %w", dotenv, err)
		}
		exportDotenv(v)
	}

	// Engines read the enforcement flag straight from the environment.
	if _, ok := os.LookupEnv(KeyAccessControl); !ok {
		if err := os.Setenv(KeyAccessControl, "True"); err != nil {
			return Config{}, fmt.Errorf("set %s: %w", KeyAccessControl, err)
		}
	}

	cfg := Config{
		LLMAPIKey:     strings.TrimSpace(v.GetString(KeyLLMAPIKey)),
		AccessControl: v.GetBool(KeyAccessControl),
		EngineURL:     strings.TrimRight(strings.TrimSpace(v.GetString(KeyEngineURL)), "/"),
		PostgresDSN:   strings.TrimSpace(v.GetString(KeyPostgresDSN)),
		DataDir:       v.GetString(KeyDataDir),
		Migration: MigrationSource{
			Provider: strings.ToLower(v.GetString(KeyMigrationProvider)),
			Path:     v.GetString(KeyMigrationPath),
			Name:     v.GetString(KeyMigrationName),
		},
		LLMEndpoint:    strings.TrimRight(v.GetString(KeyLLMEndpoint), "/"),
		LLMModel:       v.GetString(KeyLLMModel),
		EmbeddingModel: v.GetString(KeyEmbeddingModel),
		HTTPAddr:       v.GetString(KeyHTTPAddr),
		GRPCAddr:       v.GetString(KeyGRPCAddr),
		SessionSecret:  v.GetString(KeySessionSecret),
	}
	if cfg.Migration.Path == "" {
		cfg.Migration.Path = cfg.DataDir
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required values.
func (c Config) Validate() error {
	if c.LLMAPIKey == "" {
		return ErrMissingCredential
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: %s must not be empty", KeyDataDir)
	}
	return nil
}

// DataPath joins parts under the demo data directory.
func (c Config) DataPath(parts ...string) string {
	return filepath.Join(append([]string{c.DataDir}, parts...)...)
}

// exportDotenv copies dotenv values into the process environment without
// overriding variables that are already set.
func exportDotenv(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		if !v.InConfig(key) {
			continue
		}
		_ = os.Setenv(name, v.GetString(key))
	}
}
