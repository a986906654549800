package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds process-level settings resolved from the environment
type Config struct {
	DBPath      string
	ProfilePath string
	LogLevel    slog.Level
	LogFile     string
	ServerAddr  string
	Minio       MinioConfig
}

// MinioConfig describes where exported snapshots are published
type MinioConfig struct {
	Endpoint  string
	Bucket    string
	Folder    string
	AccessKey string
	SecretKey string
	Secure    bool
}

// Enabled reports whether enough settings are present to publish
func (m MinioConfig) Enabled() bool {
	return m.Endpoint != "" && m.Bucket != ""
}

// Validate checks the settings needed to create a client
func (m MinioConfig) Validate() error {
	if m.Endpoint == "" {
		return errors.New("RECSYNC_MINIO_ENDPOINT is required")
	}
	if m.Bucket == "" {
		return errors.New("RECSYNC_MINIO_BUCKET is required")
	}
	if m.AccessKey == "" || m.SecretKey == "" {
		return errors.New("RECSYNC_MINIO_ACCESS_KEY and RECSYNC_MINIO_SECRET_KEY are required")
	}
	return nil
}

// Load reads an optional .env file and the RECSYNC_* environment
func Load() (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	level, err := ParseLevel(getEnv("RECSYNC_LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	secure, err := strconv.ParseBool(getEnv("RECSYNC_MINIO_SECURE", "true"))
	if err != nil {
		return nil, errors.New("invalid RECSYNC_MINIO_SECURE value")
	}

	return &Config{
		DBPath:      getEnv("RECSYNC_DB", "recsync.db"),
		ProfilePath: os.Getenv("RECSYNC_PROFILE"),
		LogLevel:    level,
		LogFile:     os.Getenv("RECSYNC_LOG_FILE"),
		ServerAddr:  getEnv("RECSYNC_ADDR", ":8080"),
		Minio: MinioConfig{
			Endpoint:  os.Getenv("RECSYNC_MINIO_ENDPOINT"),
			Bucket:    os.Getenv("RECSYNC_MINIO_BUCKET"),
			Folder:    os.Getenv("RECSYNC_MINIO_FOLDER"),
			AccessKey: os.Getenv("RECSYNC_MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("RECSYNC_MINIO_SECRET_KEY"),
			Secure:    secure,
		},
	}, nil
}

// ParseLevel maps debug/info/warn/error to a slog level
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Profile describes the shape of the ingested tables
type Profile struct {
	KeyColumn       string            `yaml:"key_column"`
	RequiredColumns []string          `yaml:"required_columns"`
	LegacyColumns   []string          `yaml:"legacy_columns"`
	ExportOrder     []string          `yaml:"export_order"`
	ExportAliases   map[string]string `yaml:"export_aliases"`
	PageSize        int               `yaml:"page_size"`
}

var defaultColumns = []string{
	"NOP",
	"PROGRAM",
	"KATEGORI",
	"JUSTIFIKASI",
	"PROPOSAL",
	"BUDGET",
	"REVENUE",
	"COST",
	"PROFIT",
	"INCREMENTAL 1",
	"INCREMENTAL 2",
	"INCREMENTAL 3",
	"STATUS",
	"PILOT",
	"DRIVEN PROGRAM",
	"ASSIGN BY",
	"APPROVED BY",
}

// DefaultProfile returns the program-proposal profile
func DefaultProfile() *Profile {
	return &Profile{
		KeyColumn:       "NOP",
		RequiredColumns: append([]string(nil), defaultColumns...),
		LegacyColumns:   []string{"REVENUE (ACTUAL)"},
		ExportOrder:     append([]string(nil), defaultColumns...),
		ExportAliases:   map[string]string{"REVENUE INCREMENTAL 1": "INCREMENTAL 1"},
		PageSize:        500,
	}
}

// LoadProfile reads a YAML profile. Fields left out keep their defaults.
// An empty path returns the default profile.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// ColumnName is the canonical form of a column name: trimmed, internal
// whitespace collapsed, uppercased.
func ColumnName(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}

// Validate checks the profile is usable and canonicalizes every column name
// it carries, so a profile may spell them in any case.
func (p *Profile) Validate() error {
	p.KeyColumn = ColumnName(p.KeyColumn)
	if p.KeyColumn == "" {
		return errors.New("key_column is required")
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultProfile().PageSize
	}
	p.RequiredColumns = columnNames(p.RequiredColumns)
	p.LegacyColumns = columnNames(p.LegacyColumns)
	p.ExportOrder = columnNames(p.ExportOrder)
	if len(p.ExportAliases) > 0 {
		aliases := make(map[string]string, len(p.ExportAliases))
		for from, to := range p.ExportAliases {
			aliases[ColumnName(from)] = ColumnName(to)
		}
		p.ExportAliases = aliases
	}

	for _, c := range p.RequiredColumns {
		if c == p.KeyColumn {
			return nil
		}
	}
	p.RequiredColumns = append([]string{p.KeyColumn}, p.RequiredColumns...)
	return nil
}

// columnNames canonicalizes names, dropping blanks and repeats.
func columnNames(names []string) []string {
	if names == nil {
		return nil
	}
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		c := ColumnName(n)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
