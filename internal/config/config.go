package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/basel-ax/illustrator/internal/domain"
)

// Generator backends
const (
	GeminiBackendREST = "rest"
	GeminiBackendSDK  = "sdk"
)

// Storage backends
const (
	StorageSupabase = "supabase"
	StorageGCS      = "gcs"
)

// Manifest backends
const (
	ManifestFile     = "file"
	ManifestSQLite   = "sqlite"
	ManifestPostgres = "postgres"
	ManifestNone     = "none"
)

// GeminiConfig holds image generation settings
type GeminiConfig struct {
	APIKey  string
	Backend string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// StorageConfig holds object storage settings
type StorageConfig struct {
	Backend        string
	SupabaseURL    string
	SupabaseBucket string
	SupabaseAPIKey string
	GCSBucket      string
	UploadTimeout  time.Duration
}

// DBConfig holds database configuration for the postgres manifest
type DBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ManifestConfig selects where run state is persisted
type ManifestConfig struct {
	Backend    string
	Path       string
	SQLitePath string
}

// RunConfig holds orchestration settings
type RunConfig struct {
	InterItemDelay time.Duration
	RetryTextOnly  bool
	CatalogPath    string
	MetricsFile    string
}

// Config holds all configuration for the application
type Config struct {
	Gemini   GeminiConfig
	Storage  StorageConfig
	Manifest ManifestConfig
	DB       DBConfig
	Run      RunConfig
}

// In is the flat environment view decoded by envconfig.
type In struct {
	GeminiAPIKey  string        `env:"GEMINI_API_KEY"`
	GeminiBackend string        `env:"GEMINI_BACKEND, default=rest"`
	GeminiBaseURL string        `env:"GEMINI_BASE_URL, default=https://generativelanguage.googleapis.com/v1beta/models"`
	GeminiModel   string        `env:"GEMINI_MODEL, default=gemini-2.5-flash-image"`
	GeminiTimeout time.Duration `env:"GEMINI_TIMEOUT, default=2m"`

	StorageBackend string        `env:"STORAGE_BACKEND, default=supabase"`
	SupabaseURL    string        `env:"SUPABASE_URL, default=https://fwhafpasoifwwgfudaeq.supabase.co"`
	SupabaseBucket string        `env:"SUPABASE_BUCKET, default=lavie-illustrations"`
	SupabaseKey    string        `env:"SUPABASE_SERVICE_ROLE_KEY"`
	GCSBucket      string        `env:"GCS_BUCKET"`
	UploadTimeout  time.Duration `env:"UPLOAD_TIMEOUT, default=2m"`

	ManifestBackend string `env:"MANIFEST_BACKEND, default=file"`
	ManifestPath    string `env:"MANIFEST_PATH, default=illustrations-manifest.yaml"`
	SQLitePath      string `env:"SQLITE_PATH, default=illustrations.db"`

	DBHost            string        `env:"DB_HOST"`
	DBPort            int           `env:"DB_PORT, default=5432"`
	DBUser            string        `env:"DB_USER"`
	DBPassword        string        `env:"DB_PASSWORD"`
	DBName            string        `env:"DB_NAME"`
	DBSSLMode         string        `env:"DB_SSL_MODE, default=disable"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS, default=25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS, default=25"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME, default=5m"`

	InterItemDelay time.Duration `env:"INTER_ITEM_DELAY, default=3s"`
	RetryTextOnly  bool          `env:"RETRY_TEXT_ONLY, default=false"`
	CatalogPath    string        `env:"ILLUSTRATOR_CATALOG"`
	MetricsFile    string        `env:"METRICS_FILE"`
}

// Load loads the configuration from a .env file, when present, and the
// process environment.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadUnchecked is Load without validation, for commands that only read
// the catalog and the manifest.
func LoadUnchecked(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}
	return Decode(ctx, envconfig.OsLookuper())
}

// LoadFrom decodes the configuration from an arbitrary lookuper and
// validates it.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg, err := Decode(ctx, lookuper)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode maps the environment onto Config without validating it.
func Decode(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var in In

	c, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := envconfig.ProcessWith(c, &envconfig.Config{
		Target:   &in,
		Lookuper: lookuper,
	}); err != nil {
		return nil, &domain.ConfigurationError{Reason: err.Error()}
	}

	cfg := &Config{
		Gemini: GeminiConfig{
			APIKey:  in.GeminiAPIKey,
			Backend: strings.ToLower(in.GeminiBackend),
			BaseURL: strings.TrimRight(in.GeminiBaseURL, "/"),
			Model:   in.GeminiModel,
			Timeout: in.GeminiTimeout,
		},
		Storage: StorageConfig{
			Backend:        strings.ToLower(in.StorageBackend),
			SupabaseURL:    strings.TrimRight(in.SupabaseURL, "/"),
			SupabaseBucket: in.SupabaseBucket,
			SupabaseAPIKey: in.SupabaseKey,
			GCSBucket:      in.GCSBucket,
			UploadTimeout:  in.UploadTimeout,
		},
		Manifest: ManifestConfig{
			Backend:    strings.ToLower(in.ManifestBackend),
			Path:       in.ManifestPath,
			SQLitePath: in.SQLitePath,
		},
		DB: DBConfig{
			Host:            in.DBHost,
			Port:            in.DBPort,
			User:            in.DBUser,
			Password:        in.DBPassword,
			Database:        in.DBName,
			SSLMode:         in.DBSSLMode,
			MaxOpenConns:    in.DBMaxOpenConns,
			MaxIdleConns:    in.DBMaxIdleConns,
			ConnMaxLifetime: in.DBConnMaxLifetime,
		},
		Run: RunConfig{
			InterItemDelay: in.InterItemDelay,
			RetryTextOnly:  in.RetryTextOnly,
			CatalogPath:    in.CatalogPath,
			MetricsFile:    in.MetricsFile,
		},
	}

	return cfg, nil
}

// Validate checks required fields and enumerations. All missing settings
// are reported together.
func (c *Config) Validate() error {
	var missing, reasons []string

	if c.Gemini.APIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	switch c.Gemini.Backend {
	case GeminiBackendREST, GeminiBackendSDK:
	default:
		reasons = append(reasons, fmt.Sprintf("unsupported GEMINI_BACKEND %q", c.Gemini.Backend))
	}

	switch c.Storage.Backend {
	case StorageSupabase:
		if c.Storage.SupabaseAPIKey == "" {
			missing = append(missing, "SUPABASE_SERVICE_ROLE_KEY")
		}
		if c.Storage.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			missing = append(missing, "GCS_BUCKET")
		}
	default:
		reasons = append(reasons, fmt.Sprintf("unsupported STORAGE_BACKEND %q", c.Storage.Backend))
	}

	switch c.Manifest.Backend {
	case ManifestFile:
		if c.Manifest.Path == "" {
			missing = append(missing, "MANIFEST_PATH")
		}
	case ManifestSQLite:
		if c.Manifest.SQLitePath == "" {
			missing = append(missing, "SQLITE_PATH")
		}
	case ManifestPostgres:
		if c.DB.Host == "" {
			missing = append(missing, "DB_HOST")
		}
		if c.DB.User == "" {
			missing = append(missing, "DB_USER")
		}
		if c.DB.Password == "" {
			missing = append(missing, "DB_PASSWORD")
		}
		if c.DB.Database == "" {
			missing = append(missing, "DB_NAME")
		}
	case ManifestNone:
	default:
		reasons = append(reasons, fmt.Sprintf("unsupported MANIFEST_BACKEND %q", c.Manifest.Backend))
	}

	if c.Run.InterItemDelay < 0 {
		reasons = append(reasons, "INTER_ITEM_DELAY must not be negative")
	}

	if len(missing) == 0 && len(reasons) == 0 {
		return nil
	}
	return &domain.ConfigurationError{Missing: missing, Reason: strings.Join(reasons, "; ")}
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

// Usage describes the environment a run needs.
const Usage = `Usage:
  GEMINI_API_KEY=your_key SUPABASE_SERVICE_ROLE_KEY=your_key illustrator run

The Supabase service_role key is in the Supabase dashboard under Settings -> API.
Set STORAGE_BACKEND=gcs and GCS_BUCKET to upload to Google Cloud Storage instead.`
