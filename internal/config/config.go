// Package config loads inboxledger settings from flags, environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joshsymonds/inboxledger/internal/cluster"
	"github.com/joshsymonds/inboxledger/internal/embed"
	"github.com/joshsymonds/inboxledger/internal/gmail"
	"github.com/joshsymonds/inboxledger/internal/processor"
)

const EnvPrefix = "INBOXLEDGER"

type Config struct {
	Gmail     GmailConfig     `mapstructure:"gmail"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Cluster   ClusterConfig   `mapstructure:"cluster"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Log       LogConfig       `mapstructure:"log"`
}

type GmailConfig struct {
	Token          string   `mapstructure:"token"`
	RefreshToken   string   `mapstructure:"refresh_token"`
	TokenURI       string   `mapstructure:"token_uri"`
	ClientID       string   `mapstructure:"client_id"`
	ClientSecret   string   `mapstructure:"client_secret"`
	Scopes         []string `mapstructure:"scopes"`
	CredentialsDir string   `mapstructure:"credentials_dir"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type FetchConfig struct {
	Days       int      `mapstructure:"days"`
	MaxResults int      `mapstructure:"max_results"`
	PageSize   int      `mapstructure:"page_size"`
	RPS        int      `mapstructure:"rps"`
	Workers    int      `mapstructure:"workers"`
	Labels     []string `mapstructure:"labels"`
	Threads    bool     `mapstructure:"threads"`
}

type ProcessorConfig struct {
	Kind     string `mapstructure:"kind"`
	MimeType string `mapstructure:"mime_type"`
	Selector string `mapstructure:"selector"`
}

type EmbeddingConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ClusterConfig struct {
	Eps        float64 `mapstructure:"eps"`
	MinSamples int     `mapstructure:"min_samples"`
}

type IngestConfig struct {
	Reprocess bool `mapstructure:"reprocess"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every key so environment overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("gmail.token", "")
	v.SetDefault("gmail.refresh_token", "")
	v.SetDefault("gmail.token_uri", gmail.DefaultTokenURI)
	v.SetDefault("gmail.client_id", "")
	v.SetDefault("gmail.client_secret", "")
	v.SetDefault("gmail.scopes", []string{gmail.ScopeReadonly})
	v.SetDefault("gmail.credentials_dir", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "inboxledger.db")

	v.SetDefault("fetch.days", 7)
	v.SetDefault("fetch.max_results", 50)
	v.SetDefault("fetch.page_size", 100)
	v.SetDefault("fetch.rps", 4)
	v.SetDefault("fetch.workers", 1)
	v.SetDefault("fetch.labels", []string{string(gmail.LabelInbox)})
	v.SetDefault("fetch.threads", false)

	v.SetDefault("processor.kind", processor.KindRegex)
	v.SetDefault("processor.mime_type", processor.DefaultMimeType)
	v.SetDefault("processor.selector", "")

	v.SetDefault("embedding.base_url", embed.DefaultBaseURL)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", embed.DefaultModel)
	v.SetDefault("embedding.timeout", embed.DefaultTimeout)

	v.SetDefault("cluster.eps", cluster.DefaultEps)
	v.SetDefault("cluster.min_samples", cluster.DefaultMinSamples)

	v.SetDefault("ingest.reprocess", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with defaults and environment binding. A
// non-empty file must exist; otherwise inboxledger.yaml is looked up in the
// working directory and ~/.config/inboxledger and may be absent.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, gmail.Wrap(gmail.ErrConfig, "read config", err)
		}
		return v, nil
	}
	v.SetConfigName("inboxledger")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/inboxledger")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, gmail.Wrap(gmail.ErrConfig, "read config", err)
		}
	}
	return v, nil
}

// Load decodes v and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, gmail.Wrap(gmail.ErrConfig, "decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks everything except the database settings, which only some
// commands need.
func (c *Config) Validate() error {
	var problems []string
	if c.Fetch.Days < 0 {
		problems = append(problems, "fetch.days must not be negative")
	}
	if c.Fetch.MaxResults < 0 {
		problems = append(problems, "fetch.max_results must not be negative")
	}
	if c.Fetch.PageSize < 0 || c.Fetch.PageSize > 500 {
		problems = append(problems, "fetch.page_size must be between 0 and 500")
	}
	if c.Fetch.RPS < 0 {
		problems = append(problems, "fetch.rps must not be negative")
	}
	if c.Fetch.Workers < 1 {
		problems = append(problems, "fetch.workers must be at least 1")
	}
	if !contains(processor.Kinds(), c.Processor.Kind) {
		problems = append(problems, fmt.Sprintf("processor.kind must be one of %v", processor.Kinds()))
	}
	if c.Processor.Selector != "" {
		if _, err := processor.ParseSelector(c.Processor.Selector); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if c.Processor.Kind == processor.KindLLM && c.Embedding.APIKey == "" && c.Embedding.BaseURL == embed.DefaultBaseURL {
		problems = append(problems, "embedding.api_key is required for the llm processor")
	}
	if c.Cluster.Eps <= 0 {
		problems = append(problems, "cluster.eps must be positive")
	}
	if c.Cluster.MinSamples < 1 {
		problems = append(problems, "cluster.min_samples must be at least 1")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		problems = append(problems, "log.format must be text or json")
	}
	if len(problems) > 0 {
		return gmail.Errorf(gmail.ErrConfig, "validate config", "%s", strings.Join(problems, "; "))
	}
	return nil
}

// ValidateDatabase checks the persistence settings.
func (c *Config) ValidateDatabase() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return gmail.Errorf(gmail.ErrConfig, "validate config", "database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return gmail.Errorf(gmail.ErrConfig, "validate config", "database.dsn is required")
	}
	return nil
}

// Credentials returns the OAuth credentials from the gmail section.
func (c *Config) Credentials() gmail.Credentials {
	return gmail.Credentials{
		Token:        c.Gmail.Token,
		RefreshToken: c.Gmail.RefreshToken,
		TokenURI:     c.Gmail.TokenURI,
		ClientID:     c.Gmail.ClientID,
		ClientSecret: c.Gmail.ClientSecret,
		Scopes:       c.Gmail.Scopes,
	}.WithDefaults()
}

// Labels returns the configured fetch labels as IDs.
func (c *Config) Labels() []gmail.LabelID {
	return gmail.ParseLabelIDs(strings.Join(c.Fetch.Labels, ","))
}

// LogConfig writes the effective configuration with secrets redacted.
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration",
		slog.Group("gmail",
			slog.String("token", redact(c.Gmail.Token)),
			slog.String("refresh_token", redact(c.Gmail.RefreshToken)),
			slog.String("client_id", c.Gmail.ClientID),
			slog.String("client_secret", redact(c.Gmail.ClientSecret)),
			slog.String("credentials_dir", c.Gmail.CredentialsDir)),
		slog.Group("database",
			slog.String("driver", c.Database.Driver),
			slog.String("dsn", redactDSN(c.Database.DSN))),
		slog.Group("fetch",
			slog.Int("days", c.Fetch.Days),
			slog.Int("max_results", c.Fetch.MaxResults),
			slog.Int("page_size", c.Fetch.PageSize),
			slog.Int("rps", c.Fetch.RPS),
			slog.Int("workers", c.Fetch.Workers),
			slog.Any("labels", c.Fetch.Labels),
			slog.Bool("threads", c.Fetch.Threads)),
		slog.Group("processor",
			slog.String("kind", c.Processor.Kind),
			slog.String("mime_type", c.Processor.MimeType),
			slog.String("selector", c.Processor.Selector)),
		slog.Group("embedding",
			slog.String("base_url", c.Embedding.BaseURL),
			slog.String("api_key", redact(c.Embedding.APIKey)),
			slog.String("model", c.Embedding.Model),
			slog.Duration("timeout", c.Embedding.Timeout)),
		slog.Group("cluster",
			slog.Float64("eps", c.Cluster.Eps),
			slog.Int("min_samples", c.Cluster.MinSamples)),
		slog.Bool("reprocess", c.Ingest.Reprocess),
	)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}

// redactDSN hides the password of URL style DSNs.
func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, hasPass := strings.Cut(creds, ":")
	if !hasPass {
		return dsn
	}
	return scheme + "://" + user + ":[redacted]@" + host
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
