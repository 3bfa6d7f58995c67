// Package config loads daoledger configuration from defaults, an optional
// YAML file, a .env file and DAOLEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for a daoledger run.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Input      InputConfig      `mapstructure:"input"`
	Indexer    IndexerConfig    `mapstructure:"indexer"`
	Prices     PricesConfig     `mapstructure:"prices"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	CoreTeam   CoreTeamConfig   `mapstructure:"core_team"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Extract    ExtractConfig    `mapstructure:"extract"`
	Report     ReportConfig     `mapstructure:"report"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Database   DatabaseConfig   `mapstructure:"database"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	DLQ        DLQConfig        `mapstructure:"dlq"`
	Output     OutputConfig     `mapstructure:"output"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// InputConfig names a proposal batch file. When File is empty proposals
// are fetched from the indexer.
type InputConfig struct {
	File string `mapstructure:"file"`
}

// IndexerConfig holds DAO DAO indexer settings
type IndexerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Network        string        `mapstructure:"network"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Retries        uint          `mapstructure:"retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	ProposalFilter string        `mapstructure:"proposal_filter"`
	MainDAO        string        `mapstructure:"main_dao"`
	CoreTeamSubDAO string        `mapstructure:"core_team_subdao"`
	IncludeMain    bool          `mapstructure:"include_main"`
	SubDAOs        []string      `mapstructure:"subdaos"`
}

// PricesConfig holds price sources
type PricesConfig struct {
	Files     []string        `mapstructure:"files"`
	CoinGecko CoinGeckoConfig `mapstructure:"coingecko"`
}

// CoinGeckoConfig holds the remote price fallback settings
type CoinGeckoConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// RegistryConfig locates the token registry asset list
type RegistryConfig struct {
	File string `mapstructure:"file"`
	URL  string `mapstructure:"url"`
}

// CoreTeamConfig lists core team wallets. Auto fetches the members of the
// indexer's core team sub-DAO when no addresses are configured.
type CoreTeamConfig struct {
	Addresses []string `mapstructure:"addresses"`
	File      string   `mapstructure:"file"`
	Auto      bool     `mapstructure:"auto"`
}

// PipelineConfig holds batch processing settings
type PipelineConfig struct {
	Workers          int `mapstructure:"workers"`
	ValuationWorkers int `mapstructure:"valuation_workers"`
}

// ExtractConfig holds address and denom defaults used by the extractor
type ExtractConfig struct {
	AddressPrefix string `mapstructure:"address_prefix"`
	DefaultDenom  string `mapstructure:"default_denom"`
}

// ReportConfig holds report settings
type ReportConfig struct {
	IncludeZeroUSD bool `mapstructure:"include_zero_usd"`
	TopRecipients  int  `mapstructure:"top_recipients"`
}

// CacheConfig holds the Redis remote-price cache settings
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// DatabaseConfig holds ledger persistence settings
type DatabaseConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN renders a postgres connection URL.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

// OpenSearchConfig holds transaction search index settings
type OpenSearchConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Insecure    bool   `mapstructure:"insecure"`
	IndexPrefix string `mapstructure:"index_prefix"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	Subject       string        `mapstructure:"subject"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// MetricsConfig holds the pushgateway target. An empty URL disables pushing.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// DLQConfig holds dead-letter queue settings
type DLQConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// OutputConfig holds report output settings
type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	Format      string `mapstructure:"format"`
	CSV         string `mapstructure:"csv"`
	DetailedCSV string `mapstructure:"detailed_csv"`
	JSON        string `mapstructure:"json"`
}

// Path joins name onto the output directory. Empty names stay empty.
func (o OutputConfig) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.Dir, name)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("input.file", "")

	v.SetDefault("indexer.base_url", "https://indexer.daodao.zone")
	v.SetDefault("indexer.network", "osmosis-1")
	v.SetDefault("indexer.timeout", "30s")
	v.SetDefault("indexer.retries", 3)
	v.SetDefault("indexer.retry_delay", "500ms")
	v.SetDefault("indexer.proposal_filter", "passed")
	v.SetDefault("indexer.main_dao", "osmo1a40j922z0kwqhw2nn0nx66ycyk88vyzcs73fyjrd092cjgyvyjksrd8dp7")
	v.SetDefault("indexer.core_team_subdao", "osmo18pl3nq7r5xht260jsm245j3c8xjhu2nd7ucasllfj4waqehrw3zsll9zgq")
	v.SetDefault("indexer.include_main", true)
	v.SetDefault("indexer.subdaos", []string{})

	v.SetDefault("prices.files", []string{"data/prices/osmo_prices.json"})
	v.SetDefault("prices.coingecko.enabled", true)
	v.SetDefault("prices.coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("prices.coingecko.api_key", "")
	v.SetDefault("prices.coingecko.timeout", "10s")
	v.SetDefault("prices.coingecko.requests_per_minute", 30)

	v.SetDefault("registry.file", "")
	v.SetDefault("registry.url", "")

	v.SetDefault("core_team.addresses", []string{})
	v.SetDefault("core_team.file", "")
	v.SetDefault("core_team.auto", true)

	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("pipeline.valuation_workers", 1)

	v.SetDefault("extract.address_prefix", "osmo")
	v.SetDefault("extract.default_denom", "uosmo")

	v.SetDefault("report.include_zero_usd", false)
	v.SetDefault("report.top_recipients", 10)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.ttl", "168h")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "daoledger")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "daoledger")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("opensearch.enabled", false)
	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.password", "")
	v.SetDefault("opensearch.insecure", true)
	v.SetDefault("opensearch.index_prefix", "daoledger")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "daoledger.runs.completed")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "daoledger")

	v.SetDefault("dlq.enabled", true)
	v.SetDefault("dlq.path", filepath.Join(os.TempDir(), "daoledger", "dlq"))

	v.SetDefault("output.dir", "reports")
	v.SetDefault("output.format", "text")
	v.SetDefault("output.csv", "ledger.csv")
	v.SetDefault("output.detailed_csv", "detailed_ledger.csv")
	v.SetDefault("output.json", "")
}

// Load reads configuration. Precedence, highest first: DAOLEDGER_*
// environment variables (including those from envFiles, or ./.env when
// none are given), the config file, then defaults. A missing .env file is
// ignored. A missing config file is an error only when configPath is set.
func Load(configPath string, envFiles ...string) (*Config, error) {
	explicitEnv := len(envFiles) > 0
	if !explicitEnv {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if !explicitEnv && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("daoledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".daoledger"))
		}
		v.AddConfigPath("/etc/daoledger")
	}

	v.SetEnvPrefix("DAOLEDGER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.Workers < 1 {
		errs = append(errs, fmt.Errorf("pipeline.workers must be >= 1, got %d", c.Pipeline.Workers))
	}
	if c.Pipeline.ValuationWorkers < 1 {
		errs = append(errs, fmt.Errorf("pipeline.valuation_workers must be >= 1, got %d", c.Pipeline.ValuationWorkers))
	}
	switch c.Output.Format {
	case "text", "json", "yaml":
	default:
		errs = append(errs, fmt.Errorf("output.format must be text, json or yaml, got %q", c.Output.Format))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	if c.Input.File == "" && c.Indexer.MainDAO == "" {
		errs = append(errs, errors.New("either input.file or indexer.main_dao is required"))
	}
	if c.Extract.AddressPrefix == "" {
		errs = append(errs, errors.New("extract.address_prefix is required"))
	}
	if c.Cache.Enabled && c.Cache.RedisURL == "" {
		errs = append(errs, errors.New("cache.redis_url is required when the cache is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
