package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/niksmo/smart-catalog/internal/core/domain"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const configFileEnvName = "CATALOG_CONFIG_FILE"

const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

type catalog struct {
	Source string `mapstructure:"source"`
	Path   string `mapstructure:"path"`
	SQLDB  string `mapstructure:"sql_db"`
}

type llm struct {
	Enabled   bool          `mapstructure:"enabled"`
	Provider  string        `mapstructure:"provider"`
	Model     string        `mapstructure:"model"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKeyEnv string        `mapstructure:"api_key_env"`
	Timeout   time.Duration `mapstructure:"timeout"`

	// APIKey is read from the environment variable named by APIKeyEnv.
	APIKey string `mapstructure:"-"`
}

type topics struct {
	SearchEvents string `mapstructure:"search_events"`
}

type brokerTLS struct {
	CA   string `mapstructure:"ca"`
	Cert string `mapstructure:"cert"`
	Key  string `mapstructure:"key"`
}

func (t brokerTLS) Enabled() bool {
	return t.CA != "" || t.Cert != "" || t.Key != ""
}

type broker struct {
	SeedBrokers        []string  `mapstructure:"seed_brokers"`
	SchemaRegistryURLs []string  `mapstructure:"schema_registry_urls"`
	Topics             topics    `mapstructure:"topics"`
	TLS                brokerTLS `mapstructure:"tls"`

	// ProduceTimeout bounds one search event publish.
	ProduceTimeout time.Duration `mapstructure:"produce_timeout"`
}

// Enabled reports whether search events are published.
func (b broker) Enabled() bool {
	return len(b.SeedBrokers) != 0
}

type Config struct {
	LogLevel           slog.Level    `mapstructure:"log_level"`
	HTTPServerAddr     string        `mapstructure:"http_server_addr"`
	HTTPHandlerTimeout time.Duration `mapstructure:"http_handler_timeout"`
	Catalog            catalog       `mapstructure:"catalog"`
	LLM                llm           `mapstructure:"llm"`
	Broker             broker        `mapstructure:"broker"`
}

func Load() Config {
	cfg, err := LoadFile(getConfigFilepath())
	if err != nil {
		die(err)
	}
	return cfg
}

// LoadFile reads the config at path, applies defaults, then resolves the
// provider secret from the environment. An optional .env file in the
// working directory is loaded first without overriding existing vars.
func LoadFile(path string) (Config, error) {
	const op = "config.LoadFile"

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("%s: %w: %w", op, domain.ErrConfig, err)
	}

	var cfg Config
	err := v.UnmarshalExact(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w: %w", op, domain.ErrConfig, err)
	}

	if err := loadDotEnv(); err != nil {
		return Config{}, fmt.Errorf("%s: %w: %w", op, domain.ErrConfig, err)
	}
	cfg.LLM.APIKey = strings.TrimSpace(os.Getenv(cfg.LLM.APIKeyEnv))

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w: %w", op, domain.ErrConfig, err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("http_server_addr", ":5000")
	v.SetDefault("http_handler_timeout", "15s")
	v.SetDefault("catalog.source", SourceFile)
	v.SetDefault("catalog.path", "products.json")
	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.provider", "googleai")
	v.SetDefault("llm.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("llm.timeout", "10s")
	v.SetDefault("broker.topics.search_events", "search-events")
	v.SetDefault("broker.produce_timeout", "5s")
}

func loadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (c Config) validate() error {
	var errs []error

	switch c.Catalog.Source {
	case SourceFile:
		if c.Catalog.Path == "" {
			errs = append(errs, errors.New("catalog.path: required for file source"))
		}
	case SourcePostgres:
		if c.Catalog.SQLDB == "" {
			errs = append(errs, errors.New("catalog.sql_db: required for postgres source"))
		}
	default:
		errs = append(errs, fmt.Errorf("catalog.source: unknown %q", c.Catalog.Source))
	}

	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout: must be positive"))
	}
	if c.HTTPHandlerTimeout <= c.LLM.Timeout {
		errs = append(errs, errors.New(
			"http_handler_timeout: must exceed llm.timeout",
		))
	}

	if c.Broker.Enabled() {
		if len(c.Broker.SchemaRegistryURLs) == 0 {
			errs = append(errs, errors.New("broker.schema_registry_urls: required with seed_brokers"))
		}
		if c.Broker.ProduceTimeout <= 0 {
			errs = append(errs, errors.New("broker.produce_timeout: must be positive"))
		}
		if c.Broker.Topics.SearchEvents == "" {
			errs = append(errs, errors.New("broker.topics.search_events: required with seed_brokers"))
		}
	}

	return errors.Join(errs...)
}

func getConfigFilepath() string {
	cmdLine := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	arg := cmdLine.String("config", "/config.yaml", "config file")
	_ = cmdLine.Parse(os.Args[1:])
	env, ok := os.LookupEnv(configFileEnvName)
	if ok {
		return env
	}
	return *arg
}

func die(err error) {
	fmt.Printf("failed to load config file: %v\n", err)
	os.Exit(2)
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func (c Config) Print() {
	tamplate := `
	General:
	LogLevel=%q
	HTTPServerAddr=%q
	HTTPHandlerTimeout=%q

	Catalog:
	Source=%q
	Path=%q
	SQLDB=%q

	LLM:
	Enabled=%t
	Provider=%q
	Model=%q
	BaseURL=%q
	APIKeyEnv=%q
	APIKey=%q
	Timeout=%q

	BrokerConfig:
	SeedBrokers=%q
	SchemaRegistryURLs=%q
	TLS=%t
	ProduceTimeout=%q
	Topics:
		SearchEvents=%q

`
	fmt.Println("Loaded config:")
	fmt.Printf(
		strings.TrimLeft(tamplate, "\n"),
		c.LogLevel,
		c.HTTPServerAddr,
		c.HTTPHandlerTimeout,
		c.Catalog.Source,
		c.Catalog.Path,
		maskDSN(c.Catalog.SQLDB),
		c.LLM.Enabled,
		c.LLM.Provider,
		c.LLM.Model,
		c.LLM.BaseURL,
		c.LLM.APIKeyEnv,
		maskSecret(c.LLM.APIKey),
		c.LLM.Timeout,
		c.Broker.SeedBrokers,
		c.Broker.SchemaRegistryURLs,
		c.Broker.TLS.Enabled(),
		c.Broker.ProduceTimeout,
		c.Broker.Topics.SearchEvents,
	)
}

// maskDSN hides the password of a postgres URL.
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	user, _, hasPass := strings.Cut(creds, ":")
	if !hasPass {
		return dsn
	}
	return dsn[:scheme+3] + user + ":" + maskSecret("x") + dsn[at:]
}
