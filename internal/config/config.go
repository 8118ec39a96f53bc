package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslMode"`
}

type Minio struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
	BucketName string `yaml:"bucketName"`
	Region     string `yaml:"region"`
	UseSSL     bool   `yaml:"useSSL"`
}

type Config struct {
	Server struct {
		Port           int `yaml:"port"`
		RequestTimeout int `yaml:"request_timeout"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Snowflake struct {
		Account          string        `yaml:"account"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		PrivateKey       string        `yaml:"private_key"`
		PublicKey        string        `yaml:"public_key"`
		Warehouse        string        `yaml:"warehouse"`
		Database         string        `yaml:"database"`
		Schema           string        `yaml:"schema"`
		Role             string        `yaml:"role"`
		StatementTimeout int           `yaml:"statement_timeout"`
		PollInterval     time.Duration `yaml:"poll_interval"`
		PollAttempts     int           `yaml:"poll_attempts"`
	} `yaml:"snowflake"`

	OpenAI struct {
		APIKey          string `yaml:"api_key"`
		Model           string `yaml:"model"`
		AzureEndpoint   string `yaml:"azure_endpoint"`
		AzureAPIKey     string `yaml:"azure_api_key"`
		AzureDeployment string `yaml:"azure_deployment"`
		AzureAPIVersion string `yaml:"azure_api_version"`
	} `yaml:"openai"`

	Validator struct {
		Strict        bool     `yaml:"strict"`
		AllowedTables []string `yaml:"allowed_tables"`
		MaxOpenParens int      `yaml:"max_open_parens"`
		DefaultLimit  int      `yaml:"default_limit"`
	} `yaml:"validator"`

	Auth struct {
		// tenant -> api key; empty disables auth
		APIKeys map[string]string `yaml:"api_keys"`
	} `yaml:"auth"`

	RateLimit struct {
		RequestsPerMinute int `yaml:"requests_per_minute"`
		Burst             int `yaml:"burst"`
	} `yaml:"ratelimit"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Audit struct {
		Driver   string   `yaml:"driver"`
		Database Database `yaml:"database"`
		Minio    Minio    `yaml:"minio"`
	} `yaml:"audit"`
}

// LoadEnvFile preloads a .env file into the process environment. A missing
// file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load baca file config.yaml, lalu timpa dengan env. File boleh tidak ada.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	str(&c.Snowflake.Account, "SNOWFLAKE_ACCOUNT")
	str(&c.Snowflake.User, "SNOWFLAKE_USER")
	str(&c.Snowflake.Password, "SNOWFLAKE_PASSWORD")
	str(&c.Snowflake.PrivateKey, "SNOWFLAKE_PRIVATE_KEY")
	str(&c.Snowflake.PublicKey, "SNOWFLAKE_PUBLIC_KEY")
	str(&c.Snowflake.Warehouse, "SNOWFLAKE_WAREHOUSE")
	str(&c.Snowflake.Database, "SNOWFLAKE_DATABASE")
	str(&c.Snowflake.Schema, "SNOWFLAKE_SCHEMA")
	str(&c.Snowflake.Role, "SNOWFLAKE_ROLE")

	str(&c.OpenAI.AzureEndpoint, "AZURE_OPENAI_ENDPOINT")
	str(&c.OpenAI.AzureAPIKey, "AZURE_OPENAI_API_KEY")
	str(&c.OpenAI.AzureDeployment, "AZURE_OPENAI_DEPLOYMENT_NAME")
	str(&c.OpenAI.AzureAPIVersion, "AZURE_OPENAI_API_VERSION")
	str(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	str(&c.OpenAI.Model, "OPENAI_MODEL")

	str(&c.Redis.Addr, "REDIS_ADDR")
	str(&c.Redis.Password, "REDIS_PASSWORD")
	str(&c.Log.Level, "LOG_LEVEL")
	str(&c.Log.Format, "LOG_FORMAT")

	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT must be an integer: %w", err)
		}
		c.Server.Port = port
	}

	if v := strings.TrimSpace(getenv("GATEWAY_API_KEYS")); v != "" {
		keys, err := parseAPIKeys(v)
		if err != nil {
			return err
		}
		c.Auth.APIKeys = keys
	}
	return nil
}

// parseAPIKeys parses "tenant=key,tenant2=key2".
func parseAPIKeys(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		tenant, key, ok := strings.Cut(pair, "=")
		tenant, key = strings.TrimSpace(tenant), strings.TrimSpace(key)
		if !ok || tenant == "" || key == "" {
			return nil, fmt.Errorf("GATEWAY_API_KEYS: malformed entry %q", tenant)
		}
		out[tenant] = key
	}
	return out, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 120
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}

	sf := &c.Snowflake
	if sf.Warehouse == "" {
		sf.Warehouse = "COMPUTE_WH"
	}
	if sf.Database == "" {
		sf.Database = "FINANCIAL_DEMO"
	}
	if sf.Schema == "" {
		sf.Schema = "PUBLIC"
	}
	if sf.Role == "" {
		sf.Role = "PUBLIC"
	}
	if sf.StatementTimeout == 0 {
		sf.StatementTimeout = 60
	}
	if sf.PollInterval == 0 {
		sf.PollInterval = time.Second
	}
	if sf.PollAttempts == 0 {
		sf.PollAttempts = 30
	}

	if c.OpenAI.AzureDeployment == "" {
		c.OpenAI.AzureDeployment = "gpt-4o"
	}
	if c.OpenAI.AzureAPIVersion == "" {
		c.OpenAI.AzureAPIVersion = "2024-02-01"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o"
	}

	if c.Validator.MaxOpenParens == 0 {
		c.Validator.MaxOpenParens = 5
	}
	if c.Validator.DefaultLimit == 0 {
		c.Validator.DefaultLimit = 100
	}

	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = c.RateLimit.RequestsPerMinute
	}
	if c.Audit.Database.SSLMode == "" {
		c.Audit.Database.SSLMode = "disable"
	}
}

// UseAzure reports whether the Azure OpenAI deployment should be used.
func (c *Config) UseAzure() bool {
	return c.OpenAI.AzureEndpoint != "" && c.OpenAI.AzureAPIKey != ""
}

// Validate reports configuration that cannot serve requests.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if !c.UseAzure() && c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("no completion provider: set AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_API_KEY, or OPENAI_API_KEY"))
	}
	sf := c.Snowflake
	if sf.Account != "" {
		if sf.User == "" {
			errs = append(errs, errors.New("SNOWFLAKE_USER is required when SNOWFLAKE_ACCOUNT is set"))
		}
		if sf.PrivateKey == "" && sf.Password == "" {
			errs = append(errs, errors.New("snowflake needs SNOWFLAKE_PRIVATE_KEY or SNOWFLAKE_PASSWORD"))
		}
	}
	if sf.StatementTimeout < 1 || sf.StatementTimeout > 60 {
		errs = append(errs, fmt.Errorf("snowflake.statement_timeout %d must be between 1 and 60", sf.StatementTimeout))
	}
	if sf.PollAttempts < 1 {
		errs = append(errs, errors.New("snowflake.poll_attempts must be positive"))
	}
	switch c.Audit.Driver {
	case "", "mysql", "postgres":
	default:
		errs = append(errs, fmt.Errorf("audit.driver %q not supported", c.Audit.Driver))
	}
	return errors.Join(errs...)
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	db := c.Audit.Database
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		db.User,
		db.Password,
		db.Host,
		db.Port,
		db.Name,
	)
}

// PostgresDSN builds a lib/pq connection string.
func (c *Config) PostgresDSN() string {
	db := c.Audit.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.User, db.Password, db.Name, db.SSLMode)
}
