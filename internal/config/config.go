package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Cache     CacheConfig     `json:"cache"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	CORS      CORSConfig      `json:"cors"`
	Log       LogConfig       `json:"log"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            string        `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	Environment     string        `json:"environment"`
}

type DatabaseConfig struct {
	Driver string `json:"driver"`

	// Document store.
	MongoURI       string        `json:"-"`
	MongoUser      string        `json:"mongo_user"`
	MongoPassword  string        `json:"-"`
	MongoCluster   string        `json:"mongo_cluster"`
	Name           string        `json:"name"`
	Collection     string        `json:"collection"`
	ConnectTimeout time.Duration `json:"connect_timeout"`

	// SQL store.
	DSN             string        `json:"-"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host         string        `json:"host"`
	Port         string        `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns"`
	MaxRetries   int           `json:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type CacheConfig struct {
	Enabled bool          `json:"enabled"`
	TaskTTL time.Duration `json:"task_ttl"`
	ListTTL time.Duration `json:"list_ttl"`
	Warmup  bool          `json:"warmup"`
	// Zero warms once at startup.
	WarmupInterval time.Duration `json:"warmup_interval"`
}

type RateLimitConfig struct {
	Enabled         bool          `json:"enabled"`
	RequestsPerMin  int           `json:"requests_per_minute"`
	BurstSize       int           `json:"burst_size"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

type CORSConfig struct {
	// AllowedOrigins empty means every origin is reflected back.
	AllowedOrigins []string      `json:"allowed_origins"`
	MaxAge         time.Duration `json:"max_age"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// LoadConfig reads settings from the environment, layered over an optional
// dotenv file (ENV_FILE, default ".env"). Environment variables win.
func LoadConfig() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	environment := getEnv(v, "ENVIRONMENT", "development")
	defaultFormat := "text"
	if environment == "production" {
		defaultFormat = "json"
	}

	config := &Config{
		Server: ServerConfig{
			Host:            getEnv(v, "HOST", "0.0.0.0"),
			Port:            getEnv(v, "PORT", "8000"),
			ReadTimeout:     getEnvAsDuration(v, "READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration(v, "WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvAsDuration(v, "IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration(v, "SHUTDOWN_TIMEOUT", 15*time.Second),
			Environment:     environment,
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv(v, "STORE_DRIVER", StoreMongo)),
			MongoURI:        getEnv(v, "MONGO_URI", ""),
			MongoUser:       getEnv(v, "MONGO_USER", ""),
			MongoPassword:   getEnv(v, "MONGO_PASS", ""),
			MongoCluster:    getEnv(v, "MONGO_CLUSTER", ""),
			Name:            getEnv(v, "MONGO_DB", "taskflow_db"),
			Collection:      getEnv(v, "MONGO_COLLECTION", "tasks"),
			ConnectTimeout:  getEnvAsDuration(v, "MONGO_CONNECT_TIMEOUT", 10*time.Second),
			DSN:             getEnv(v, "DB_DSN", ""),
			MaxOpenConns:    getEnvAsInt(v, "DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt(v, "DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvAsDuration(v, "DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: getEnvAsDuration(v, "DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv(v, "REDIS_HOST", "localhost"),
			Port:         getEnv(v, "REDIS_PORT", "6379"),
			Password:     getEnv(v, "REDIS_PASSWORD", ""),
			DB:           getEnvAsInt(v, "REDIS_DB", 0),
			PoolSize:     getEnvAsInt(v, "REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt(v, "REDIS_MIN_IDLE_CONNS", 5),
			MaxRetries:   getEnvAsInt(v, "REDIS_MAX_RETRIES", 3),
			DialTimeout:  getEnvAsDuration(v, "REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration(v, "REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration(v, "REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Cache: CacheConfig{
			Enabled:        getEnvAsBool(v, "CACHE_ENABLED", false),
			TaskTTL:        getEnvAsDuration(v, "CACHE_TASK_TTL", 5*time.Minute),
			ListTTL:        getEnvAsDuration(v, "CACHE_LIST_TTL", time.Minute),
			Warmup:         getEnvAsBool(v, "CACHE_WARMUP", true),
			WarmupInterval: getEnvAsDuration(v, "CACHE_WARMUP_INTERVAL", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvAsBool(v, "RATE_LIMIT_ENABLED", false),
			RequestsPerMin:  getEnvAsInt(v, "RATE_LIMIT_RPM", 100),
			BurstSize:       getEnvAsInt(v, "RATE_LIMIT_BURST", 10),
			CleanupInterval: getEnvAsDuration(v, "RATE_LIMIT_CLEANUP", 10*time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList(v, "CORS_ALLOWED_ORIGINS"),
			MaxAge:         getEnvAsDuration(v, "CORS_MAX_AGE", 12*time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv(v, "LOG_LEVEL", "info"),
			Format: getEnv(v, "LOG_FORMAT", defaultFormat),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err != nil {
		return v, nil
	}

	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
	}
	return v, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case StoreMongo:
		if c.IsProduction() && c.Database.MongoURI == "" {
			if c.Database.MongoUser == "" || c.Database.MongoPassword == "" {
				return errors.New("mongo credentials are required in production")
			}
			if c.Database.MongoCluster == "" {
				return errors.New("mongo cluster is required in production")
			}
		}
	case StorePostgres:
		if c.Database.DSN == "" {
			return errors.New("DB_DSN is required for the postgres store")
		}
	case StoreSQLite:
		if c.Database.DSN == "" {
			c.Database.DSN = "taskflow.db"
		}
	default:
		return fmt.Errorf("unsupported store driver %q", c.Database.Driver)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin <= 0 {
		return errors.New("rate limit requests per minute must be positive")
	}

	return nil
}

// GetMongoURI returns MONGO_URI when set. Otherwise it builds an SRV URI from
// the cluster and escaped credentials, falling back to a local server.
func (c *Config) GetMongoURI() string {
	if c.Database.MongoURI != "" {
		return c.Database.MongoURI
	}
	if c.Database.MongoCluster == "" {
		return "mongodb://localhost:27017"
	}
	return fmt.Sprintf("mongodb+srv://%s:%s@%s/%s?retryWrites=true&w=majority",
		url.QueryEscape(c.Database.MongoUser),
		url.QueryEscape(c.Database.MongoPassword),
		c.Database.MongoCluster,
		c.Database.Name,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func getEnv(v *viper.Viper, key, defaultValue string) string {
	if value := strings.TrimSpace(v.GetString(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(v *viper.Viper, key string, defaultValue int) int {
	if value := getEnv(v, key, ""); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(v *viper.Viper, key string, defaultValue bool) bool {
	if value := getEnv(v, key, ""); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(v *viper.Viper, key string, defaultValue time.Duration) time.Duration {
	if value := getEnv(v, key, ""); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(v *viper.Viper, key string) []string {
	var items []string
	for _, item := range strings.Split(getEnv(v, key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
