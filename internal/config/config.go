package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Environment   string              `json:"environment" yaml:"environment"`
	Server        ServerConfig        `json:"server" yaml:"server"`
	Database      DatabaseConfig      `json:"database" yaml:"database"`
	Redis         RedisConfig         `json:"redis" yaml:"redis"`
	Cache         CacheConfig         `json:"cache" yaml:"cache"`
	Security      SecurityConfig      `json:"security" yaml:"security"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	Notifications NotificationsConfig `json:"notifications" yaml:"notifications"`
	AWS           AWSConfig           `json:"aws" yaml:"aws"`
	Storage       StorageConfig       `json:"storage" yaml:"storage"`
	Search        SearchConfig        `json:"search" yaml:"search"`
	Events        EventsConfig        `json:"events" yaml:"events"`
	Workflow      WorkflowConfig      `json:"workflow" yaml:"workflow"`
	Scheduler     SchedulerConfig     `json:"scheduler" yaml:"scheduler"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `json:"allowed_origins" yaml:"allowed_origins"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host" yaml:"host"`
	Port           int           `json:"port" yaml:"port"`
	User           string        `json:"user" yaml:"user"`
	Password       string        `json:"password" yaml:"password"`
	DBName         string        `json:"db_name" yaml:"db_name"`
	SSLMode        string        `json:"ssl_mode" yaml:"ssl_mode"`
	MaxConnections int           `json:"max_connections" yaml:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime" yaml:"max_lifetime"`
}

type RedisConfig struct {
	URL       string `json:"url" yaml:"url"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

// CacheConfig selects the read-model cache. Backend is "memory", "redis" or "none".
type CacheConfig struct {
	Backend string        `json:"backend" yaml:"backend"`
	TTL     time.Duration `json:"ttl" yaml:"ttl"`
}

type SecurityConfig struct {
	JWTSecret string        `json:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer string        `json:"jwt_issuer" yaml:"jwt_issuer"`
	TokenTTL  time.Duration `json:"token_ttl" yaml:"token_ttl"`
}

type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

type NotificationsConfig struct {
	Workers         int           `json:"workers" yaml:"workers"`
	QueueSize       int           `json:"queue_size" yaml:"queue_size"`
	DeliveryTimeout time.Duration `json:"delivery_timeout" yaml:"delivery_timeout"`
	EmailFrom       string        `json:"email_from" yaml:"email_from"`
	SESConfigSet    string        `json:"ses_config_set" yaml:"ses_config_set"`
	PortalBaseURL   string        `json:"portal_base_url" yaml:"portal_base_url"`
	PushTopicARN    string        `json:"push_topic_arn" yaml:"push_topic_arn"`
	WebSocket       bool          `json:"websocket" yaml:"websocket"`
}

type AWSConfig struct {
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
}

type StorageConfig struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

type SearchConfig struct {
	Addresses []string `json:"addresses" yaml:"addresses"`
	Username  string   `json:"username" yaml:"username"`
	Password  string   `json:"password" yaml:"password"`
	Index     string   `json:"index" yaml:"index"`
}

type EventsConfig struct {
	NATSURL       string `json:"nats_url" yaml:"nats_url"`
	SubjectPrefix string `json:"subject_prefix" yaml:"subject_prefix"`
}

type WorkflowConfig struct {
	BulkLimit     int    `json:"bulk_limit" yaml:"bulk_limit"`
	HashAlgorithm string `json:"hash_algorithm" yaml:"hash_algorithm"`
}

type SchedulerConfig struct {
	DeadlineSpec   string        `json:"deadline_spec" yaml:"deadline_spec"`
	ReminderWindow time.Duration `json:"reminder_window" yaml:"reminder_window"`
	PruneSpec      string        `json:"prune_spec" yaml:"prune_spec"`
	PruneAfter     time.Duration `json:"prune_after" yaml:"prune_after"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           "doctrack",
			DBName:         "doctrack",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    30 * time.Minute,
		},
		Redis: RedisConfig{Namespace: "doctrack"},
		Cache: CacheConfig{Backend: "memory", TTL: 5 * time.Minute},
		Security: SecurityConfig{
			JWTIssuer: "doctrack",
			TokenTTL:  12 * time.Hour,
		},
		Logging: LoggingConfig{Level: "info"},
		Notifications: NotificationsConfig{
			Workers:         4,
			QueueSize:       1024,
			DeliveryTimeout: 10 * time.Second,
			WebSocket:       true,
		},
		AWS:    AWSConfig{Region: "ap-southeast-1"},
		Search: SearchConfig{Index: "doctrack-documents"},
		Events: EventsConfig{SubjectPrefix: "doctrack.workflow"},
		Workflow: WorkflowConfig{
			BulkLimit:     100,
			HashAlgorithm: "sha256",
		},
		Scheduler: SchedulerConfig{
			DeadlineSpec:   "0 */30 * * * *",
			ReminderWindow: 24 * time.Hour,
			PruneSpec:      "0 0 3 * * *",
			PruneAfter:     90 * 24 * time.Hour,
		},
	}
}

// LoadConfig layers defaults, the optional config file (.json, .yaml or .yml),
// an optional .env file next to the working directory, and the process environment.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		if err := loadFile(configPath, config); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func overrideWithEnv(config *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			var out []string
			for _, part := range strings.Split(v, ",") {
				if p := strings.TrimSpace(part); p != "" {
					out = append(out, p)
				}
			}
			*dst = out
		}
	}

	str("APP_ENV", &config.Environment)

	str("SERVER_HOST", &config.Server.Host)
	num("SERVER_PORT", &config.Server.Port)
	list("SERVER_ALLOWED_ORIGINS", &config.Server.AllowedOrigins)

	str("DATABASE_HOST", &config.Database.Host)
	num("DATABASE_PORT", &config.Database.Port)
	str("DATABASE_USER", &config.Database.User)
	str("DATABASE_PASSWORD", &config.Database.Password)
	str("DATABASE_DBNAME", &config.Database.DBName)
	str("DATABASE_SSLMODE", &config.Database.SSLMode)

	str("REDIS_URL", &config.Redis.URL)
	str("CACHE_BACKEND", &config.Cache.Backend)
	dur("CACHE_TTL", &config.Cache.TTL)

	str("JWT_SECRET", &config.Security.JWTSecret)
	str("JWT_ISSUER", &config.Security.JWTIssuer)
	dur("JWT_TTL", &config.Security.TokenTTL)

	str("LOG_LEVEL", &config.Logging.Level)

	num("NOTIFY_WORKERS", &config.Notifications.Workers)
	num("NOTIFY_QUEUE_SIZE", &config.Notifications.QueueSize)
	str("NOTIFY_EMAIL_FROM", &config.Notifications.EmailFrom)
	str("NOTIFY_SES_CONFIG_SET", &config.Notifications.SESConfigSet)
	str("NOTIFY_PUSH_TOPIC_ARN", &config.Notifications.PushTopicARN)
	str("PORTAL_BASE_URL", &config.Notifications.PortalBaseURL)
	flag("NOTIFY_WEBSOCKET", &config.Notifications.WebSocket)

	str("AWS_REGION", &config.AWS.Region)
	str("AWS_ACCESS_KEY_ID", &config.AWS.AccessKeyID)
	str("AWS_SECRET_ACCESS_KEY", &config.AWS.SecretAccessKey)
	str("AWS_ENDPOINT_URL", &config.AWS.Endpoint)

	str("STORAGE_BUCKET", &config.Storage.Bucket)
	flag("STORAGE_USE_PATH_STYLE", &config.Storage.UsePathStyle)

	list("ELASTICSEARCH_ADDRESSES", &config.Search.Addresses)
	str("ELASTICSEARCH_USERNAME", &config.Search.Username)
	str("ELASTICSEARCH_PASSWORD", &config.Search.Password)
	str("ELASTICSEARCH_INDEX", &config.Search.Index)

	str("NATS_URL", &config.Events.NATSURL)
	str("NATS_SUBJECT_PREFIX", &config.Events.SubjectPrefix)

	num("WORKFLOW_BULK_LIMIT", &config.Workflow.BulkLimit)
	str("WORKFLOW_HASH_ALGORITHM", &config.Workflow.HashAlgorithm)

	str("SCHEDULER_DEADLINE_SPEC", &config.Scheduler.DeadlineSpec)
	dur("SCHEDULER_REMINDER_WINDOW", &config.Scheduler.ReminderWindow)

	return errors.Join(errs...)
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("cache.backend redis requires redis.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}
	if c.Workflow.BulkLimit <= 0 {
		errs = append(errs, errors.New("workflow.bulk_limit must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
