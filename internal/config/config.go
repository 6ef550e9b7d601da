// Package config loads the service configuration from defaults, an optional
// config file (CONFIG_FILE) and environment variables. A key such as
// "worker.concurrency" is read from WORKER_CONCURRENCY.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Job store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Publish targets.
const (
	PublishYouTube = "youtube"
	PublishStorage = "storage"
)

type Config struct {
	HTTP     HTTP     `mapstructure:"http"`
	Log      Log      `mapstructure:"log"`
	Render   Render   `mapstructure:"render"`
	Worker   Worker   `mapstructure:"worker"`
	Jobs     Jobs     `mapstructure:"jobs"`
	Redis    Redis    `mapstructure:"redis"`
	Database Database `mapstructure:"database"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Publish  Publish  `mapstructure:"publish"`
	YouTube  YouTube  `mapstructure:"youtube"`
	Storage  Storage  `mapstructure:"storage"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type HTTP struct {
	Port           string        `mapstructure:"port"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	MaxUploadMB    int64         `mapstructure:"max_upload_mb"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// SubmitTimeout bounds the synchronous probe and staging work of a
	// submission. It is longer than RequestTimeout since every video asset
	// of a manifest is probed before the job is accepted.
	SubmitTimeout  time.Duration `mapstructure:"submit_timeout"`
}

type Log struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	Source  bool   `mapstructure:"source"`
	Service string `mapstructure:"service"`
}

type Render struct {
	// FFmpegPath is the local binary. Ignored when RemoteURL is set.
	FFmpegPath string `mapstructure:"ffmpeg_path"`
	RemoteURL  string `mapstructure:"remote_url"`
	TempDir    string `mapstructure:"temp_dir"`
}

type Worker struct {
	Concurrency int    `mapstructure:"concurrency"`
	QueueSize   int    `mapstructure:"queue_size"`
	StagingDir  string `mapstructure:"staging_dir"`
}

type Jobs struct {
	Store string        `mapstructure:"store"`
	TTL   time.Duration `mapstructure:"ttl"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Database struct {
	URL string `mapstructure:"url"`
}

type Kafka struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Enabled reports whether job events should be published.
func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 && k.Topic != "" }

type Publish struct {
	Target        string        `mapstructure:"target"`
	StoragePrefix string        `mapstructure:"storage_prefix"`
	URLExpiry     time.Duration `mapstructure:"url_expiry"`
	// Timeout bounds each publisher call (upload, thumbnail) of a job.
	Timeout       time.Duration `mapstructure:"timeout"`
}

type YouTube struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
}

type Storage struct {
	Provider  string `mapstructure:"provider"`
	LocalRoot string `mapstructure:"local_root"`
	GDrive    GDrive `mapstructure:"gdrive"`
	Minio     Minio  `mapstructure:"minio"`
}

type GDrive struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	FolderID     string `mapstructure:"folder_id"`
}

type Minio struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

// defaults registers every key. Viper only maps environment variables onto
// keys it already knows, so keys without a real default are set to zero.
var defaults = map[string]any{
	"http.port":            "8080",
	"http.cors_origins":    []string{"*"},
	"http.max_upload_mb":   512,
	"http.read_timeout":    5 * time.Minute,
	"http.write_timeout":   16 * time.Minute,
	"http.request_timeout": 5 * time.Minute,
	"http.submit_timeout":  15 * time.Minute,

	"log.level":   "info",
	"log.format":  "json",
	"log.source":  false,
	"log.service": "media-factory",

	"render.ffmpeg_path": "ffmpeg",
	"render.remote_url":  "",
	"render.temp_dir":    "",

	"worker.concurrency": 2,
	"worker.queue_size":  64,
	"worker.staging_dir": "",

	"jobs.store": StoreMemory,
	"jobs.ttl":   72 * time.Hour,

	"redis.addr":     "localhost:6379",
	"redis.password": "",
	"redis.db":       0,

	"database.url": "",

	"kafka.brokers": []string{},
	"kafka.topic":   "",

	"publish.target":         PublishYouTube,
	"publish.storage_prefix": "videos",
	"publish.url_expiry":     24 * time.Hour,
	"publish.timeout":        30 * time.Minute,

	"youtube.client_id":     "",
	"youtube.client_secret": "",
	"youtube.refresh_token": "",

	"storage.provider":             "localfs",
	"storage.local_root":           "./data",
	"storage.gdrive.client_id":     "",
	"storage.gdrive.client_secret": "",
	"storage.gdrive.refresh_token": "",
	"storage.gdrive.folder_id":     "",
	"storage.minio.endpoint":       "",
	"storage.minio.access_key":     "",
	"storage.minio.secret_key":     "",
	"storage.minio.bucket_name":    "media-factory",
	"storage.minio.use_ssl":        false,

	"shutdown_timeout": 30 * time.Second,
}

// Load reads the configuration. CONFIG_FILE, when set, names a YAML/JSON/TOML
// file whose values sit between the defaults and the environment.
func Load() (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := strings.TrimSpace(os.Getenv("CONFIG_FILE")); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.HTTP.CORSOrigins = splitList(cfg.HTTP.CORSOrigins)
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Jobs.Store {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when JOBS_STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown jobs store: %q", c.Jobs.Store)
	}

	switch c.Publish.Target {
	case PublishYouTube, PublishStorage:
	default:
		return fmt.Errorf("unknown publish target: %q", c.Publish.Target)
	}

	switch c.Storage.Provider {
	case "localfs", "gdrive", "minio":
	default:
		return fmt.Errorf("unknown storage provider: %q", c.Storage.Provider)
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Worker.QueueSize <= 0 {
		return fmt.Errorf("worker queue size must be positive, got %d", c.Worker.QueueSize)
	}
	if c.HTTP.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", c.HTTP.MaxUploadMB)
	}
	if c.HTTP.RequestTimeout <= 0 || c.HTTP.SubmitTimeout <= 0 {
		return fmt.Errorf("request and submit timeouts must be positive, got %v and %v", c.HTTP.RequestTimeout, c.HTTP.SubmitTimeout)
	}
	// A write deadline shorter than the submit timeout would drop the
	// response of a submission the service already accepted.
	if c.HTTP.WriteTimeout > 0 && c.HTTP.WriteTimeout <= c.HTTP.SubmitTimeout {
		return fmt.Errorf("write timeout %v must exceed submit timeout %v", c.HTTP.WriteTimeout, c.HTTP.SubmitTimeout)
	}
	if c.Publish.Timeout <= 0 {
		return fmt.Errorf("publish timeout must be positive, got %v", c.Publish.Timeout)
	}
	return nil
}

// YouTubeConfigured reports whether publisher credentials are present.
func (c *Config) YouTubeConfigured() bool {
	return c.YouTube.ClientID != "" && c.YouTube.ClientSecret != "" && c.YouTube.RefreshToken != ""
}

// splitList flattens comma separated entries coming from a single env var.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, p := range strings.Split(item, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
