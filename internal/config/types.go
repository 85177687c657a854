package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Upload   UploadConfig   `koanf:"upload"`
	CSV      CSVConfig      `koanf:"csv"`
	Image    ImageConfig    `koanf:"image"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	JobStore JobStoreConfig `koanf:"job_store"`
	Database Database       `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	S3       S3Config       `koanf:"s3"`
	Sentry   SentryConfig   `koanf:"sentry"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type UploadConfig struct {
	MaxFileSize          int64 `koanf:"max_file_size" validate:"gt=0"` // bytes
	MaxMultipartMemoryMB int64 `koanf:"max_multipart_memory"`
}

type CSVConfig struct {
	ValidHeaders []string `koanf:"valid_headers" validate:"min=3,dive,required"`
}

type ImageConfig struct {
	Quality       int           `koanf:"quality" validate:"gte=0,lte=100"`
	MaxWidth      int           `koanf:"max_width" validate:"gte=0"`  // 0 keeps the original width
	MaxHeight     int           `koanf:"max_height" validate:"gte=0"` // 0 keeps the original height
	FetchTimeout  time.Duration `koanf:"fetch_timeout"`
	MaxImageBytes int64         `koanf:"max_image_bytes" validate:"gt=0"`
}

type PipelineConfig struct {
	MaxConcurrentJobs int64 `koanf:"max_concurrent_jobs" validate:"gt=0"`
	FetchConcurrency  int   `koanf:"fetch_concurrency" validate:"gt=0"`
}

type JobStoreConfig struct {
	Driver    string `koanf:"driver" validate:"oneof=redis postgres memory"`
	Namespace string `koanf:"namespace"`
}

type Database struct {
	DSN         string `koanf:"dsn"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

type RedisConfig struct {
	Password            string        `koanf:"password"`
	DatabaseID          int           `koanf:"database_id"`
	HealthCheckInterval time.Duration `koanf:"health_check_interval"`
	DialTimeout         time.Duration `koanf:"dial_timeout"`
	ReadTimeout         time.Duration `koanf:"read_timeout"`
	WriteTimeout        time.Duration `koanf:"write_timeout"`
	PoolSize            int           `koanf:"pool_size"`
	Nodes               []RedisNode   `koanf:"nodes"`
}

type RedisNode struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

func (n RedisNode) Addr() string { return fmt.Sprintf("%s:%d", n.Host, n.Port) }

type S3Config struct {
	AccountID       string `koanf:"account_id"` // set for Cloudflare R2
	Region          string `koanf:"region"`
	BucketName      string `koanf:"bucket_name" validate:"required"`
	ImageBucketName string `koanf:"image_bucket_name"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretKey       string `koanf:"secret_key"`
	Endpoint        string `koanf:"endpoint"`
	UsePathStyle    bool   `koanf:"use_path_style"`
	PublicBaseURL   string `koanf:"public_base_url"`
	MaxRetries      int    `koanf:"max_retries" validate:"gte=0"`
}

type SentryConfig struct {
	SentryDSN   string `koanf:"sentry_dsn"`
	Environment string `koanf:"environment"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=pretty json"`
}
