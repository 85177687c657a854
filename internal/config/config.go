package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CSVIMG_"

// aliases maps the environment variables of the original deployment onto
// config keys, so existing .env files keep working.
var aliases = map[string]string{
	"VALID_HEADERS":         "csv.valid_headers",
	"MAX_FILE_SIZE":         "upload.max_file_size",
	"IMAGE_QUALITY":         "image.quality",
	"AWS_REGION":            "s3.region",
	"AWS_BUCKET_NAME":       "s3.bucket_name",
	"AWS_IMAGE_BUCKET":      "s3.image_bucket_name",
	"AWS_ACCESS_KEY_ID":     "s3.access_key_id",
	"AWS_SECRET_ACCESS_KEY": "s3.secret_key",
	"DATABASE_URL":          "database.dsn",
	"SENTRY_DSN":            "sentry.sentry_dsn",
	"REDIS_ADDR":            "redis.nodes",
}

// Load reads defaults, then the JSON file at path (if it exists), then
// CSVIMG_* env vars (CSVIMG_IMAGE__QUALITY -> image.quality).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, err
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for name, key := range aliases {
		if v := os.Getenv(name); v != "" {
			if err := k.Set(key, envValue(key, v)); err != nil {
				return nil, err
			}
		}
	}

	// Empty values are skipped so they don't clobber the file.
	err := k.Load(env.ProviderWithValue(envPrefix, ".", func(name, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, envPrefix)), "__", ".")
		return key, envValue(key, value)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyDerived(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envValue splits comma separated list values; everything else is decoded by
// koanf's weak typing.
func envValue(key, value string) any {
	switch key {
	case "csv.valid_headers":
		return strings.Split(value, ",")
	case "redis.nodes":
		return parseRedisNodes(value)
	}
	return value
}

func applyDerived(c *Config) {
	for i, h := range c.CSV.ValidHeaders {
		c.CSV.ValidHeaders[i] = strings.TrimSpace(h)
	}
	if c.S3.ImageBucketName == "" {
		c.S3.ImageBucketName = c.S3.BucketName
	}
}

// parseRedisNodes turns "host:port,host:port" into node maps koanf can decode.
func parseRedisNodes(v string) []map[string]any {
	var nodes []map[string]any
	for _, addr := range strings.Split(v, ",") {
		host, port, ok := strings.Cut(strings.TrimSpace(addr), ":")
		if !ok || host == "" {
			continue
		}
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err != nil {
			continue
		}
		nodes = append(nodes, map[string]any{"host": host, "port": p})
	}
	return nodes
}
