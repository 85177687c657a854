package config

func defaults() map[string]any {
	return map[string]any{
		"server.port":             8000,
		"server.read_timeout":     "15s",
		"server.write_timeout":    "60s",
		"server.shutdown_timeout": "30s",

		"upload.max_file_size":        2 << 20,
		"upload.max_multipart_memory": 4,

		"csv.valid_headers": []string{"sno", "product_name", "image_urls"},

		"image.quality":         50,
		"image.max_width":       0,
		"image.max_height":      0,
		"image.fetch_timeout":   "30s",
		"image.max_image_bytes": 20 << 20,

		"pipeline.max_concurrent_jobs": 4,
		"pipeline.fetch_concurrency":   4,

		"job_store.driver":    "redis",
		"job_store.namespace": "csvimages:jobs",

		"database.auto_migrate": true,

		"redis.health_check_interval": "30s",
		"redis.dial_timeout":          "5s",
		"redis.read_timeout":          "3s",
		"redis.write_timeout":         "3s",
		"redis.pool_size":             20,
		"redis.nodes":                 []map[string]any{{"host": "localhost", "port": 6379}},

		"s3.region":      "us-east-1",
		"s3.max_retries": 2,

		"logging.level":  "info",
		"logging.format": "pretty",
	}
}
