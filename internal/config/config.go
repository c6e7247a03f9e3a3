// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
)

// Resizer holds configuration for the creation-event Lambda.
type Resizer struct {
	Region        string
	DerivedBucket string
	QueueURL      string
}

// Cleaner holds configuration for the deletion-event Lambda.
type Cleaner struct {
	Region        string
	DerivedBucket string
	HerokuAPIKey  string
	HerokuAddonID string
}

// Writer holds configuration for the metadata ingestion Lambda.
type Writer struct {
	Region        string
	HerokuAPIKey  string
	HerokuAddonID string
}

// MustLoadResizer reads the resizer environment, panicking on anything
// missing; the Lambda cannot do useful work without it.
func MustLoadResizer() Resizer {
	return Resizer{
		Region:        get("AWS_REGION", "us-west-2"),
		DerivedBucket: must("RESIZED_PHOTOS_BUCKET"),
		QueueURL:      must("IMAGE_META_TO_PG_QUEUE_URL"),
	}
}

// MustLoadCleaner reads the cleaner environment.
func MustLoadCleaner() Cleaner {
	return Cleaner{
		Region:        get("AWS_REGION", "us-west-2"),
		DerivedBucket: must("RESIZED_PHOTOS_BUCKET"),
		HerokuAPIKey:  must("HEROKU_API_KEY"),
		HerokuAddonID: must("HEROKU_POSTGRES_ID"),
	}
}

// MustLoadWriter reads the metadata writer environment.
func MustLoadWriter() Writer {
	return Writer{
		Region:        get("AWS_REGION", "us-west-2"),
		HerokuAPIKey:  must("HEROKU_API_KEY"),
		HerokuAddonID: must("HEROKU_POSTGRES_ID"),
	}
}

// get returns the value of the environment variable k or def if not set.
func get(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// must returns the value of the environment variable k or panics if not set.
func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic(fmt.Errorf("missing env %s", k))
	}
	return v
}
