// Package main mirrors source deletions across the derivative bucket and
// the metadata store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/rodriv/photo-pipeline/internal/awsutil"
	"github.com/rodriv/photo-pipeline/internal/catalog"
	"github.com/rodriv/photo-pipeline/internal/config"
	"github.com/rodriv/photo-pipeline/internal/dbpool"
	"github.com/rodriv/photo-pipeline/internal/heroku"
	"github.com/rodriv/photo-pipeline/internal/meta"
	"github.com/rodriv/photo-pipeline/internal/photokey"
	"github.com/rodriv/photo-pipeline/internal/s3io"
)

// metaStore is the metadata surface the cleaner drives.
type metaStore interface {
	Delete(ctx context.Context, dir, name string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// App holds the application state shared across warm invocations. The pool
// manager behind the meta repo is deliberately process-scoped; credential
// resolution is amortized over every invocation this process serves.
type App struct {
	env   config.Cleaner
	store *s3io.Store
	meta  metaStore
	log   zerolog.Logger
}

func main() {
	env := config.MustLoadCleaner()
	cfg, endpoint, err := awsutil.Load(context.Background(), env.Region)
	if err != nil {
		panic(err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("fn", "cleaner").Logger()

	app := &App{
		env:   env,
		store: &s3io.Store{Client: awsutil.NewS3(cfg, endpoint), Bucket: env.DerivedBucket},
		meta: &meta.Repo{DB: &dbpool.Manager{
			Resolver:   heroku.NewClient(env.HerokuAPIKey),
			ResourceID: env.HerokuAddonID,
			Log:        logger,
		}},
		log: logger,
	}
	lambda.Start(app.handler)
}

// handler processes S3 removal events. A key with an extension deletes the
// computed artifact set; one without deletes everything under the prefix.
func (a *App) handler(ctx context.Context, ev events.S3Event) error {
	log := a.log.With().Str("invocation", ulid.Make().String()).Logger()
	for _, rec := range ev.Records {
		if err := a.processRecord(ctx, log, rec); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) processRecord(ctx context.Context, log zerolog.Logger, rec events.S3EventRecord) error {
	rawKey := rec.S3.Object.Key

	key, err := photokey.Decode(rawKey)
	if err != nil {
		log.Warn().Err(err).Str("key", rawKey).Msg("undecodable key, skipping")
		return nil
	}
	log = log.With().Str("key", key).Logger()

	if !photokey.IsFileKey(key) {
		return a.deletePrefix(ctx, log, key)
	}
	return a.deleteFile(ctx, log, rawKey)
}

// deleteFile removes the full derivative set for one source image plus its
// metadata row. Storage and metadata deletes are not transactional with
// each other.
func (a *App) deleteFile(ctx context.Context, log zerolog.Logger, rawKey string) error {
	id, err := photokey.Parse(rawKey)
	if err != nil {
		var herr *photokey.HierarchyError
		if errors.As(err, &herr) {
			log.Warn().Int("segments", herr.Segments).
				Msg("key outside year/album hierarchy, skipping")
			return nil
		}
		return err
	}

	// The same catalog that generated the artifacts computes the delete
	// set, so the two can never drift.
	if err := a.store.DeleteKeys(ctx, catalog.Keys(id)); err != nil {
		return fmt.Errorf("delete derivatives for %s: %w", id.Key, err)
	}
	log.Info().Msg("deleted derivative set")

	if err := a.meta.Delete(ctx, id.Dir, id.Base); err != nil {
		return err
	}
	log.Info().Msg("deleted metadata row")
	return nil
}

// deletePrefix clears a whole directory from storage and the metadata
// store, paging through the listing until it is exhausted.
func (a *App) deletePrefix(ctx context.Context, log zerolog.Logger, prefix string) error {
	if err := a.store.DeletePrefix(ctx, prefix); err != nil {
		return fmt.Errorf("delete prefix %s: %w", prefix, err)
	}
	log.Info().Msg("deleted derivative prefix")

	if err := a.meta.DeleteByPrefix(ctx, prefix); err != nil {
		return err
	}
	log.Info().Msg("deleted metadata rows under prefix")
	return nil
}
