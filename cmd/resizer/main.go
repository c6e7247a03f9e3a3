// Package main derives the resized/re-encoded variant matrix for every
// photo uploaded to the source bucket and enqueues its metadata write.
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
	"github.com/rodriv/photo-pipeline/internal/fanout"
	"github.com/rodriv/photo-pipeline/internal/imgio"
	"github.com/rodriv/photo-pipeline/internal/mq"
	"github.com/rodriv/photo-pipeline/internal/photokey"
	"github.com/rodriv/photo-pipeline/internal/s3io"
)

// App holds the application state shared across warm invocations.
type App struct {
	env    config.Resizer
	store  *s3io.Store
	engine *fanout.Engine
	pub    *mq.Publisher
	log    zerolog.Logger
}

func main() {
	env := config.MustLoadResizer()
	cfg, endpoint, err := awsutil.Load(context.Background(), env.Region)
	if err != nil {
		panic(err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("fn", "resizer").Logger()
	store := &s3io.Store{Client: awsutil.NewS3(cfg, endpoint), Bucket: env.DerivedBucket}

	app := &App{
		env:    env,
		store:  store,
		engine: &fanout.Engine{Codec: imgio.Codec{}, Store: store, Log: logger},
		pub:    &mq.Publisher{Client: awsutil.NewSQS(cfg, endpoint), QueueURL: env.QueueURL},
		log:    logger,
	}
	lambda.Start(app.handler)
}

// handler processes S3 creation events. Any derivation or publish failure
// fails the invocation so the platform can retry the event; malformed or
// unsupported keys are logged and dropped.
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
	bucket := rec.S3.Bucket.Name
	rawKey := rec.S3.Object.Key

	id, err := photokey.Parse(rawKey)
	if err != nil {
		var herr *photokey.HierarchyError
		if errors.As(err, &herr) {
			log.Warn().Str("key", rawKey).Int("segments", herr.Segments).
				Msg("key outside year/album hierarchy, skipping")
			return nil
		}
		log.Warn().Err(err).Str("key", rawKey).Msg("undecodable key, skipping")
		return nil
	}
	log = log.With().Str("key", id.Key).Logger()

	if id.IsDir() {
		log.Info().Msg("directory key on creation event, skipping")
		return nil
	}
	if !catalog.SupportedInput(id.Ext) {
		log.Info().Str("ext", id.Ext).Msg("unsupported image type, skipping")
		return nil
	}

	src, attrs, err := a.store.Download(ctx, bucket, id.Key)
	if err != nil {
		return fmt.Errorf("download source: %w", err)
	}

	record, err := a.engine.Derive(ctx, id, src, attrs["alt"])
	if err != nil {
		return err
	}
	log.Info().Int("width", record.Width).Int("height", record.Height).
		Msg("derived full artifact set")

	if err := a.pub.Publish(ctx, record.WriteRequest()); err != nil {
		return err
	}
	log.Info().Msg("metadata write enqueued")
	return nil
}
