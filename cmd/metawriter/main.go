// Package main drains queued metadata write requests and executes them as
// one multi-row insert per batch.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/rodriv/photo-pipeline/internal/config"
	"github.com/rodriv/photo-pipeline/internal/dbpool"
	"github.com/rodriv/photo-pipeline/internal/heroku"
	"github.com/rodriv/photo-pipeline/internal/sqlbatch"
)

// execer is the statement surface execBatch needs; *pgxpool.Conn
// satisfies it.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// App holds the process-scoped state. The pool manager outlives individual
// invocations so credentials are resolved once per warm process.
type App struct {
	pool *dbpool.Manager
	log  zerolog.Logger
}

func main() {
	env := config.MustLoadWriter()
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("fn", "metawriter").Logger()

	app := &App{
		pool: &dbpool.Manager{
			Resolver:   heroku.NewClient(env.HerokuAPIKey),
			ResourceID: env.HerokuAddonID,
			Log:        logger,
		},
		log: logger,
	}
	lambda.Start(app.handler)
}

// handler consumes one SQS delivery batch. Policy: a single malformed
// message fails the whole batch and the queue redelivers it; the insert's
// do-nothing-on-conflict makes the resulting duplicates harmless.
func (a *App) handler(ctx context.Context, ev events.SQSEvent) error {
	log := a.log.With().Str("invocation", ulid.Make().String()).Logger()

	reqs, err := parseBatch(ev.Records)
	if err != nil {
		log.Error().Err(err).Int("batch", len(ev.Records)).Msg("rejecting batch")
		return err
	}

	pool, err := a.pool.Pool(ctx)
	if err != nil {
		return fmt.Errorf("no db pool: %w", err)
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire db conn: %w", err)
	}
	// Released on every exit path; the one-connection pool would otherwise
	// starve the next invocation.
	defer conn.Release()

	if err := execBatch(ctx, conn.Conn(), reqs); err != nil {
		return err
	}
	log.Info().Int("rows", len(reqs)).Msg("inserted batch")
	return nil
}

// parseBatch decodes every message body, failing on the first malformed
// one. An empty delivery is a wiring bug, not a valid batch.
func parseBatch(records []events.SQSMessage) ([]sqlbatch.WriteRequest, error) {
	if len(records) == 0 {
		return nil, errors.New("empty delivery batch")
	}
	reqs := make([]sqlbatch.WriteRequest, 0, len(records))
	for _, rec := range records {
		req, err := sqlbatch.Parse([]byte(rec.Body))
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", rec.MessageId, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// execBatch composes the batch into one statement and executes it exactly
// once.
func execBatch(ctx context.Context, db execer, reqs []sqlbatch.WriteRequest) error {
	composed, err := sqlbatch.Compose(reqs)
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, composed.Text, composed.Values...); err != nil {
		return fmt.Errorf("insert batch of %d: %w", len(reqs), err)
	}
	return nil
}
