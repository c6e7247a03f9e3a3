// Package meta models the photos_meta rows describing each fully-derived
// image.
package meta

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rodriv/photo-pipeline/internal/sqlbatch"
)

// insertText is the single-row template every queued write shares. The
// conflict target (dir_path, name) makes redelivered inserts no-ops, which
// is what allows at-least-once queue delivery upstream.
const insertText = `INSERT INTO photos_meta (dir_path, name, year, album, sub_album, width, height, alt, formats) VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (dir_path, name) DO NOTHING`

// Record describes one source image and its available derivative formats.
// Uniqueness is (dir_path, name).
type Record struct {
	Dir      string
	Name     string
	Year     int
	Album    string
	SubAlbum string // empty means no sub-album; stored as NULL
	Width    int
	Height   int
	Alt      string
	Formats  []string
}

// WriteRequest renders the record as the queued single-row write consumed
// by the batch inserter.
func (r Record) WriteRequest() sqlbatch.WriteRequest {
	var sub any
	if r.SubAlbum != "" {
		sub = r.SubAlbum
	}
	return sqlbatch.WriteRequest{
		Text: insertText,
		Values: []any{
			r.Dir, r.Name, r.Year, r.Album, sub,
			r.Width, r.Height, r.Alt, strings.Join(r.Formats, ","),
		},
	}
}

// Pooler hands out the shared database handle; *dbpool.Manager satisfies
// it.
type Pooler interface {
	Pool(ctx context.Context) (*pgxpool.Pool, error)
}

// Repo performs metadata deletes over the lazily-established pool.
type Repo struct {
	DB Pooler
}

// Delete removes the row for one image.
func (r *Repo) Delete(ctx context.Context, dir, name string) error {
	db, err := r.DB.Pool(ctx)
	if err != nil {
		return err
	}
	return Delete(ctx, db, dir, name)
}

// DeleteByPrefix removes every row under a directory prefix.
func (r *Repo) DeleteByPrefix(ctx context.Context, prefix string) error {
	db, err := r.DB.Pool(ctx)
	if err != nil {
		return err
	}
	return DeleteByPrefix(ctx, db, prefix)
}

// Execer is the database surface the delete paths need; both *pgxpool.Pool
// and *pgxpool.Conn satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Delete removes the row for one image.
func Delete(ctx context.Context, db Execer, dir, name string) error {
	_, err := db.Exec(ctx, `DELETE FROM photos_meta WHERE dir_path=$1 AND name=$2`, dir, name)
	if err != nil {
		return fmt.Errorf("delete meta %s%s: %w", dir, name, err)
	}
	return nil
}

// DeleteByPrefix removes every row under a directory prefix, mirroring a
// prefix delete in storage.
func DeleteByPrefix(ctx context.Context, db Execer, prefix string) error {
	_, err := db.Exec(ctx, `DELETE FROM photos_meta WHERE dir_path LIKE $1 || '%'`, prefix)
	if err != nil {
		return fmt.Errorf("delete meta prefix %s: %w", prefix, err)
	}
	return nil
}
