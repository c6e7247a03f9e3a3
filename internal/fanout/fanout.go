// Package fanout derives the full variant matrix for one source photo,
// uploading every artifact or cleaning up whatever was written.
package fanout

import (
	"context"
	"fmt"
	"image"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rodriv/photo-pipeline/internal/catalog"
	"github.com/rodriv/photo-pipeline/internal/meta"
	"github.com/rodriv/photo-pipeline/internal/photokey"
)

// Codec is the resize/encode capability the engine runs on.
type Codec interface {
	Decode(b []byte) (image.Image, error)
	Resize(img image.Image, width int) image.Image
	Encode(img image.Image, enc catalog.Encoding) ([]byte, error)
}

// Storage is the slice of the object store the engine touches.
type Storage interface {
	Upload(ctx context.Context, key, contentType string, body []byte) error
	DeleteKeys(ctx context.Context, keys []string) error
}

// DerivationError wraps a failure anywhere in decode, resize, encode or
// upload. The whole image fails; no partial artifact set survives.
type DerivationError struct {
	Err error
}

func (e *DerivationError) Error() string { return "derive image: " + e.Err.Error() }
func (e *DerivationError) Unwrap() error { return e.Err }

// CompensationError means cleanup after a failed derivation also failed.
// Derive stays visible; it is the error that started the cleanup.
type CompensationError struct {
	Derive  error
	Cleanup error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensate after %v: %v", e.Derive, e.Cleanup)
}

func (e *CompensationError) Unwrap() error { return e.Derive }

// Engine produces and uploads the full derivative set for one image.
type Engine struct {
	Codec Codec
	Store Storage
	Log   zerolog.Logger
}

// Derive decodes the source once, resizes each catalog size from that base
// raster, encodes every size in every catalog encoding, and uploads each
// artifact at its deterministic key. All branches run concurrently and are
// joined before success is reported. On any branch failure the compensator
// deletes the full catalog key set for the image (deleting absent keys is a
// no-op, so over-deleting beats tracking exact partial state) and the
// original error is returned.
func (e *Engine) Derive(ctx context.Context, id photokey.Identity, src []byte, alt string) (meta.Record, error) {
	base, err := e.Codec.Decode(src)
	if err != nil {
		// Nothing uploaded yet, nothing to compensate.
		return meta.Record{}, &DerivationError{Err: err}
	}

	// Dimensions come from the normalized base, never from a derivative.
	bounds := base.Bounds()
	rec := meta.Record{
		Dir:      id.Dir,
		Name:     id.Base,
		Year:     id.Year,
		Album:    id.Album,
		SubAlbum: id.SubAlbum,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Alt:      alt,
		Formats:  catalog.FormatNames(),
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, size := range catalog.Sizes {
		size := size
		g.Go(func() error {
			resized := e.Codec.Resize(base, size.Width)
			for _, enc := range catalog.Encodings {
				enc := enc
				g.Go(func() error {
					return e.encodeAndUpload(gctx, id, resized, size, enc)
				})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return meta.Record{}, e.compensate(ctx, id, err)
	}
	return rec, nil
}

func (e *Engine) encodeAndUpload(ctx context.Context, id photokey.Identity, img image.Image, size catalog.Size, enc catalog.Encoding) error {
	buf, err := e.Codec.Encode(img, enc)
	if err != nil {
		return fmt.Errorf("%s/%s: %w", size.Label, enc.Name, err)
	}
	key := catalog.ArtifactKey(id, size, enc)
	if err := e.Store.Upload(ctx, key, enc.ContentType, buf); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// compensate deletes the full artifact set for id after a failed
// derivation. It runs on a non-cancelable context so a caller timeout that
// aborted the fan-out cannot also abort the cleanup.
func (e *Engine) compensate(ctx context.Context, id photokey.Identity, cause error) error {
	derr := &DerivationError{Err: cause}
	e.Log.Warn().Err(cause).Str("dir", id.Dir).Str("name", id.Base).
		Msg("derivation failed, deleting partial artifacts")

	if cerr := e.Store.DeleteKeys(context.WithoutCancel(ctx), catalog.Keys(id)); cerr != nil {
		e.Log.Error().Err(cerr).Str("name", id.Base).Msg("compensation failed")
		return &CompensationError{Derive: derr, Cleanup: cerr}
	}
	return derr
}
