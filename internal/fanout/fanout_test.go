package fanout

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rodriv/photo-pipeline/internal/catalog"
	"github.com/rodriv/photo-pipeline/internal/photokey"
)

type stubCodec struct {
	decodeErr error
	encodeErr map[string]error // keyed by size.Label + "/" + enc.Name
}

func (c *stubCodec) Decode(b []byte) (image.Image, error) {
	if c.decodeErr != nil {
		return nil, c.decodeErr
	}
	return image.NewRGBA(image.Rect(0, 0, 4032, 3024)), nil
}

func (c *stubCodec) Resize(img image.Image, width int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, width, width*3/4))
}

func (c *stubCodec) Encode(img image.Image, enc catalog.Encoding) ([]byte, error) {
	if err := c.encodeErr[fmt.Sprintf("%d/%s", img.Bounds().Dx(), enc.Name)]; err != nil {
		return nil, err
	}
	return []byte(enc.Name), nil
}

type fakeStore struct {
	mu        sync.Mutex
	uploads   map[string]string // key -> content type
	failKey   string
	deleteErr error
	deleted   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{uploads: map[string]string{}}
}

func (s *fakeStore) Upload(ctx context.Context, key, contentType string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.failKey {
		return errors.New("upload refused")
	}
	s.uploads[key] = contentType
	return nil
}

func (s *fakeStore) DeleteKeys(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for _, k := range keys {
		delete(s.uploads, k)
		s.deleted = append(s.deleted, k)
	}
	return nil
}

func testEngine(codec Codec, store Storage) *Engine {
	return &Engine{Codec: codec, Store: store, Log: zerolog.Nop()}
}

func mustIdentity(t *testing.T) photokey.Identity {
	t.Helper()
	id, err := photokey.Parse("2021/spain/madrid/sunset.jpg")
	require.NoError(t, err)
	return id
}

func TestDeriveFullMatrix(t *testing.T) {
	store := newFakeStore()
	engine := testEngine(&stubCodec{}, store)
	id := mustIdentity(t)

	rec, err := engine.Derive(context.Background(), id, []byte("src"), "a sunset")
	require.NoError(t, err)

	require.Len(t, store.uploads, len(catalog.Sizes)*len(catalog.Encodings))
	for _, key := range catalog.Keys(id) {
		require.Contains(t, store.uploads, key)
	}
	require.Equal(t, "image/webp", store.uploads["2021/spain/madrid/sunset_large.webp"])

	require.Equal(t, 4032, rec.Width)
	require.Equal(t, 3024, rec.Height)
	require.Equal(t, "sunset", rec.Name)
	require.Equal(t, "a sunset", rec.Alt)
	require.Equal(t, catalog.FormatNames(), rec.Formats)
}

func TestDeriveUploadFailureCleansAllBranches(t *testing.T) {
	id := mustIdentity(t)
	for _, failKey := range catalog.Keys(id) {
		t.Run(failKey, func(t *testing.T) {
			store := newFakeStore()
			store.failKey = failKey
			engine := testEngine(&stubCodec{}, store)

			_, err := engine.Derive(context.Background(), id, []byte("src"), "")
			var derr *DerivationError
			require.ErrorAs(t, err, &derr)

			// Compensation leaves nothing reachable.
			require.Empty(t, store.uploads)
			require.Len(t, store.deleted, len(catalog.Keys(id)))
		})
	}
}

func TestDeriveEncodeFailureCleansUp(t *testing.T) {
	id := mustIdentity(t)
	for _, size := range catalog.Sizes {
		for _, enc := range catalog.Encodings {
			t.Run(size.Label+"/"+enc.Name, func(t *testing.T) {
				store := newFakeStore()
				codec := &stubCodec{encodeErr: map[string]error{
					fmt.Sprintf("%d/%s", size.Width, enc.Name): errors.New("codec exploded"),
				}}
				engine := testEngine(codec, store)

				_, err := engine.Derive(context.Background(), id, []byte("src"), "")
				var derr *DerivationError
				require.ErrorAs(t, err, &derr)
				require.Empty(t, store.uploads)
			})
		}
	}
}

func TestDeriveCompensationFailureKeepsOriginalError(t *testing.T) {
	id := mustIdentity(t)
	store := newFakeStore()
	store.failKey = catalog.Keys(id)[0]
	store.deleteErr = errors.New("delete refused")
	engine := testEngine(&stubCodec{}, store)

	_, err := engine.Derive(context.Background(), id, []byte("src"), "")

	var cerr *CompensationError
	require.ErrorAs(t, err, &cerr)
	require.ErrorContains(t, cerr.Cleanup, "delete refused")

	// The derivation error that triggered cleanup is still visible.
	var derr *DerivationError
	require.ErrorAs(t, err, &derr)
	require.ErrorContains(t, derr, "upload refused")
}

func TestDeriveDecodeFailureSkipsCompensation(t *testing.T) {
	store := newFakeStore()
	engine := testEngine(&stubCodec{decodeErr: errors.New("bad bytes")}, store)

	_, err := engine.Derive(context.Background(), mustIdentity(t), []byte("src"), "")
	var derr *DerivationError
	require.ErrorAs(t, err, &derr)
	require.Empty(t, store.deleted)
}
