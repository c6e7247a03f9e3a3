// Package imgio wraps the decode/resize/encode primitives used to derive
// photo variants.
package imgio

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"

	"github.com/rodriv/photo-pipeline/internal/catalog"
)

// Decode parses source bytes into a raster with any EXIF orientation baked
// into the pixel data. Downstream viewers do not reliably honor orientation
// tags, so rotation happens here, once.
func Decode(b []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(b), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Resize scales img to the given width, preserving aspect ratio. Every size
// is resized from the base raster, never from a smaller derivative.
func Resize(img image.Image, width int) image.Image {
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}

// Encode serializes img with the codec and quality named by enc.
func Encode(img image.Image, enc catalog.Encoding) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch enc.Name {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: enc.Quality})
	case "webp":
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(enc.Quality)})
	case "avif":
		err = avif.Encode(&buf, img, avif.Options{Quality: enc.Quality})
	default:
		return nil, fmt.Errorf("no encoder for %q", enc.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", enc.Name, err)
	}
	return buf.Bytes(), nil
}

// Codec bundles the package functions behind the interface the fan-out
// engine consumes.
type Codec struct{}

func (Codec) Decode(b []byte) (image.Image, error) { return Decode(b) }

func (Codec) Resize(img image.Image, width int) image.Image { return Resize(img, width) }

func (Codec) Encode(img image.Image, enc catalog.Encoding) ([]byte, error) {
	return Encode(img, enc)
}
