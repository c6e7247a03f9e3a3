// Package catalog defines the fixed matrix of derivative sizes and
// encodings produced for every source photo.
//
// The same catalog drives both generation and deletion of artifacts; the
// two must never drift or cleanup leaves orphaned objects behind.
package catalog

import "github.com/rodriv/photo-pipeline/internal/photokey"

// Size is one output width, resized from the original raster each time.
type Size struct {
	Label string
	Width int
}

// Encoding is one output codec with its quality parameter.
type Encoding struct {
	Name        string
	ContentType string
	Quality     int
}

// Sizes lists the derivative widths, smallest first.
var Sizes = []Size{
	{Label: "small", Width: 333},
	{Label: "small@2x", Width: 667},
	{Label: "large", Width: 1500},
	{Label: "large@2x", Width: 3000},
}

// Encodings lists the output codecs for each size.
var Encodings = []Encoding{
	{Name: "avif", ContentType: "image/avif", Quality: 50},
	{Name: "webp", ContentType: "image/webp", Quality: 80},
	{Name: "jpeg", ContentType: "image/jpeg", Quality: 80},
}

// supportedInput is the set of source extensions the pipeline decodes.
var supportedInput = map[string]bool{
	"jpeg": true,
	"jpg":  true,
	"png":  true,
}

// SupportedInput reports whether a source extension can be decoded.
func SupportedInput(ext string) bool { return supportedInput[ext] }

// FormatNames returns the encoding names recorded in photo metadata.
func FormatNames() []string {
	names := make([]string, len(Encodings))
	for i, enc := range Encodings {
		names[i] = enc.Name
	}
	return names
}

// ArtifactKey is the deterministic storage key for one derivative. It is
// never stored, always recomputed.
func ArtifactKey(id photokey.Identity, size Size, enc Encoding) string {
	return id.Dir + id.Base + "_" + size.Label + "." + enc.Name
}

// Keys returns the full artifact key set for one source image.
func Keys(id photokey.Identity) []string {
	keys := make([]string, 0, len(Sizes)*len(Encodings))
	for _, size := range Sizes {
		for _, enc := range Encodings {
			keys = append(keys, ArtifactKey(id, size, enc))
		}
	}
	return keys
}
