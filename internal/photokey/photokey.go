// Package photokey derives structured identity from photo storage keys.
package photokey

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// HierarchyError reports a key whose segment count does not match the
// expected year/album[/sub-album]/file layout.
type HierarchyError struct {
	Key      string
	Segments int
}

func (e *HierarchyError) Error() string {
	return fmt.Sprintf("key %q has %d segments, want 3 or 4", e.Key, e.Segments)
}

// Identity is the parsed form of a storage key. Dir keeps its trailing
// separator so artifact keys can be rebuilt by plain concatenation.
type Identity struct {
	Key      string // decoded full key
	Year     int
	Album    string
	SubAlbum string
	Base     string
	Dir      string
	Ext      string
}

// IsDir reports whether the key named a directory rather than a file.
func (id Identity) IsDir() bool { return id.Ext == "" }

// Decode reverses the escaping applied to keys in event notifications,
// including the +-for-space convention.
func Decode(raw string) (string, error) {
	key, err := url.QueryUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("unescape key %q: %w", raw, err)
	}
	return key, nil
}

// IsFileKey reports whether a decoded key names a file. Keys whose final
// segment has no extension denote directories.
func IsFileKey(key string) bool {
	last := key[strings.LastIndex(key, "/")+1:]
	return strings.Contains(last, ".")
}

// Parse decodes a raw event key and splits it into an Identity.
//
// Keys are expected to be year/album/file or year/album/sub-album/file.
// A final segment without an extension denotes a directory; callers should
// route those to prefix deletion instead of per-file handling.
func Parse(raw string) (Identity, error) {
	key, err := Decode(raw)
	if err != nil {
		return Identity{}, err
	}

	parts := strings.Split(key, "/")
	file := parts[len(parts)-1]

	id := Identity{Key: key}
	if dot := strings.LastIndex(file, "."); dot >= 0 {
		id.Base = file[:dot]
		id.Ext = strings.ToLower(file[dot+1:])
	} else {
		// Directory key: keep the whole key for prefix operations.
		id.Base = file
	}
	id.Dir = key[:len(key)-len(file)]

	switch len(parts) {
	case 3:
		id.Album = parts[1]
	case 4:
		id.Album = parts[1]
		id.SubAlbum = parts[2]
	default:
		return Identity{}, &HierarchyError{Key: key, Segments: len(parts)}
	}

	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Identity{}, &HierarchyError{Key: key, Segments: len(parts)}
	}
	id.Year = year

	return id, nil
}
