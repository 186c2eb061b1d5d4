// Package archive stores raw and processed news batches in object storage.
//
// KEY LAYOUT:
//
//	raw/news-2025-01-01-00-00-00.json        ← written by this service
//	processed/news-2025-01-01-00-05-00.json  ← written by a downstream job
//
// Timestamps are UTC with second precision. Two writes in the same second
// produce the same key and the later one wins; that is accepted, not
// deduplicated.
package archive

import (
	"context"
	"time"
)

// Key prefixes.
const (
	PrefixRaw       = "raw/"
	PrefixProcessed = "processed/"
)

// keyTimeLayout renders timestamps as 2006-01-02-15-04-05.
const keyTimeLayout = "2006-01-02-15-04-05"

// Object describes one stored object as seen by a listing.
type Object struct {
	Key          string
	LastModified time.Time
	Size         int64
}

// UploadResult is the tagged outcome of Put: either OK with the key that was
// written, or not OK with a message saying why.
type UploadResult struct {
	OK      bool
	Key     string
	Message string
}

// Store is the contract the news pipeline depends on.
type Store interface {
	// Put writes data under key.
	Put(ctx context.Context, key string, data []byte) UploadResult
	// LatestKey returns the key of the most recently modified object under
	// prefix, or an apperror NotFound if the prefix is empty.
	LatestKey(ctx context.Context, prefix string) (string, error)
	// Get reads the object at key, or returns an apperror NotFound.
	Get(ctx context.Context, key string) ([]byte, error)
}

// NewsKey builds the object key for a batch archived at t under prefix.
func NewsKey(prefix string, t time.Time) string {
	return prefix + "news-" + t.UTC().Format(keyTimeLayout) + ".json"
}

// Latest returns the object with the greatest LastModified. Ties keep the
// first one seen. ok is false for an empty slice.
func Latest(objects []Object) (latest Object, ok bool) {
	for i, o := range objects {
		if i == 0 || o.LastModified.After(latest.LastModified) {
			latest = o
			ok = true
		}
	}
	return latest, ok
}
