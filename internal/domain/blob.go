package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage. meta is stored as user
// metadata on the object and may be nil.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string, meta map[string]string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64, meta map[string]string) error
}

// BlobInfo describes a stored object. Metadata keys are lower case.
type BlobInfo struct {
	Exists   bool
	Metadata map[string]string
}

// BlobReader inspects objects in storage.
type BlobReader interface {
	Head(ctx context.Context, path string) (BlobInfo, error)
}

// MarketSnapshot is the archived form of a settled market.
type MarketSnapshot struct {
	Market    Market     `json:"market"`
	Positions []Position `json:"positions"`
}

// Archiver writes snapshots of settled markets to long-term storage.
// ArchiveMarket reports whether a snapshot was written. A stored snapshot is
// replaced only when the market changed after it was taken.
type Archiver interface {
	ArchiveMarket(ctx context.Context, snap MarketSnapshot) (bool, error)
}
