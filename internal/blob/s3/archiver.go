package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// multipartThreshold switches snapshot uploads to the multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// metaUpdatedAt records the market's UpdatedAt on the snapshot object.
const metaUpdatedAt = "market-updated-at"

// Archiver implements domain.Archiver by writing one JSON object per settled
// market. A snapshot is rewritten when the market changed after it was
// taken, e.g. by claims made after the first archive run.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader) *Archiver {
	return &Archiver{writer: writer, reader: reader}
}

// SnapshotPath is the object path of a market's snapshot.
func SnapshotPath(marketID string) string {
	return "archive/markets/" + marketID + ".json"
}

// ArchiveMarket uploads snap unless the stored snapshot is already current.
// It reports whether an object was written.
func (a *Archiver) ArchiveMarket(ctx context.Context, snap domain.MarketSnapshot) (bool, error) {
	path := SnapshotPath(snap.Market.ID)
	info, err := a.reader.Head(ctx, path)
	if err != nil {
		return false, fmt.Errorf("s3blob: archive %s: %w", snap.Market.ID, err)
	}
	if info.Exists && current(info, snap.Market.UpdatedAt) {
		return false, nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("s3blob: marshal snapshot %s: %w", snap.Market.ID, err)
	}

	meta := map[string]string{metaUpdatedAt: snap.Market.UpdatedAt.UTC().Format(time.RFC3339Nano)}
	if len(data) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(data), minPartSize, meta)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(data), "application/json", meta)
	}
	if err != nil {
		return false, fmt.Errorf("s3blob: upload snapshot %s: %w", snap.Market.ID, err)
	}
	return true, nil
}

// current reports whether a stored snapshot was taken at or after updatedAt.
// Objects without a readable timestamp are treated as stale.
func current(info domain.BlobInfo, updatedAt time.Time) bool {
	raw, ok := info.Metadata[metaUpdatedAt]
	if !ok {
		return false
	}
	taken, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return false
	}
	return !taken.Before(updatedAt)
}
