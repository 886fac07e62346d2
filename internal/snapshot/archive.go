package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/alanyoungcy/termarb/internal/domain"
)

// Archive stores snapshots in object storage.
type Archive struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

// NewArchive creates an Archive. Either side may be nil when only saving or
// only loading.
func NewArchive(writer domain.BlobWriter, reader domain.BlobReader) *Archive {
	return &Archive{writer: writer, reader: reader}
}

// Save uploads s and returns its key.
func (a *Archive) Save(ctx context.Context, s Snapshot) (string, error) {
	if a.writer == nil {
		return "", fmt.Errorf("snapshot: archive has no writer")
	}
	data, err := Encode(s)
	if err != nil {
		return "", err
	}
	path := Path(s)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("snapshot: save %s: %w", path, err)
	}
	return path, nil
}

// Load downloads and decodes the snapshot at path.
func (a *Archive) Load(ctx context.Context, path string) (Snapshot, error) {
	if a.reader == nil {
		return Snapshot{}, fmt.Errorf("snapshot: archive has no reader")
	}
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: load %s: %w", path, err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: read %s: %w", path, err)
	}
	return Decode(data)
}

// Latest loads the most recently written snapshot of the given UTC day. It
// returns domain.ErrNotFound when the day has none.
func (a *Archive) Latest(ctx context.Context, day time.Time) (Snapshot, string, error) {
	if a.reader == nil {
		return Snapshot{}, "", fmt.Errorf("snapshot: archive has no reader")
	}
	infos, err := a.reader.List(ctx, DayPrefix(day))
	if err != nil {
		return Snapshot{}, "", fmt.Errorf("snapshot: list: %w", err)
	}
	if len(infos) == 0 {
		return Snapshot{}, "", fmt.Errorf("snapshot: %s: %w", DayPrefix(day), domain.ErrNotFound)
	}
	latest := infos[0]
	for _, info := range infos[1:] {
		if info.LastModified.After(latest.LastModified) {
			latest = info
		}
	}
	s, err := a.Load(ctx, latest.Path)
	return s, latest.Path, err
}
