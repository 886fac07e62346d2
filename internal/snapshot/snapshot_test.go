package snapshot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/termarb/internal/domain"
)

var takenAt = time.Date(2024, 3, 9, 12, 30, 0, 0, time.UTC)

func sample() Snapshot {
	huge, _ := uint256.FromDecimal("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	s := New([]domain.Quote{
		{Token: domain.Token{Name: "ETH"}, Price: 9500, Maturity: 1_735_689_600, Side: domain.SideBorrow, Amount: uint256.NewInt(100)},
		{Token: domain.Token{Name: "EFIL"}, Price: 9000, Maturity: 1_735_689_600, Side: domain.SideLend, Amount: huge},
	}, takenAt, "test")
	return s
}

func TestEncodeDecode(t *testing.T) {
	s := sample()
	data, err := Encode(s)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), `"side": "BORROW"`) {
		t.Fatalf("side not encoded by name:\n%s", data)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ID != s.ID || !got.TakenAt.Equal(s.TakenAt) || got.Source != "test" {
		t.Fatalf("header = %+v", got)
	}
	if len(got.Quotes) != 2 {
		t.Fatalf("got %d quotes", len(got.Quotes))
	}
	for i := range s.Quotes {
		w, g := s.Quotes[i], got.Quotes[i]
		if w.Token != g.Token || w.Price != g.Price || w.Maturity != g.Maturity || w.Side != g.Side || !w.Amount.Eq(g.Amount) {
			t.Fatalf("quote %d = %v, want %v", i, g, w)
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := map[string]string{
		"bad json":    `{`,
		"version":     `{"version":2,"quotes":[]}`,
		"bad side":    `{"version":1,"quotes":[{"token":"ETH","price":1,"maturity":1,"side":"HOLD","amount":"1"}]}`,
		"bad amount":  `{"version":1,"quotes":[{"token":"ETH","price":1,"maturity":1,"side":"LEND","amount":"12x"}]}`,
		"price range": `{"version":1,"quotes":[{"token":"ETH","price":10001,"maturity":1,"side":"LEND","amount":"1"}]}`,
		"no token":    `{"version":1,"quotes":[{"token":"","price":1,"maturity":1,"side":"LEND","amount":"1"}]}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(in)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPath(t *testing.T) {
	s := Snapshot{ID: "abc", TakenAt: takenAt}
	if got := Path(s); got != "snapshots/2024/03/09/abc.json" {
		t.Fatalf("Path = %q", got)
	}
}

func TestLoadFile(t *testing.T) {
	data, err := Encode(sample())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "snap.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadFile(path)
	if err != nil || len(s.Quotes) != 2 {
		t.Fatalf("LoadFile = %+v, %v", s, err)
	}
}

// memBlob is an in-memory domain.BlobWriter and domain.BlobReader.
type memBlob struct {
	objects map[string][]byte
	mtimes  map[string]time.Time
	clock   time.Time
}

func newMemBlob() *memBlob {
	return &memBlob{objects: map[string][]byte{}, mtimes: map[string]time.Time{}, clock: takenAt}
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.clock = m.clock.Add(time.Second)
	m.objects[path] = b
	m.mtimes[path] = m.clock
	return nil
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b)), LastModified: m.mtimes[p]})
		}
	}
	return out, nil
}

func (m *memBlob) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func TestArchiveSaveLoadLatest(t *testing.T) {
	ctx := context.Background()
	blob := newMemBlob()
	a := NewArchive(blob, blob)

	first := sample()
	if _, err := a.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second := sample()
	path, err := a.Save(ctx, second)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ok, _ := blob.Exists(ctx, path); !ok {
		t.Fatalf("nothing stored at %s", path)
	}

	got, err := a.Load(ctx, path)
	if err != nil || got.ID != second.ID {
		t.Fatalf("Load = %s, %v", got.ID, err)
	}
	latest, latestPath, err := a.Latest(ctx, takenAt)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != second.ID || latestPath != path {
		t.Fatalf("Latest = %s at %s, want %s", latest.ID, latestPath, second.ID)
	}

	_, _, err = a.Latest(ctx, takenAt.AddDate(0, 0, 1))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := a.Load(ctx, "snapshots/none.json"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
