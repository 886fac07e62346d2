// Package snapshot serializes collected quote books so a detection cycle can
// be archived and replayed later at the time it was taken.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/termarb/internal/domain"
)

const formatVersion = 1

// Snapshot is the full quote input of one detection cycle.
type Snapshot struct {
	ID      string
	TakenAt time.Time
	Source  string
	Quotes  []domain.Quote
}

// New stamps quotes with a fresh ID.
func New(quotes []domain.Quote, takenAt time.Time, source string) Snapshot {
	return Snapshot{
		ID:      uuid.NewString(),
		TakenAt: takenAt.UTC(),
		Source:  source,
		Quotes:  quotes,
	}
}

type wireQuote struct {
	Token    string              `json:"token"`
	Price    int                 `json:"price"`
	Maturity int64               `json:"maturity"`
	Side     domain.PositionSide `json:"side"`
	Amount   string              `json:"amount"`
}

type wireSnapshot struct {
	Version int         `json:"version"`
	ID      string      `json:"id"`
	TakenAt time.Time   `json:"taken_at"`
	Source  string      `json:"source,omitempty"`
	Quotes  []wireQuote `json:"quotes"`
}

// Encode renders a snapshot as JSON. Amounts are decimal strings so 256-bit
// values survive intact.
func Encode(s Snapshot) ([]byte, error) {
	w := wireSnapshot{
		Version: formatVersion,
		ID:      s.ID,
		TakenAt: s.TakenAt,
		Source:  s.Source,
		Quotes:  make([]wireQuote, len(s.Quotes)),
	}
	for i, q := range s.Quotes {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("snapshot: quote %d: %w", i, err)
		}
		w.Quotes[i] = wireQuote{
			Token:    q.Token.Name,
			Price:    q.Price,
			Maturity: q.Maturity,
			Side:     q.Side,
			Amount:   q.Amount.Dec(),
		}
	}
	return json.MarshalIndent(w, "", "  ")
}

// Decode parses and validates a snapshot produced by Encode.
func Decode(data []byte) (Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: decode: %w", err)
	}
	if w.Version != formatVersion {
		return Snapshot{}, fmt.Errorf("snapshot: unsupported version %d", w.Version)
	}
	s := Snapshot{
		ID:      w.ID,
		TakenAt: w.TakenAt,
		Source:  w.Source,
		Quotes:  make([]domain.Quote, len(w.Quotes)),
	}
	for i, wq := range w.Quotes {
		amount, err := uint256.FromDecimal(wq.Amount)
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot: quote %d amount %q: %w", i, wq.Amount, err)
		}
		q := domain.Quote{
			Token:    domain.Token{Name: wq.Token},
			Price:    wq.Price,
			Maturity: wq.Maturity,
			Side:     wq.Side,
			Amount:   amount,
		}
		if err := q.Validate(); err != nil {
			return Snapshot{}, fmt.Errorf("snapshot: quote %d: %w", i, err)
		}
		s.Quotes[i] = q
	}
	return s, nil
}

// LoadFile reads a snapshot from the local filesystem.
func LoadFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: read %s: %w", path, err)
	}
	return Decode(data)
}

// Path is the archive key of a snapshot: snapshots/YYYY/MM/DD/<id>.json.
func Path(s Snapshot) string {
	return DayPrefix(s.TakenAt) + s.ID + ".json"
}

// DayPrefix is the archive prefix holding every snapshot of a UTC day.
func DayPrefix(day time.Time) string {
	return "snapshots/" + day.UTC().Format("2006/01/02") + "/"
}
