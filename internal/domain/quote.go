package domain

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// ParPrice is the discount price of an instrument that pays back exactly its
// face value. Quotes are priced on a 0..ParPrice scale.
const ParPrice = 10_000

// Token identifies a fungible asset by its symbol.
type Token struct {
	Name string
}

// Equal reports whether two tokens carry the same symbol.
func (t Token) Equal(o Token) bool {
	return t.Name == o.Name
}

func (t Token) String() string { return t.Name }

// PositionSide is the side of a fixed-term quote. The zero value is invalid so
// that an unset side never reaches matching.
type PositionSide struct {
	name string
	flag uint8
}

var (
	SideLend   = PositionSide{name: "LEND", flag: 0}
	SideBorrow = PositionSide{name: "BORROW", flag: 1}
)

// ParseSide converts a protocol side flag into a PositionSide.
func ParseSide(flag uint8) (PositionSide, error) {
	switch flag {
	case SideLend.flag:
		return SideLend, nil
	case SideBorrow.flag:
		return SideBorrow, nil
	default:
		return PositionSide{}, fmt.Errorf("%w: unknown side flag %d", ErrInvalidQuote, flag)
	}
}

// ParseSideName converts "LEND" or "BORROW" (any case) into a PositionSide.
func ParseSideName(name string) (PositionSide, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case SideLend.name:
		return SideLend, nil
	case SideBorrow.name:
		return SideBorrow, nil
	default:
		return PositionSide{}, fmt.Errorf("%w: unknown side %q", ErrInvalidQuote, name)
	}
}

// Flag returns the value the lending market contract expects for this side.
func (s PositionSide) Flag() uint8 { return s.flag }

// Valid reports whether s is one of SideLend or SideBorrow.
func (s PositionSide) Valid() bool { return s == SideLend || s == SideBorrow }

func (s PositionSide) String() string {
	if s.name == "" {
		return "UNKNOWN"
	}
	return s.name
}

// MarshalText implements encoding.TextMarshaler.
func (s PositionSide) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: unset side", ErrInvalidQuote)
	}
	return []byte(s.name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *PositionSide) UnmarshalText(text []byte) error {
	side, err := ParseSideName(string(text))
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// Quote is a single borrow-or-lend offer at a fixed maturity. Quotes are
// treated as immutable once built; Amount must not be modified in place.
type Quote struct {
	Token    Token
	Price    int   // discount price, 0..ParPrice
	Maturity int64 // unix seconds
	Side     PositionSide
	Amount   *uint256.Int
}

// Validate checks the structural invariants of a quote. It does not judge
// whether the quote is usable at a given time; see rate.Usable for that.
func (q Quote) Validate() error {
	if strings.TrimSpace(q.Token.Name) == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidQuote)
	}
	if q.Price < 0 || q.Price > ParPrice {
		return fmt.Errorf("%w: price %d outside [0, %d]", ErrInvalidQuote, q.Price, ParPrice)
	}
	if q.Maturity <= 0 {
		return fmt.Errorf("%w: maturity %d", ErrInvalidQuote, q.Maturity)
	}
	if !q.Side.Valid() {
		return fmt.Errorf("%w: side not set", ErrInvalidQuote)
	}
	if q.Amount == nil {
		return fmt.Errorf("%w: nil amount", ErrInvalidQuote)
	}
	return nil
}

// AmountFloat converts the amount to float64. The conversion loses precision
// above 2^53 and is only meant for scoring, never for order submission.
func (q Quote) AmountFloat() float64 {
	if q.Amount == nil {
		return 0
	}
	return q.Amount.Float64()
}

func (q Quote) String() string {
	amount := "<nil>"
	if q.Amount != nil {
		amount = q.Amount.Dec()
	}
	return fmt.Sprintf("%s %s @%d maturity=%d amount=%s", q.Side, q.Token.Name, q.Price, q.Maturity, amount)
}
