package arbitrage

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/termarb/internal/domain"
)

var testPrices = domain.PriceTable{"ETH": 2500, "USDC": 1, "DAI": 1, "WBTC": 60000}

// randomBucket builds a bucket with repeated tokens, degenerate prices and an
// unpriced token so every skip path is exercised.
func randomBucket(seed int64, n int, maturity int64) []domain.Quote {
	rng := rand.New(rand.NewSource(seed))
	tokens := []string{"ETH", "USDC", "DAI", "WBTC", "EFIL"}
	out := make([]domain.Quote, 0, n)
	for i := 0; i < n; i++ {
		side := domain.SideLend
		if rng.Intn(2) == 0 {
			side = domain.SideBorrow
		}
		price := 8000 + rng.Intn(2001)
		switch rng.Intn(20) {
		case 0:
			price = 0
		case 1:
			price = domain.ParPrice
		}
		out = append(out, domain.Quote{
			Token:    domain.Token{Name: tokens[rng.Intn(len(tokens))]},
			Price:    price,
			Maturity: maturity,
			Side:     side,
			Amount:   uint256.NewInt(uint64(rng.Intn(101))),
		})
	}
	return out
}

func TestSortedMergeMatchesCrossProduct(t *testing.T) {
	now := testNow.Unix()
	fees := []domain.Fees{{}, {SwapUSD: 5, BorrowGasUSD: 1, LendGasUSD: 1}}
	for seed := int64(1); seed <= 25; seed++ {
		for _, f := range fees {
			quotes := randomBucket(seed, 30, now+30*86400)
			borrows, lends := split(quotes)
			s := Scorer{Prices: testPrices, Fees: f}

			want := NewCrossProduct().Match(borrows, lends, now, s)
			got := NewSortedMerge().Match(borrows, lends, now, s)
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("seed %d fees %+v: sorted_merge returned %d opportunities, cross_product %d",
					seed, f, len(got), len(want))
			}
		}
	}
}

func TestSortedMergeEngine(t *testing.T) {
	now := testNow.Unix()
	quotes := append(randomBucket(3, 20, now+30*86400), randomBucket(4, 20, now+60*86400)...)

	naive := NewEngine(Config{Prices: testPrices})
	merged := NewEngine(Config{Prices: testPrices, Matcher: NewSortedMerge()})
	if err := naive.Detect(quotes, testNow); err != nil {
		t.Fatal(err)
	}
	if err := merged.Detect(quotes, testNow); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(naive.Opportunities(), merged.Opportunities()) {
		t.Fatal("engines disagree")
	}
	if merged.Matcher() != "sorted_merge" {
		t.Fatalf("Matcher = %q", merged.Matcher())
	}
}

func TestSortedMergeEmptySides(t *testing.T) {
	now := testNow.Unix()
	s := Scorer{Prices: testPrices}
	b := []domain.Quote{quote("ETH", 9500, now+1000, domain.SideBorrow, 1)}
	if got := NewSortedMerge().Match(b, nil, now, s); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
	// Only degenerate lends.
	l := []domain.Quote{quote("USDC", 0, now+1000, domain.SideLend, 1)}
	if got := NewSortedMerge().Match(b, l, now, s); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}
