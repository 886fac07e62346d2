package app

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/alanyoungcy/termarb/internal/domain"
	"github.com/alanyoungcy/termarb/internal/rate"
	"github.com/alanyoungcy/termarb/internal/snapshot"
)

// WriteReport prints the opportunities found in a replayed snapshot, one row
// per opportunity, maturities ascending.
func WriteReport(w io.Writer, snap snapshot.Snapshot, set domain.OpportunitySet) error {
	now := snap.TakenAt.Unix()
	if _, err := fmt.Fprintf(w, "snapshot %s taken %s: %d quotes, %d opportunities\n\n",
		snap.ID, snap.TakenAt.Format(time.RFC3339), len(snap.Quotes), set.Count()); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MATURITY\tBORROW\tPRICE\tRATE\tLEND\tPRICE\tRATE\tAMOUNT\tPROFIT_USD")
	for _, m := range set.Maturities() {
		for _, o := range set[m] {
			br, _ := rate.Of(o.Borrow, now)
			lr, _ := rate.Of(o.Lend, now)
			fmt.Fprintf(tw, "%s\t%s\t%d\t%.4f%%\t%s\t%d\t%.4f%%\t%s\t%s\n",
				time.Unix(m, 0).UTC().Format(time.DateOnly),
				o.Borrow.Token, o.Borrow.Price, br*100,
				o.Lend.Token, o.Lend.Price, lr*100,
				o.Borrow.Amount.Dec(), domain.RoundUSD(o.Profit),
			)
		}
	}
	return tw.Flush()
}
