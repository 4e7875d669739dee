// Package presenter renders the current book to an output stream for inspection.
package presenter

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rickgao/depthbook/internal/book"
)

// Ladders is the read-only view of a book the presenter needs.
type Ladders interface {
	Depth(side book.Side, n int) []book.Level
	Len(side book.Side) int
}

// Presenter writes bid and ask ladders, best price first.
type Presenter struct {
	out   io.Writer
	depth int // Levels per side (0 = all)
}

// New creates a Presenter writing to out.
func New(out io.Writer, depth int) *Presenter {
	return &Presenter{out: out, depth: depth}
}

// Render writes one frame of output:
//
//	BIDS (2 levels)
//	  101.0000  3.0000
//	  100.0000  5.0000
//	ASKS (0 levels)
func (p *Presenter) Render(l Ladders) error {
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', tabwriter.AlignRight)

	for _, side := range []book.Side{book.Bid, book.Ask} {
		header := "BIDS"
		if side == book.Ask {
			header = "ASKS"
		}

		levels := l.Depth(side, p.depth)
		total := l.Len(side)
		if len(levels) < total {
			fmt.Fprintf(tw, "%s (%d of %d levels)\n", header, len(levels), total)
		} else {
			fmt.Fprintf(tw, "%s (%d levels)\n", header, total)
		}
		for _, lvl := range levels {
			fmt.Fprintf(tw, "\t%s\t%s\t\n", lvl.Price, lvl.Quantity)
		}
	}

	return tw.Flush()
}
