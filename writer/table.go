package writer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"text/tabwriter"

	"oddsflow/logger"
	"oddsflow/models"
)

// TableSink renders a snapshot as an aligned text table, one row per
// fixture, sportsbook and market with up to two selections.
type TableSink struct {
	mu    sync.Mutex
	out   io.Writer
	limit int
}

// NewTableSink writes to out, or stdout when out is nil. A positive limit
// caps the number of rows.
func NewTableSink(out io.Writer, limit int) *TableSink {
	if out == nil {
		out = os.Stdout
	}
	return &TableSink{out: out, limit: limit}
}

func (t *TableSink) Name() string { return "table" }

type tableRow struct {
	fixture    string
	league     string
	sportsbook string
	market     string
	selections []models.Record
}

func (t *TableSink) Export(ctx context.Context, snap models.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := groupRows(snap.Records)

	t.mu.Lock()
	defer t.mu.Unlock()

	tw := tabwriter.NewWriter(t.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "snapshot %s at %s: %d records, %d updates, %d locked, %d fixtures\n",
		snap.ID, snap.TakenAt.Format("15:04:05"), snap.Summary.Records, snap.Summary.TotalUpdates,
		snap.Summary.LockedCount, len(snap.Summary.ActiveFixtureIDs))
	fmt.Fprintln(tw, "FIXTURE\tLEAGUE\tSPORTSBOOK\tMARKET\tSELECTION 1\tPRICE 1\tSELECTION 2\tPRICE 2")

	written := 0
	for _, row := range rows {
		if t.limit > 0 && written >= t.limit {
			break
		}
		cells := []string{row.fixture, row.league, row.sportsbook, row.market, "", "", "", ""}
		for i, rec := range row.selections {
			cells[4+2*i] = rec.SelectionName
			cells[5+2*i] = formatPrice(rec)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			cells[0], cells[1], cells[2], cells[3], cells[4], cells[5], cells[6], cells[7])
		written++
	}
	if len(rows) > written {
		fmt.Fprintf(tw, "... %d more rows\n", len(rows)-written)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	logger.IncrementExportWrite("table", written)
	return nil
}

// groupRows keeps the order of the snapshot. Records beyond the second of a
// group are left out of the table.
func groupRows(records []models.Record) []*tableRow {
	var rows []*tableRow
	index := make(map[string]*tableRow)
	for _, rec := range records {
		key := rec.FixtureID + "\x00" + rec.Sportsbook + "\x00" + rec.Market
		row, ok := index[key]
		if !ok {
			row = &tableRow{
				fixture:    rec.FixtureID,
				league:     rec.League,
				sportsbook: rec.Sportsbook,
				market:     rec.Market,
			}
			index[key] = row
			rows = append(rows, row)
		}
		if len(row.selections) < 2 {
			row.selections = append(row.selections, rec)
		}
	}
	return rows
}

func formatPrice(rec models.Record) string {
	if rec.Price == nil {
		return "-"
	}
	american := strconv.Itoa(*rec.Price)
	if *rec.Price > 0 {
		american = "+" + american
	}
	if d := models.FormatDecimalOdds(rec.DecimalPrice, 2); d != "" {
		return american + " (" + d + ")"
	}
	return american
}
