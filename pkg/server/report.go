package server

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/usecase"
)

// WriteBatchReport renders a summary table followed by any item failures.
func WriteBatchReport(w io.Writer, r *usecase.BatchReport) error {
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()

	table.Header([]string{"Job", "Profile", "Total", "Skipped", "Completed", "Failed", "Insufficient", "Watermark", "Duration"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	if err := table.Append([]string{
		r.JobID,
		r.ProfileID,
		strconv.Itoa(r.Total),
		strconv.Itoa(r.Skipped),
		strconv.Itoa(r.Completed),
		strconv.Itoa(r.Failed),
		strconv.Itoa(r.Insufficient),
		formatKey(r.Watermark),
		r.Duration.Round(time.Millisecond).String(),
	}); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	if err := writeCounts(w, "Classification", classCounts(r.Classes)); err != nil {
		return err
	}
	if err := writeCounts(w, "Grade", gradeCounts(r.Grades)); err != nil {
		return err
	}
	if len(r.Failures) == 0 {
		return nil
	}

	ft := tablewriter.NewWriter(w)
	defer func() { _ = ft.Close() }()
	ft.Header([]string{"Entity", "Timestamp", "Stage", "Error"})
	rows := make([][]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		rows = append(rows, []string{f.Key.EntityID, f.Key.Timestamp.Format(time.RFC3339), f.Stage, f.Err.Error()})
	}
	if err := ft.Bulk(rows); err != nil {
		return err
	}
	return ft.Render()
}

type count struct {
	label string
	n     int
}

func classCounts(m map[models.Classification]int) []count {
	out := make([]count, 0, len(m))
	for _, c := range []models.Classification{models.StrongBuy, models.Buy, models.Hold, models.Sell, models.StrongSell} {
		if n := m[c]; n > 0 {
			out = append(out, count{string(c), n})
		}
	}
	return out
}

func gradeCounts(m map[models.Grade]int) []count {
	out := make([]count, 0, len(m))
	for g, n := range m {
		out = append(out, count{string(g), n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].label < out[j].label })
	return out
}

func writeCounts(w io.Writer, title string, counts []count) error {
	if len(counts) == 0 {
		return nil
	}
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()
	table.Header([]string{title, "Count"})
	for _, c := range counts {
		if err := table.Append([]string{c.label, strconv.Itoa(c.n)}); err != nil {
			return err
		}
	}
	return table.Render()
}

// WriteTrends renders one row per entity.
func WriteTrends(w io.Writer, profileID string, trends []models.Trend) error {
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()

	table.Header([]string{"Entity", "Profile", "Direction", "Slope", "Points", "Latest", "Class", "As Of"})
	rows := make([][]string, 0, len(trends))
	for _, t := range trends {
		latest, class, asOf := "-", "-", "-"
		if t.Latest != nil {
			latest = fmt.Sprintf("%.4f", t.Latest.AdjustedScore)
			class = string(t.Latest.Classification)
			asOf = t.Latest.Timestamp.Format(time.DateOnly)
		}
		rows = append(rows, []string{
			t.EntityID,
			profileID,
			string(t.Direction),
			fmt.Sprintf("%+.4f", t.Slope),
			strconv.Itoa(t.Points),
			latest,
			class,
			asOf,
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// WriteCalibration renders current and suggested thresholds side by side.
func WriteCalibration(w io.Writer, c usecase.Calibration) error {
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()

	table.Header([]string{"Threshold", "Current", "Suggested"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	rows := [][]string{
		{"strong_buy", ff(c.Current.StrongBuy), ff(c.Suggested.StrongBuy)},
		{"buy", ff(c.Current.Buy), ff(c.Suggested.Buy)},
		{"sell", ff(c.Current.Sell), ff(c.Suggested.Sell)},
		{"strong_sell", ff(c.Current.StrongSell), ff(c.Suggested.StrongSell)},
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "profile=%s samples=%d target_rate=%.2f\n", c.ProfileID, c.Samples, c.TargetRate)
	return err
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

func formatKey(k models.ScoreKey) string {
	if k.EntityID == "" {
		return "-"
	}
	return k.EntityID + "@" + k.Timestamp.Format(time.DateOnly)
}
