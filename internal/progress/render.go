package progress

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Render writes the human-readable end-of-run report.
func Render(w io.Writer, s Summary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Processing complete. %s images classified in %s\n",
		humanize.Comma(int64(s.Processed)), formatElapsed(s.Elapsed))
	fmt.Fprintf(&b, "  Already processed: %s\n", humanize.Comma(int64(s.AlreadyDone)))
	fmt.Fprintf(&b, "  Total in ledger:   %s\n", humanize.Comma(int64(s.Total)))
	fmt.Fprintf(&b, "  Average per image: %.2fs\n", s.Average.Seconds())
	if s.Processed > 0 {
		fmt.Fprintf(&b, "  This run:          %.2fs per image\n", s.PerImage.Seconds())
	}
	if len(s.Categories) > 0 {
		b.WriteString("\n")
		b.WriteString(CategoryTable(s.Categories))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// CategoryTable renders category counts, largest first.
func CategoryTable(counts map[string]int) string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if counts[a] != counts[b] {
			return counts[b] - counts[a]
		}
		return strings.Compare(a, b)
	})

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Category", "Images"})
	total := 0
	for _, name := range names {
		tw.AppendRow(table.Row{name, humanize.Comma(int64(counts[name]))})
		total += counts[name]
	}
	tw.AppendFooter(table.Row{"Total", humanize.Comma(int64(total))})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	return tw.Render()
}

// formatElapsed renders d as H:MM:SS.
func formatElapsed(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}
