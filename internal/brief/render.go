package brief

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// SectorTable renders the level-one ranking as aligned columns.
func (d Digest) SectorTable() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "sector\tstrength\tcount\theadline\tsub_details")
	for _, s := range d.Sectors {
		fmt.Fprintf(w, "%s\t%.2f\t%d\t%s\t%s\n", s.Sector, s.Strength, s.Count, s.TopSummary, s.SubSectorLabel)
	}
	_ = w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// DetailLines renders the strongest records, one per line.
func (d Digest) DetailLines() string {
	lines := make([]string, 0, len(d.TopRecords))
	for _, r := range d.TopRecords {
		line := fmt.Sprintf("- [%.1f分 | %s-%s] %s | 逻辑:%s", r.Decayed, r.Sector, r.SubSector, r.Summary, r.Logic)
		if len(r.RelatedStocks) > 0 {
			line += " | 标的:" + strings.Join(r.RelatedStocks, "、")
		}
		line += fmt.Sprintf(" | 新鲜度:%.2f", r.Freshness)
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (d Digest) String() string {
	return d.SectorTable() + "\n\n" + d.DetailLines()
}
