package main

import (
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/banshee-data/trajlink/internal/linking"
)

var statsHeaders = table.Row{"video", "detections", "births", "stitched", "deleted", "merged", "linked", "identities"}

// renderStats lays out one row per video. Columns after the name are right
// aligned.
func renderStats(names []string, stats []linking.VideoStats, rounded bool) string {
	tw := table.NewWriter()
	if rounded {
		tw.SetStyle(table.StyleRounded)
	}
	tw.AppendHeader(statsHeaders)
	for i, vs := range stats {
		tw.AppendRow(table.Row{
			names[i],
			strconv.Itoa(vs.Detections),
			strconv.Itoa(vs.Births),
			strconv.Itoa(vs.Stitched),
			strconv.Itoa(vs.DeletedShort + vs.DeletedLowConf),
			strconv.Itoa(vs.Merged),
			strconv.Itoa(vs.Linked),
			strconv.Itoa(vs.Identities),
		})
	}
	configs := make([]table.ColumnConfig, 0, len(statsHeaders))
	for i := 1; i < len(statsHeaders); i++ {
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       text.AlignRight,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
