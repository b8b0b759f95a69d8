package tablestyle

import (
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

var (
	CustomCleanStyle = table.Style{
		Name: "CustomClean",
		Box:  table.BoxStyle{PaddingRight: " "},
		Format: table.FormatOptions{
			Footer: text.FormatUpper,
			Header: text.FormatUpper,
			Row:    text.FormatDefault,
		},
		Options: table.Options{
			DrawBorder:      false,
			SeparateColumns: true,
			SeparateFooter:  false,
			SeparateHeader:  false,
			SeparateRows:    false,
		},
	}

	free     = color.New(color.FgGreen)
	busy     = color.New(color.FgRed)
	inactive = color.New(color.Faint)
)

// New returns a table writer with the clean style and the given header.
func New(header ...any) table.Writer {
	t := table.NewWriter()
	t.SetStyle(CustomCleanStyle)
	t.AppendHeader(table.Row(header))
	return t
}

// Slots renders a GPU slot map, free slots in green and busy ones in red.
// Colors are dropped when the output is not a terminal.
func Slots(slots []string, isFree func(string) bool) string {
	var b strings.Builder
	for _, s := range slots {
		if isFree(s) {
			b.WriteString(free.Sprint(s))
		} else {
			b.WriteString(busy.Sprint(s))
		}
	}
	return b.String()
}

// Percent renders an optional percentage, red from 90 up.
func Percent(p *int) string {
	switch {
	case p == nil:
		return inactive.Sprint("n/a")
	case *p >= 90:
		return busy.Sprintf("%d%%", *p)
	}
	return color.New(color.Reset).Sprintf("%d%%", *p)
}

// Status colors a job state.
func Status(s string) string {
	switch strings.ToLower(s) {
	case "running", "completed", "connected":
		return free.Sprint(s)
	case "failed", "cancelled":
		return busy.Sprint(s)
	}
	return inactive.Sprint(s)
}
