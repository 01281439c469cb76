package router

import (
	"strconv"
	"strings"

	"reminderbot/internal/store"
)

var tableHeaders = []string{"Id", "Cron", "Paused", "Next remind", "Message"}

// renderJobTable formats the user's reminders as an ASCII table inside a
// Markdown code block, so Telegram renders it in a monospace font.
func renderJobTable(jobs []store.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			strconv.FormatInt(j.ID, 10),
			j.Spec,
			strconv.FormatBool(j.Paused),
			j.NextFire.Format(dateLayout),
			j.Message,
		})
	}

	widths := make([]int, len(tableHeaders))
	for i, h := range tableHeaders {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	b.WriteString("```\n")
	writeSeparator(&b, widths)
	writeRow(&b, tableHeaders, widths)
	writeSeparator(&b, widths)
	for _, row := range rows {
		writeRow(&b, row, widths)
	}
	writeSeparator(&b, widths)
	b.WriteString("```")
	return b.String()
}

func writeSeparator(b *strings.Builder, widths []int) {
	for _, w := range widths {
		b.WriteByte('+')
		b.WriteString(strings.Repeat("-", w+2))
	}
	b.WriteString("+\n")
}

func writeRow(b *strings.Builder, cells []string, widths []int) {
	for i, cell := range cells {
		b.WriteString("| ")
		b.WriteString(cell)
		b.WriteString(strings.Repeat(" ", widths[i]-len(cell)+1))
	}
	b.WriteString("|\n")
}
