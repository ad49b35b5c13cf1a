package export

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/celerix-dev/celerix-leads/pkg/schema"
)

const (
	csvDelimiter = ","
	csvQuote     = `"`
)

// WriteCSV writes the header line and one line per lead, in the order given.
// Text fields are always quoted (so an absent phone is ""), embedded quotes
// are doubled, the score is written bare and lines are joined by "\n" with no
// trailing newline. The output is RFC 4180 compatible.
func WriteCSV(w io.Writer, leads []schema.Lead, opts Options) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(strings.Join(Headers(), csvDelimiter))

	fields := make([]string, len(Columns))
	for _, l := range leads {
		for i, c := range Columns {
			if i == scoreColumn {
				fields[i] = strconv.Itoa(l.Score)
				continue
			}
			fields[i] = quote(c.Value(l, opts))
		}
		bw.WriteString("\n")
		bw.WriteString(strings.Join(fields, csvDelimiter))
	}
	return bw.Flush()
}

func quote(s string) string {
	return csvQuote + strings.ReplaceAll(s, csvQuote, csvQuote+csvQuote) + csvQuote
}
