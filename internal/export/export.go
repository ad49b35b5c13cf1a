// Package export renders the lead list as downloadable files.
package export

import (
	"fmt"
	"strconv"
	"time"

	"github.com/celerix-dev/celerix-leads/pkg/schema"
)

// DefaultTimeLayout is the en-US locale date/time format.
const DefaultTimeLayout = "1/2/2006, 3:04:05 PM"

// Column is one exported field. The order of Columns is fixed.
type Column struct {
	Header string
	Width  float64
	Value  func(l schema.Lead, o Options) string
}

var Columns = []Column{
	{Header: "Name", Width: 25, Value: func(l schema.Lead, _ Options) string { return l.Name }},
	{Header: "Email", Width: 30, Value: func(l schema.Lead, _ Options) string { return l.Email }},
	{Header: "Phone", Width: 20, Value: func(l schema.Lead, _ Options) string { return l.PhoneOrEmpty() }},
	{Header: "Company", Width: 30, Value: func(l schema.Lead, _ Options) string { return l.Company }},
	{Header: "Role", Width: 30, Value: func(l schema.Lead, _ Options) string { return l.Role }},
	{Header: "Location", Width: 25, Value: func(l schema.Lead, _ Options) string { return l.Location }},
	{Header: "Score", Width: 10, Value: func(l schema.Lead, _ Options) string { return strconv.Itoa(l.Score) }},
	{Header: "Timestamp", Width: 25, Value: func(l schema.Lead, o Options) string { return o.FormatTime(l.Timestamp) }},
}

const scoreColumn = 6

// Headers returns the column labels in export order.
func Headers() []string {
	out := make([]string, len(Columns))
	for i, c := range Columns {
		out[i] = c.Header
	}
	return out
}

// Options controls how timestamps are rendered.
type Options struct {
	Location   *time.Location
	TimeLayout string
}

// FormatTime renders t in the configured zone and layout.
func (o Options) FormatTime(t time.Time) string {
	loc := o.Location
	if loc == nil {
		loc = time.Local
	}
	layout := o.TimeLayout
	if layout == "" {
		layout = DefaultTimeLayout
	}
	return t.In(loc).Format(layout)
}

// Format is a supported download type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// Filename returns leads-<unix millis>.<ext>.
func Filename(f Format, now time.Time) string {
	return fmt.Sprintf("leads-%d.%s", now.UnixMilli(), f)
}
