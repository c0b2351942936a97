// Package csvexport renders flattened rows as a spreadsheet-friendly CSV
// document: UTF-8 with a byte-order mark, "\n" line separators and RFC 4180
// quoting.
package csvexport

import (
	"strings"

	"github.com/zieneks/teamtailor-csv-export/pkg/flatten"
)

// BOM is the UTF-8 byte-order mark prefixed to every document.
const BOM = "\ufeff"

const (
	separator     = ","
	lineSeparator = "\n"
)

// Encode renders the header followed by one line per row. Lines are joined
// with a single "\n"; there is no trailing newline.
func Encode(rows []flatten.Row) string {
	var sb strings.Builder
	sb.WriteString(BOM)
	writeLine(&sb, flatten.Header)
	for _, row := range rows {
		sb.WriteString(lineSeparator)
		writeLine(&sb, row.Values())
	}
	return sb.String()
}

// ContentType is the media type of an encoded document.
const ContentType = "text/csv; charset=utf-8"

func writeLine(sb *strings.Builder, fields []string) {
	for i, field := range fields {
		if i > 0 {
			sb.WriteString(separator)
		}
		sb.WriteString(EscapeField(field))
	}
}

// EscapeField quotes a field if it contains a comma, a double quote or a
// line break, doubling embedded quotes. Other fields are returned as is.
func EscapeField(field string) string {
	if !strings.ContainsAny(field, ",\"\n\r") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
