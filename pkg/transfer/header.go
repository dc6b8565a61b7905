package transfer

import (
	"io"
	"strings"
)

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// writeHeader writes the fields as one line, each field quoted with embedded
// quotes doubled
func writeHeader(w io.Writer, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	var b strings.Builder
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(field, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
