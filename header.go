package tabcsv

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// padHeader fits header into exactly budget bytes: shorter headers are
// padded with spaces, longer ones are cut.
func padHeader(header string, budget int, comma, quote byte) string {
	header = truncateHeader(header, budget, comma, quote)
	return header + strings.Repeat(" ", budget-len(header))
}

// truncateHeader returns at most budget bytes of header without splitting a
// UTF-8 sequence. A cut inside a quoted name drops that name and its
// leading delimiter, since an open quote would swallow the rest of the file.
func truncateHeader(header string, budget int, comma, quote byte) string {
	if len(header) <= budget {
		return header
	}
	cut := budget
	for cut > 0 && !utf8.RuneStart(header[cut]) {
		cut--
	}

	inQuotes := false
	fieldStart := 0
	for i := 0; i < cut; i++ {
		switch header[i] {
		case quote:
			inQuotes = !inQuotes
		case comma:
			if !inQuotes {
				fieldStart = i + 1
			}
		}
	}
	if inQuotes {
		cut = max(fieldStart-1, 0)
	}
	return header[:cut]
}

// encodeHeader renders the schema as a header line of exactly headerLength bytes.
func (o *Output) encodeHeader() string {
	comma, quote := o.enc.delims()
	return padHeader(o.enc.Encode(o.fieldnames), o.headerLength, comma, quote)
}

// patchHeader overwrites the start of the stream with the header of the
// extended schema. Fields that do not fit in the budget are dropped from
// the header only; rows still carry a value for them. The whole padded
// budget is rewritten, so a shorter header never leaves stale bytes behind.
func (o *Output) patchHeader() error {
	ws := o.stream.(io.WriteSeeker)
	if err := o.enc.Flush(); err != nil {
		return fmt.Errorf("flush before header patch: %w", err)
	}

	header := o.encodeHeader()
	if _, err := ws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek to header: %w", err)
	}
	if _, err := io.WriteString(ws, header); err != nil {
		// Rows must keep landing at the end of the stream.
		_, _ = ws.Seek(0, io.SeekEnd)
		return fmt.Errorf("patch header: %w", err)
	}
	if _, err := ws.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}

	o.metrics.headerPatched()
	o.logger.Debug("Header patched",
		"fields", len(o.fieldnames),
		"header_bytes", len(header),
		"header_length", o.headerLength)
	return nil
}
