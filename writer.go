package tabcsv

import (
	"bufio"
	"io"
)

const defaultBufferSize = 1 << 12 // 4096 bytes

// RowWriter encodes CSV rows onto a buffered destination and keeps track of
// how many bytes it has emitted. Output uses it for headers and data rows.
type RowWriter struct {
	dst *bufio.Writer

	// Comma is the field delimiter. Default is ','.
	Comma byte
	// Quote is the quote character. Default is '"'.
	Quote byte
	// UseCRLF terminates rows with \r\n. NewRowWriter enables it.
	UseCRLF bool
	// AlwaysQuote forces quoting for all fields when enabled.
	AlwaysQuote bool

	offset int64
	err    error
}

// NewRowWriter creates a RowWriter that terminates rows with CRLF, the line
// ending readers of delimited text expect by default.
func NewRowWriter(w io.Writer) *RowWriter {
	if w == nil {
		panic(errWriterNoTarget.Error())
	}
	return &RowWriter{
		dst:     bufio.NewWriterSize(w, defaultBufferSize),
		Comma:   ',',
		Quote:   '"',
		UseCRLF: true,
	}
}

// Reset points the writer at dst, keeping the configuration flags and
// restarting the byte offset at zero.
func (w *RowWriter) Reset(dst io.Writer) {
	if w == nil {
		panic(errNilWriter.Error())
	}
	if dst == nil {
		panic(errWriterNoTarget.Error())
	}
	if w.dst == nil {
		w.dst = bufio.NewWriterSize(dst, defaultBufferSize)
	} else {
		w.dst.Reset(dst)
	}
	w.offset = 0
	w.err = nil
}

// Write emits a single row terminated with the configured newline sequence.
func (w *RowWriter) Write(row []string) error {
	if err := w.check(); err != nil {
		return err
	}

	comma, quote := w.delims()

	// A lone empty field would otherwise produce a blank line that readers skip.
	if len(row) == 1 && row[0] == "" {
		w.writeBytes(quote, quote)
	} else {
		for i := range row {
			if i > 0 {
				w.writeBytes(comma)
			}
			w.writeField(row[i], comma, quote)
		}
	}
	w.writeTerminator()
	return w.err
}

// WriteAll writes multiple rows, stopping at the first error.
func (w *RowWriter) WriteAll(rows [][]string) error {
	if w == nil {
		return errNilWriter
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteLine writes s verbatim followed by the row terminator. It is used for
// fixed-width headers, whose padding must not be quoted.
func (w *RowWriter) WriteLine(s string) error {
	if err := w.check(); err != nil {
		return err
	}
	w.writeString(s)
	w.writeTerminator()
	return w.err
}

// Encode returns row as it would be written by Write, without the terminator.
func (w *RowWriter) Encode(row []string) string {
	comma, quote := w.delims()
	var b []byte
	for i, field := range row {
		if i > 0 {
			b = append(b, comma)
		}
		if !w.AlwaysQuote && !fieldNeedsQuote(field, comma, quote) {
			b = append(b, field...)
			continue
		}
		b = append(b, quote)
		for j := 0; j < len(field); j++ {
			if field[j] == quote {
				b = append(b, quote)
			}
			b = append(b, field[j])
		}
		b = append(b, quote)
	}
	return string(b)
}

// Flush flushes pending buffered data to the underlying writer.
func (w *RowWriter) Flush() error {
	if err := w.check(); err != nil {
		return err
	}
	if err := w.dst.Flush(); err != nil {
		w.err = err
		return err
	}
	return nil
}

// Offset reports the number of bytes accepted since construction or the last Reset.
func (w *RowWriter) Offset() int64 {
	if w == nil {
		return 0
	}
	return w.offset
}

// Error reports the first error encountered by the writer.
func (w *RowWriter) Error() error {
	if w == nil {
		return errNilWriter
	}
	return w.err
}

func (w *RowWriter) check() error {
	if w == nil {
		return errNilWriter
	}
	if w.dst == nil {
		return errWriterNoTarget
	}
	return w.err
}

func (w *RowWriter) delims() (comma, quote byte) {
	comma, quote = w.Comma, w.Quote
	if comma == 0 {
		comma = ','
	}
	if quote == 0 {
		quote = '"'
	}
	return comma, quote
}

func (w *RowWriter) writeTerminator() {
	if w.UseCRLF {
		w.writeBytes('\r', '\n')
	} else {
		w.writeBytes('\n')
	}
}

func (w *RowWriter) writeBytes(b ...byte) {
	if w.err != nil {
		return
	}
	n, err := w.dst.Write(b)
	w.offset += int64(n)
	w.err = err
}

func (w *RowWriter) writeString(s string) {
	if w.err != nil || s == "" {
		return
	}
	n, err := w.dst.WriteString(s)
	w.offset += int64(n)
	w.err = err
}

func (w *RowWriter) writeField(field string, comma, quote byte) {
	if !w.AlwaysQuote && !fieldNeedsQuote(field, comma, quote) {
		w.writeString(field)
		return
	}
	w.writeBytes(quote)

	start := 0
	for i := 0; i < len(field); i++ {
		if field[i] == quote {
			w.writeString(field[start:i])
			w.writeBytes(quote, quote)
			start = i + 1
		}
	}
	w.writeString(field[start:])
	w.writeBytes(quote)
}

func fieldNeedsQuote(field string, comma, quote byte) bool {
	for i := 0; i < len(field); i++ {
		switch field[i] {
		case quote, comma, '\n', '\r':
			return true
		}
	}
	return false
}
