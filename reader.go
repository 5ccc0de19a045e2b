package tabcsv

import (
	"bytes"
	"io"
	"strings"
	"unsafe"
)

// RowReader parses CSV rows from a stream. A file with a drifting schema is
// ragged until it is rectangularized, so by default rows of any width are
// accepted.
type RowReader struct {
	src io.Reader

	// Comma is the field delimiter. Default is ','.
	Comma byte
	// Quote is the quote character. Default is '"'.
	Quote byte
	// ReuseRecord makes Read return a slice (and strings) backed by storage
	// that the next call overwrites.
	ReuseRecord bool
	// FieldsPerRecord checks row width. Negative accepts any width, zero
	// fixes the width to that of the first row, positive requires exactly
	// that many fields. NewRowReader sets it to -1.
	FieldsPerRecord int

	buf    []byte
	bufPos int
	bufLen int
	bufErr error

	row         []string
	data        []byte
	fieldBounds []int
	finished    bool
	line        int
	rowLine     int
}

// NewRowReader creates a RowReader consuming r, panicking if r is nil.
func NewRowReader(r io.Reader) *RowReader {
	if r == nil {
		panic("tabcsv: reader source cannot be nil")
	}
	return &RowReader{
		src:             r,
		Comma:           ',',
		Quote:           '"',
		FieldsPerRecord: -1,
		buf:             make([]byte, defaultBufferSize),
		row:             make([]string, 0, 16),
		data:            make([]byte, 0, 512),
		fieldBounds:     make([]int, 0, 32),
		line:            1,
	}
}

// Read parses the next row. io.EOF signals that no more rows remain. A row
// of the wrong width is returned together with ErrFieldCount.
func (r *RowReader) Read() ([]string, error) {
	if r == nil || r.src == nil || r.finished {
		return nil, io.EOF
	}

	_, quote := r.delims()

	if r.ReuseRecord {
		r.row = r.row[:0]
	} else {
		r.row = nil
	}
	r.data = r.data[:0]
	r.fieldBounds = r.fieldBounds[:0]
	r.rowLine = r.line

	st := scanState{column: 1}
	for {
		if r.bufPos >= r.bufLen {
			done, err := r.fill(&st)
			if err != nil || done {
				if err == nil {
					return r.buildRow()
				}
				return nil, err
			}
			continue
		}

		if !st.inQuotes {
			// Plain bytes up to the next quote go through the fast path.
			quoteIdx := bytes.IndexByte(r.buf[r.bufPos:r.bufLen], quote)
			if quoteIdx != 0 {
				limit := r.bufLen
				if quoteIdx > 0 {
					limit = r.bufPos + quoteIdx
				}
				rowDone, err := r.consumePlain(&st, limit)
				if err != nil {
					return nil, err
				}
				if rowDone {
					return r.buildRow()
				}
				if r.bufPos >= r.bufLen || quoteIdx < 0 {
					continue
				}
			}
		}

		curColumn := st.column
		b := r.buf[r.bufPos]
		r.bufPos++

		if st.inQuotes {
			switch b {
			case quote:
				next, err := r.peekByte()
				if err == nil && next == quote {
					r.bufPos++
					r.data = append(r.data, quote)
					st.column = curColumn + 2
					continue
				}
				if err != nil && err != io.EOF {
					return nil, err
				}
				st.inQuotes = false
				st.column = curColumn + 1
			case '\n':
				r.data = append(r.data, b)
				r.line++
				st.column = 1
			default:
				run := r.run(func(c byte) bool { return c == quote || c == '\n' })
				r.data = append(r.data, r.buf[r.bufPos-1:r.bufPos-1+run]...)
				r.bufPos += run - 1
				st.column = curColumn + run
			}
			continue
		}

		// Only a quote reaches here outside a quoted field.
		if len(r.data) == st.fieldStart && !st.sawQuoted {
			st.inQuotes = true
			st.sawQuoted = true
			st.column = curColumn + 1
			continue
		}
		return nil, &ParseError{Line: r.line, Column: curColumn, Err: ErrBareQuote}
	}
}

// ReadAll collects rows until io.EOF and returns the first non-EOF error.
func (r *RowReader) ReadAll() ([][]string, error) {
	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		if r.ReuseRecord {
			row = append([]string(nil), row...)
			for i := range row {
				row[i] = strings.Clone(row[i])
			}
		}
		rows = append(rows, row)
	}
}

// Line reports the line the reader is positioned on.
func (r *RowReader) Line() int {
	return r.line
}

// scanState tracks the position inside the row being assembled.
type scanState struct {
	inQuotes   bool
	sawQuoted  bool
	column     int
	fieldStart int
}

func (r *RowReader) delims() (comma, quote byte) {
	comma, quote = r.Comma, r.Quote
	if comma == 0 {
		comma = ','
	}
	if quote == 0 {
		quote = '"'
	}
	return comma, quote
}

// fill refills the buffer. It reports done when EOF completes a pending
// row, and returns io.EOF when no row remains.
func (r *RowReader) fill(st *scanState) (bool, error) {
	if r.bufErr != nil {
		err := r.bufErr
		r.bufErr = nil
		if err != io.EOF {
			return false, err
		}
		r.finished = true
		if st.inQuotes {
			return false, &ParseError{Line: r.line, Column: st.column, Err: ErrUnterminatedQuote}
		}
		// A final row without a terminator.
		if len(r.fieldBounds) > 0 || len(r.data) > 0 || st.sawQuoted {
			r.endField(st)
			return true, nil
		}
		return false, io.EOF
	}

	n, err := r.src.Read(r.buf)
	if n > 0 {
		r.bufPos = 0
		r.bufLen = n
	}
	r.bufErr = err
	return false, nil
}

// consumePlain consumes unquoted bytes in r.buf[r.bufPos:limit] and reports
// whether a row terminator was seen.
func (r *RowReader) consumePlain(st *scanState, limit int) (bool, error) {
	comma, _ := r.delims()
	for r.bufPos < limit {
		data := r.buf[r.bufPos:limit]
		next := indexDelim(data, comma)
		if next < 0 {
			r.data = append(r.data, data...)
			r.bufPos = limit
			st.column += len(data)
			return false, nil
		}

		r.data = append(r.data, data[:next]...)
		r.bufPos += next + 1
		st.column += next

		switch data[next] {
		case comma:
			r.endField(st)
			st.column++
		case '\r':
			// CRLF is one terminator; a lone CR ends the row too.
			b, err := r.peekByte()
			if err == nil && b == '\n' {
				r.bufPos++
			} else if err != nil && err != io.EOF {
				return false, err
			}
			fallthrough
		case '\n':
			r.endField(st)
			r.line++
			st.column = 1
			return true, nil
		}
	}
	return false, nil
}

// indexDelim returns the index of the first comma, LF or CR in data, or -1.
func indexDelim(data []byte, comma byte) int {
	next := -1
	for _, d := range [...]byte{comma, '\n', '\r'} {
		if i := bytes.IndexByte(data, d); i >= 0 && (next < 0 || i < next) {
			next = i
		}
	}
	return next
}

// run counts the bytes from r.bufPos-1 up to the first byte matching stop.
func (r *RowReader) run(stop func(byte) bool) int {
	n := 1
	for _, c := range r.buf[r.bufPos:r.bufLen] {
		if stop(c) {
			break
		}
		n++
	}
	return n
}

// peekByte returns the next byte without consuming it, refilling as needed.
func (r *RowReader) peekByte() (byte, error) {
	for {
		if r.bufPos < r.bufLen {
			return r.buf[r.bufPos], nil
		}
		if r.bufErr != nil {
			return 0, r.bufErr
		}
		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.bufPos = 0
			r.bufLen = n
		}
		if err != nil {
			r.bufErr = err
			if n == 0 {
				return 0, err
			}
		}
	}
}

func (r *RowReader) endField(st *scanState) {
	r.fieldBounds = append(r.fieldBounds, st.fieldStart, len(r.data))
	st.fieldStart = len(r.data)
	st.sawQuoted = false
}

// buildRow maps fieldBounds onto the data buffer and checks the row width.
func (r *RowReader) buildRow() ([]string, error) {
	n := len(r.fieldBounds) / 2

	var s string
	if r.ReuseRecord {
		if len(r.data) > 0 {
			// Fields share the data buffer until the next Read.
			s = unsafe.String(unsafe.SliceData(r.data), len(r.data))
		}
		if cap(r.row) < n {
			r.row = make([]string, n)
		}
		r.row = r.row[:n]
	} else {
		s = string(r.data)
		r.row = make([]string, n)
	}
	for i := 0; i < n; i++ {
		r.row[i] = s[r.fieldBounds[2*i]:r.fieldBounds[2*i+1]]
	}

	switch {
	case r.FieldsPerRecord < 0:
	case r.FieldsPerRecord == 0:
		r.FieldsPerRecord = n
	case n != r.FieldsPerRecord:
		return r.row, &ParseError{Line: r.rowLine, Column: 1, Err: ErrFieldCount}
	}
	return r.row, nil
}
