package tabcsv

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
)

// callerDepth is the distance from warner.warn to the code calling Output.Write.
const callerDepth = 3

// Output writes Records as rows of a CSV file whose header follows the keys
// of the first non-empty Record. Later Records with other keys are handled
// according to the configured Mode. An Output is not safe for concurrent use.
type Output struct {
	mode         Mode
	headerLength int
	stream       io.Writer
	enc          *RowWriter
	logger       *slog.Logger
	metrics      *Metrics
	warnings     *warner

	fieldnames []string
	fieldset   map[string]struct{}
	closed     bool
}

// Option configures an Output.
type Option func(*Output)

// WithLogger sets the logger receiving warnings and debug messages. The
// default writes to stderr through a ConsoleHandler.
func WithLogger(l *slog.Logger) Option {
	return func(o *Output) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the collectors updated by the Output.
func WithMetrics(m *Metrics) Option {
	return func(o *Output) {
		o.metrics = m
	}
}

// NewOutput creates an Output writing to w. The Output owns w until Close,
// which closes w when it implements io.Closer.
//
// ModeFixedHeaderLength requires w to implement io.WriteSeeker.
// ModeCopyOnClose requires w to be an *os.File, or an io.ReadWriteSeeker
// that can also Truncate.
func NewOutput(w io.Writer, cfg Config, opts ...Option) (*Output, error) {
	if w == nil {
		return nil, errWriterNoTarget
	}
	if cfg.HeaderLength == 0 {
		cfg.HeaderLength = DefaultHeaderLength
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case ModeFixedHeaderLength:
		if _, ok := w.(io.WriteSeeker); !ok {
			return nil, ErrSeekUnsupported
		}
	case ModeCopyOnClose:
		if !canRewrite(w) {
			return nil, ErrRewriteUnsupported
		}
	}

	o := &Output{
		mode:         cfg.Mode,
		headerLength: cfg.HeaderLength,
		stream:       w,
		enc:          NewRowWriter(w),
		fieldset:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(NewConsoleHandler(os.Stderr, &ConsoleOptions{NoColor: cfg.NoColor}))
	}
	o.warnings = newWarner(o.logger)
	o.warnings.metrics = o.metrics
	o.warnings.disabled = cfg.DisableWarnings
	return o, nil
}

// Create truncates or creates the file at path and returns an Output writing
// to it. An empty path falls back to cfg.Path.
func Create(path string, cfg Config, opts ...Option) (*Output, error) {
	if path == "" {
		path = cfg.Path
	}
	if path == "" {
		return nil, fmt.Errorf("%w: output path is required", ErrInvalidConfig)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	// O_APPEND would defeat the seeks used to patch the header.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	o, err := NewOutput(f, cfg, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return o, nil
}

// Accepts reports whether Write accepts data.
func (o *Output) Accepts(data any) bool {
	rec, ok := data.(Record)
	return ok && !isNil(rec)
}

// isNil reports whether rec is nil or a nil pointer behind the interface.
func isNil(rec Record) bool {
	if rec == nil {
		return true
	}
	v := reflect.ValueOf(rec)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// Write appends data as one row. data must be a Record; any other value
// returns an error wrapping ErrUnacceptableType and writes nothing.
//
// Keys of data that end up in the schema are marked on data. Keys the
// Output ignored are left unmarked.
func (o *Output) Write(data any) error {
	if o.closed {
		return ErrClosed
	}
	rec, ok := data.(Record)
	if !ok || isNil(rec) {
		return fmt.Errorf("%w: %T", ErrUnacceptableType, data)
	}
	return o.writeRecord(rec)
}

func (o *Output) writeRecord(rec Record) error {
	keys, values := collect(rec.Fields())
	if len(o.fieldnames) == 0 {
		if len(keys) == 0 {
			return nil
		}
		if err := o.commit(keys); err != nil {
			return err
		}
	} else if !o.sameKeys(keys) {
		o.warnings.warn(o.inconsistencyMessage(keys), callerDepth)
		if o.mode != ModeNone {
			if err := o.extend(keys); err != nil {
				return err
			}
		}
	}

	row := make([]string, len(o.fieldnames))
	for i, name := range o.fieldnames {
		if v, ok := values[name]; ok {
			row[i], _ = FormatValue(v)
		}
	}
	if err := o.enc.Write(row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	o.metrics.rowWritten()

	for _, k := range keys {
		if _, ok := o.fieldset[k]; ok {
			rec.Mark(k)
		}
	}
	return nil
}

// commit fixes the schema to keys and writes the header.
func (o *Output) commit(keys []string) error {
	o.addFields(keys)

	var err error
	if o.mode == ModeFixedHeaderLength {
		err = o.enc.WriteLine(o.encodeHeader())
	} else {
		err = o.enc.Write(o.fieldnames)
	}
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	o.logger.Debug("Schema committed",
		"fields", len(o.fieldnames),
		"mode", o.mode.String())
	return nil
}

// extend appends the keys missing from the schema and runs the mode's header hook.
func (o *Output) extend(keys []string) error {
	var added []string
	for _, k := range keys {
		if _, ok := o.fieldset[k]; !ok {
			added = append(added, k)
		}
	}
	if len(added) == 0 {
		return nil
	}
	prev := len(o.fieldnames)
	o.addFields(added)

	o.logger.Debug("Schema extended",
		"added", added,
		"fields", len(o.fieldnames),
		"mode", o.mode.String())

	switch o.mode {
	case ModeFixedHeaderLength:
		if err := o.patchHeader(); err != nil {
			// The next record carrying these keys retries the patch.
			o.dropFields(prev)
			return err
		}
	case ModeCopyOnClose:
		// Rows are rectangularized by Close.
	}
	return nil
}

func (o *Output) addFields(keys []string) {
	for _, k := range keys {
		o.fieldset[k] = struct{}{}
		o.fieldnames = append(o.fieldnames, k)
	}
	o.metrics.schemaSize(len(o.fieldnames))
}

// dropFields shrinks the schema back to its first n fields.
func (o *Output) dropFields(n int) {
	for _, k := range o.fieldnames[n:] {
		delete(o.fieldset, k)
	}
	o.fieldnames = o.fieldnames[:n]
	o.metrics.schemaSize(n)
}

func (o *Output) sameKeys(keys []string) bool {
	if len(keys) != len(o.fieldset) {
		return false
	}
	for _, k := range keys {
		if _, ok := o.fieldset[k]; !ok {
			return false
		}
	}
	return true
}

func (o *Output) inconsistencyMessage(keys []string) string {
	have := append([]string(nil), o.fieldnames...)
	got := append([]string(nil), keys...)
	sort.Strings(have)
	sort.Strings(got)
	return fmt.Sprintf("Inconsistent record keys detected. Output keys: %q. Record keys: %q. "+
		"Did you change key sets after the first write?", have, got)
}

// Flush pushes buffered rows to the underlying stream.
func (o *Output) Flush() error {
	if o.closed {
		return ErrClosed
	}
	return o.enc.Flush()
}

// Close flushes buffered rows, rewrites the file in ModeCopyOnClose, and
// closes the stream. The stream is closed even when an earlier step fails.
// Calling Close more than once returns ErrClosed.
func (o *Output) Close() error {
	if o.closed {
		return ErrClosed
	}
	o.closed = true

	flushErr := o.enc.Flush()
	if flushErr != nil {
		flushErr = fmt.Errorf("flush: %w", flushErr)
	}

	rewrite := o.mode == ModeCopyOnClose && len(o.fieldnames) > 0 && flushErr == nil
	f, isFile := o.stream.(*os.File)

	var rewriteErr error
	if rewrite && !isFile {
		rewriteErr = o.rewriteInPlace(o.stream.(rewriteTarget))
	}

	var closeErr error
	if c, ok := o.stream.(io.Closer); ok {
		if err := c.Close(); err != nil {
			closeErr = fmt.Errorf("close output: %w", err)
		}
	}

	if rewrite && isFile && closeErr == nil {
		rewriteErr = o.rewriteFile(f.Name())
	}
	if rewriteErr != nil {
		rewriteErr = fmt.Errorf("rewrite: %w", rewriteErr)
	}

	return errors.Join(flushErr, rewriteErr, closeErr)
}

// DisableWarnings permanently suppresses the warning channel.
func (o *Output) DisableWarnings() {
	o.warnings.disabled = true
}

// Fieldnames returns a copy of the current schema.
func (o *Output) Fieldnames() []string {
	return append([]string(nil), o.fieldnames...)
}

// Warnings returns every distinct warning text raised so far, including
// those suppressed by DisableWarnings, sorted.
func (o *Output) Warnings() []string {
	return o.warnings.messages()
}

// Mode reports the reconciliation mode chosen at construction.
func (o *Output) Mode() Mode {
	return o.mode
}

// collect returns the field keys in order of first appearance and their values.
func collect(fields []Field) ([]string, map[string]any) {
	keys := make([]string, 0, len(fields))
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		if _, dup := values[f.Key]; dup {
			continue
		}
		keys = append(keys, f.Key)
		values[f.Key] = f.Value
	}
	return keys, values
}
