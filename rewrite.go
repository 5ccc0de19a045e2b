package tabcsv

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// rewriteTarget is a non-file stream that copy-on-close mode can rewrite in place.
type rewriteTarget interface {
	io.ReadWriteSeeker
	Truncate(size int64) error
}

func canRewrite(w io.Writer) bool {
	if _, ok := w.(*os.File); ok {
		return true
	}
	_, ok := w.(rewriteTarget)
	return ok
}

// copyRows reads the file written so far from src and writes it to dst with
// the final schema as header and exactly one value per field in every row.
// Rows were written while the schema only grew by appending, so a value's
// position in its row is its position in the final schema.
func (o *Output) copyRows(dst *RowWriter, src io.Reader) error {
	rr := NewRowReader(src)
	if _, err := rr.Read(); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("read header: %w", err)
	}
	if err := dst.Write(o.fieldnames); err != nil {
		return err
	}

	row := make([]string, len(o.fieldnames))
	for {
		fields, err := rr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}
		for i := range row {
			row[i] = ""
			if i < len(fields) {
				row[i] = fields[i]
			}
		}
		if err := dst.Write(row); err != nil {
			return err
		}
	}
	return dst.Flush()
}

// rewriteFile rectangularizes the closed file at path through a temporary
// file in the same directory that is renamed over the original.
func (o *Output) rewriteFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = src.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := o.copyRows(NewRowWriter(tmp), io.LimitReader(src, o.enc.Offset())); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}

	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, info.Mode())
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", path, err)
	}

	o.metrics.rewritten()
	o.logger.Debug("Output rewritten",
		"path", path,
		"fields", len(o.fieldnames))
	return nil
}

// rewriteInPlace rectangularizes rw, buffering the new content in memory.
func (o *Output) rewriteInPlace(rw rewriteTarget) error {
	if _, err := rw.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek to start: %w", err)
	}
	var buf bytes.Buffer
	// Bytes past what this Output wrote are not part of the table.
	if err := o.copyRows(NewRowWriter(&buf), io.LimitReader(rw, o.enc.Offset())); err != nil {
		return err
	}

	if _, err := rw.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek to start: %w", err)
	}
	n, err := buf.WriteTo(rw)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	if err := rw.Truncate(n); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}

	o.metrics.rewritten()
	o.logger.Debug("Output rewritten in place",
		"bytes", n,
		"fields", len(o.fieldnames))
	return nil
}
