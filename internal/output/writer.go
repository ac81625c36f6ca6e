package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"data_digest/internal/domain"
)

const (
	KindRaw     = "raw"
	KindSummary = "summary"

	// TimestampLayout renders as YYYYMMDD_HHMMSS.
	TimestampLayout = "20060102_150405"
)

// WriteError reports a failure to create the directory or write the file.
type WriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Timestamp formats t for use in output file names.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// FilePath builds {dataFolder}/{prefix}{kind}_{timestamp}.json.
func FilePath(dataFolder, prefix, kind, timestamp string) string {
	return filepath.Join(dataFolder, fmt.Sprintf("%s%s_%s.json", prefix, kind, timestamp))
}

// Writer serialises payloads to JSON files.
type Writer struct {
	dirMode  os.FileMode
	fileMode os.FileMode
}

func NewWriter() *Writer {
	return &Writer{dirMode: 0o755, fileMode: 0o644}
}

// Write creates the parent directory if needed and writes payload as
// indented JSON. The payload goes to a temporary file in the same directory
// which replaces path only once it is complete.
func (w *Writer) Write(path string, payload any) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, w.dirMode); err != nil {
		return &WriteError{Path: path, Op: "create directory", Err: err}
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &WriteError{Path: path, Op: "open", Err: err}
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	buf := bufio.NewWriter(f)
	enc := json.NewEncoder(buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	if err := enc.Encode(payload); err != nil {
		return &WriteError{Path: path, Op: "encode", Err: err}
	}
	if err := buf.Flush(); err != nil {
		return &WriteError{Path: path, Op: "flush", Err: err}
	}
	if err := f.Chmod(w.fileMode); err != nil {
		return &WriteError{Path: path, Op: "chmod", Err: err}
	}
	if err := f.Close(); err != nil {
		return &WriteError{Path: path, Op: "close", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &WriteError{Path: path, Op: "rename", Err: err}
	}

	return nil
}

// ReadSummary loads a summary file written by Write.
func ReadSummary(path string) (domain.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("read summary: %w", err)
	}

	var s domain.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.Summary{}, fmt.Errorf("parse summary: %w", err)
	}
	return s, nil
}
