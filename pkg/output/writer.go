// Package output persists collected events as a JSON file.
package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Filesystem errors returned by Write.
var (
	ErrCreateDir = errors.New("create output directory")
	ErrWrite     = errors.New("write output file")
)

// FileName returns "{collection}_{eventType}s.json".
func FileName(collection, eventType string) string {
	if eventType == "" {
		eventType = "event"
	}
	return fmt.Sprintf("%s_%ss.json", collection, eventType)
}

// Path returns the output file path inside dir.
func Path(dir, collection, eventType string) string {
	return filepath.Join(dir, FileName(collection, eventType))
}

// Pretty indents raw with two spaces. Input that does not parse as JSON is
// returned unchanged.
func Pretty(raw string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		return raw
	}
	return buf.String()
}

// Write pretty-prints raw and stores it at Path(dir, collection, eventType),
// creating dir first. The file is written to a temporary name and renamed
// into place, so a failed write never leaves a partial file behind.
func Write(dir, collection, eventType, raw string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w %s: %v", ErrCreateDir, dir, err)
	}

	path := Path(dir, collection, eventType)

	tmp, err := os.CreateTemp(dir, "."+FileName(collection, eventType)+".*")
	if err != nil {
		return "", fmt.Errorf("%w %s: %v", ErrWrite, path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(Pretty(raw)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("%w %s: %v", ErrWrite, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w %s: %v", ErrWrite, path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w %s: %v", ErrWrite, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w %s: %v", ErrWrite, path, err)
	}

	log.Debug().
		Str("component", "output").
		Str("path", path).
		Int("bytes", len(raw)).
		Msg("Output file written")

	return path, nil
}
