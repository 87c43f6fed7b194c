// Package archive places repaired requests and authority responses into the
// result directory tree.
//
// Layout:
//
//	<root>/success/<premise-device-number>/repaired.json
//	<root>/success/<premise-device-number>/repairedResponse.json
//	<root>/success/<premise-device-number>/original.json
//	<root>/failed/<original file name>
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	successDir = "success"
	failedDir  = "failed"
)

// Archive writes run results under a fixed root directory.
type Archive struct {
	root string
}

// New creates an Archive rooted at root.
func New(root string) *Archive {
	return &Archive{root: root}
}

// Success records a fiscalized request: the repaired request JSON, the raw
// verified response payload, and, when the request originated from a file,
// the untouched original moved alongside as original.json. receiptID is the
// reference-invoice identifier (premise-device-number).
func (a *Archive) Success(receiptID, originalFile string, repaired, response []byte) error {
	dir := filepath.Join(a.root, successDir, receiptID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "repaired.json"), repaired, 0o644); err != nil {
		return fmt.Errorf("write repaired request: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "repairedResponse.json"), response, 0o644); err != nil {
		return fmt.Errorf("write response payload: %w", err)
	}
	if originalFile != "" {
		if err := moveFile(originalFile, filepath.Join(dir, "original.json")); err != nil {
			return fmt.Errorf("move original request: %w", err)
		}
	}
	return nil
}

// Failure moves a rejected request's original file into the failed
// directory. Requests synthesized from the POS database have no file and are
// tracked by transaction id instead.
func (a *Archive) Failure(originalFile string) error {
	dir := filepath.Join(a.root, failedDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create failed directory: %w", err)
	}
	if err := moveFile(originalFile, filepath.Join(dir, filepath.Base(originalFile))); err != nil {
		return fmt.Errorf("move failed request: %w", err)
	}
	return nil
}

// moveFile renames src to dst, falling back to copy+remove when the result
// tree sits on a different filesystem than the requests directory.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
