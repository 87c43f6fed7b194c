// Package extract pulls embedded invoice request JSON out of POS log files.
// It is a standalone recovery utility, not part of the repair pipeline: the
// POS logs every fiscal request it issues, and when the original request
// files are gone the logs are the only remaining source.
package extract

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Log lines quote the request JSON with escaped quotes; the lazy match stops
// at the first escaped double brace and the closing brace of the envelope is
// re-appended after unescaping.
var requestPattern = regexp.MustCompile(`\{\\"InvoiceRequest\\".*?\}\}`)

// Run walks every *.log file under root, extracts each embedded invoice
// request, and writes it pretty-printed to
// outRoot/<premise>-<device>/<number>.json. Returns the number of requests
// written. Lines that fail to decode are logged and skipped; a half-readable
// log is still worth mining.
func Run(root, outRoot string, log *zap.Logger) (int, error) {
	if err := os.MkdirAll(outRoot, 0o755); err != nil {
		return 0, err
	}

	written := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".log") {
			return nil
		}
		log.Info("processing log file", zap.String("path", path))
		n, err := extractFile(path, outRoot, log)
		written += n
		return err
	})
	return written, err
}

func extractFile(path, outRoot string, log *zap.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	written := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if !strings.Contains(line, "InvoiceRequest") {
			continue
		}
		match := requestPattern.FindString(line)
		if match == "" {
			continue
		}
		if err := writeRequest(unescape(match), outRoot); err != nil {
			log.Warn("skipping unreadable request",
				zap.String("file", path),
				zap.Int("line", lineNumber),
				zap.Error(err))
			continue
		}
		written++
	}
	if err := scanner.Err(); err != nil {
		return written, fmt.Errorf("scan %s: %w", path, err)
	}
	return written, nil
}

func unescape(raw string) string {
	clean := strings.ReplaceAll(raw, `\"`, `"`)
	clean = strings.ReplaceAll(clean, `\\`, `\`)
	return clean + "}"
}

func writeRequest(jsonText, outRoot string) error {
	if !gjson.Valid(jsonText) {
		return fmt.Errorf("extracted text is not valid JSON")
	}
	id := gjson.Get(jsonText, "InvoiceRequest.Invoice.InvoiceIdentifier")
	premise := id.Get("BusinessPremiseID").String()
	device := id.Get("ElectronicDeviceID").String()
	number := id.Get("InvoiceNumber").String()
	if premise == "" || device == "" || number == "" {
		return fmt.Errorf("invoice identifier incomplete")
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, []byte(jsonText), "", "  "); err != nil {
		return err
	}

	dir := filepath.Join(outRoot, premise+"-"+device)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, number+".json"), pretty.Bytes(), 0o644)
}
