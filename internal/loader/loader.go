// Package loader reads the extracted original invoice requests from disk.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/janbehro/eDavkiRepairer/internal/model"
	"github.com/janbehro/eDavkiRepairer/internal/repair"
)

// LoadRequests reads every *.json file in dir, keeps the requests that are
// actually broken (at least one tax bucket without a seller tax number), and
// returns them ordered by issue time, which is the order numbers will be
// assigned in.
func LoadRequests(dir string) ([]*repair.Request, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read requests directory %s: %w", dir, err)
	}

	var requests []*repair.Request
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read request %s: %w", path, err)
		}
		var dto model.InvoiceRequestDto
		if err := json.Unmarshal(data, &dto); err != nil {
			return nil, fmt.Errorf("decode request %s: %w", path, err)
		}
		if !missingSellerTaxNumber(dto) {
			continue
		}
		requests = append(requests, &repair.Request{FileName: path, Dto: &dto})
	}

	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].Dto.InvoiceRequest.Invoice.IssueDateTime.
			Before(requests[j].Dto.InvoiceRequest.Invoice.IssueDateTime.Time)
	})
	return requests, nil
}

func missingSellerTaxNumber(dto model.InvoiceRequestDto) bool {
	for _, bucket := range dto.InvoiceRequest.Invoice.TaxesPerSeller {
		if bucket.SellerTaxNumber == nil {
			return true
		}
	}
	return false
}
