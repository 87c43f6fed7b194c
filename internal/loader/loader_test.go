package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const requestTemplate = `{
  "InvoiceRequest": {
    "Header": {"MessageID": "m-%s", "DateTime": "2025-01-05T14:02:11"},
    "Invoice": {
      "TaxNumber": 12345678,
      "IssueDateTime": "%s",
      "NumberingStructure": "B",
      "InvoiceIdentifier": {"BusinessPremiseID": "670", "ElectronicDeviceID": "1", "InvoiceNumber": "%s"},
      "InvoiceAmount": 12.30,
      "PaymentAmount": 12.30,
      "TaxesPerSeller": [%s],
      "ProtectedID": "aabbccdd"
    }
  }
}`

func writeRequest(t *testing.T, dir, name, issuedAt, number, buckets string) {
	t.Helper()
	body := fmt.Sprintf(requestTemplate, name, issuedAt, number, buckets)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadRequests_FiltersAndSorts(t *testing.T) {
	dir := t.TempDir()

	// Broken, issued later.
	writeRequest(t, dir, "b.json", "2025-01-06T09:00:00", "101", `{}`)
	// Broken, issued earlier.
	writeRequest(t, dir, "a.json", "2025-01-05T14:02:11", "100", `{}, {"SellerTaxNumber": 57536163}`)
	// Already carries a seller tax number in every bucket: skipped.
	writeRequest(t, dir, "c.json", "2025-01-04T08:00:00", "99", `{"SellerTaxNumber": 57536163}`)
	// Non-JSON files and directories are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	requests, err := LoadRequests(dir)
	require.NoError(t, err)
	require.Len(t, requests, 2)

	assert.Equal(t, "100", requests[0].Dto.InvoiceRequest.Invoice.InvoiceIdentifier.InvoiceNumber)
	assert.Equal(t, "101", requests[1].Dto.InvoiceRequest.Invoice.InvoiceIdentifier.InvoiceNumber)
	assert.Equal(t, filepath.Join(dir, "a.json"), requests[0].FileName)
}

func TestLoadRequests_EmptyDirectory(t *testing.T) {
	requests, err := LoadRequests(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, requests)
}

func TestLoadRequests_MissingDirectory(t *testing.T) {
	_, err := LoadRequests(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLoadRequests_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o644))

	_, err := LoadRequests(dir)
	assert.Error(t, err)
}
