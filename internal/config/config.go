// Package config loads the repairer configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/janbehro/eDavkiRepairer/internal/fiscal"
)

// PasswordKeyEnv names the environment variable carrying the shared secret
// that the POS encrypted the certificate password under. Kept out of the
// config file on purpose.
const PasswordKeyEnv = "EDAVKI_PASSWORD_KEY"

const dateLayout = "2006-01-02"

// Duration decodes YAML values like "60s" or "2m". yaml.v3 has no native
// handling for time.Duration strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full process configuration.
type Config struct {
	// BaseURL of the fiscalization endpoint.
	BaseURL string `yaml:"base_url"`
	// RequestsDir holds the extracted original request files.
	RequestsDir string `yaml:"requests_dir"`
	// PosDBFile is the POS SQLite database file.
	PosDBFile string `yaml:"pos_db_file"`
	// PosDir is the POS application directory holding the certificate store.
	PosDir string `yaml:"pos_dir"`
	// ResultPath is the archive root for run results.
	ResultPath string `yaml:"result_path"`
	// From/To bound the registration date range, format 2006-01-02.
	From string `yaml:"from"`
	To   string `yaml:"to"`
	// SellerTaxNumber is written into every repaired tax bucket. Zero means
	// no seller tax number correction applies.
	SellerTaxNumber int64 `yaml:"seller_tax_number"`
	// StagingOverride replaces the invoice tax number with the one from the
	// certificate's organizational unit and the business premise id with
	// StagingBusinessPremiseID. Test-environment certificates carry a
	// different tax number than production data.
	StagingOverride          bool   `yaml:"staging_override"`
	StagingBusinessPremiseID string `yaml:"staging_business_premise_id"`
	// Timeout per endpoint request.
	Timeout Duration `yaml:"timeout"`
	// LogLevel for diagnostics (zap level string).
	LogLevel string `yaml:"log_level"`

	// PasswordKey comes from the environment, never the file.
	PasswordKey string `yaml:"-"`
}

// Load reads the YAML config file at path, applies defaults, and pulls
// secrets from the environment.
func Load(path string) (Config, error) {
	cfg := Config{
		BaseURL:  "https://blagajne-test.fu.gov.si:9002",
		Timeout:  Duration(60 * time.Second),
		LogLevel: "info",
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fiscal.ErrConfiguration(fmt.Sprintf("could not read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fiscal.ErrConfiguration(fmt.Sprintf("could not parse config file %s", path), err)
	}

	cfg.PasswordKey = os.Getenv(PasswordKeyEnv)
	return cfg, nil
}

// Validate reports the first fatal misconfiguration. Called before anything
// touches the network or the database.
func (c Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fiscal.ErrConfiguration("base_url is required", nil)
	case c.RequestsDir == "":
		return fiscal.ErrConfiguration("requests_dir is required", nil)
	case c.PosDBFile == "":
		return fiscal.ErrConfiguration("pos_db_file is required", nil)
	case c.PosDir == "":
		return fiscal.ErrConfiguration("pos_dir is required", nil)
	case c.ResultPath == "":
		return fiscal.ErrConfiguration("result_path is required", nil)
	case c.PasswordKey == "":
		return fiscal.ErrConfiguration(PasswordKeyEnv+" is not set", nil)
	case c.StagingOverride && c.StagingBusinessPremiseID == "":
		return fiscal.ErrConfiguration("staging_business_premise_id is required with staging_override", nil)
	}
	if _, err := c.FromTime(); err != nil {
		return err
	}
	if _, err := c.ToTime(); err != nil {
		return err
	}
	return nil
}

// FromTime parses the range start.
func (c Config) FromTime() (time.Time, error) {
	return c.parseDate(c.From, "from")
}

// ToTime parses the range end.
func (c Config) ToTime() (time.Time, error) {
	return c.parseDate(c.To, "to")
}

func (c Config) parseDate(value, name string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fiscal.ErrConfiguration(fmt.Sprintf("%s must be a date in the form %s", name, dateLayout), err)
	}
	return t, nil
}
