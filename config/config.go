package config

import (
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// CVE is the CVE scan configuration read from the optional config file.
type CVE struct {
	NistURL     string   `yaml:"nist_url"`
	StartYear   int      `yaml:"start_year"`
	IgnoredCVEs []string `yaml:"ignored_cves"`
}

// Load reads a YAML config file. An empty path yields the zero config.
func Load(fs afero.Fs, path string) (CVE, error) {
	var c CVE
	if path == "" {
		return c, nil
	}
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return c, xerrors.Errorf("unable to read config %s: %w", path, err)
	}
	if err = yaml.UnmarshalStrict(b, &c); err != nil {
		return c, xerrors.Errorf("unable to parse config %s: %w", path, err)
	}
	return c, nil
}

// Merge returns c with every option set in other applied over it.
func (c CVE) Merge(other CVE) CVE {
	if other.NistURL != "" {
		c.NistURL = other.NistURL
	}
	if other.StartYear != 0 {
		c.StartYear = other.StartYear
	}
	if other.IgnoredCVEs != nil {
		c.IgnoredCVEs = other.IgnoredCVEs
	}
	return c
}
