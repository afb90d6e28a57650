package dependency

import (
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// Load reads the dependency locations file, a YAML (or JSON) mapping of
// dependency id to metadata, and returns the dependencies ordered by id.
func Load(fs afero.Fs, path string, github GithubClient) ([]*Dependency, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, xerrors.Errorf("unable to read dependencies %s: %w", path, err)
	}

	var locations map[string]Metadata
	if err = yaml.Unmarshal(b, &locations); err != nil {
		return nil, xerrors.Errorf("unable to parse dependencies %s: %w", path, err)
	}

	deps := make([]*Dependency, 0, len(locations))
	for id, metadata := range locations {
		deps = append(deps, New(id, metadata, github))
	}
	Sort(deps)
	return deps, nil
}
