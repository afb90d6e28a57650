package dependency

import (
	"context"
	"fmt"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/aquasecurity/dependency-check/version"
)

// Metadata is the description of a dependency as found in the dependency
// locations file.
type Metadata struct {
	ProjectName string   `yaml:"project_name" json:"project_name"`
	ProjectDesc string   `yaml:"project_desc,omitempty" json:"project_desc,omitempty"`
	ProjectURL  string   `yaml:"project_url,omitempty" json:"project_url,omitempty"`
	Version     string   `yaml:"version" json:"version"`
	URLs        []string `yaml:"urls" json:"urls"`
	ReleaseDate string   `yaml:"release_date" json:"release_date"`
	CPE         string   `yaml:"cpe,omitempty" json:"cpe,omitempty"`
}

// Release is an upstream release, or the commit a dependency is pinned to
// when it is not tagged.
type Release struct {
	TagName         string    `json:"tag_name"`
	Tagged          bool      `json:"tagged"`
	Timestamp       time.Time `json:"timestamp"`
	CommitTimestamp time.Time `json:"commit_timestamp"`
}

// Version returns the parsed tag, or nil when the tag is not a version.
func (r *Release) Version() *goversion.Version {
	v, err := version.Parse(r.TagName)
	if err != nil {
		return nil
	}
	return v
}

// Date is the release day in the format used by the metadata.
func (r *Release) Date() string {
	return r.Timestamp.UTC().Format("2006-01-02")
}

// GithubClient looks up releases and commits of a GitHub repository.
type GithubClient interface {
	// Release returns the release for a tag, or the commit for a sha.
	Release(ctx context.Context, org, project, version string) (*Release, error)
	// HighestRelease returns the highest release published after since, or
	// nil when there is none.
	HighestRelease(ctx context.Context, org, project string, since time.Time) (*Release, error)
	CommitsSince(ctx context.Context, org, project string, since time.Time) (int, error)
}

// NotDependencyError is returned for dependencies that do not come from a
// GitHub repository.
type NotDependencyError struct {
	ID   string
	URLs []string
}

func (e *NotDependencyError) Error() string {
	return fmt.Sprintf("%s is not a GitHub repository\n%s", e.ID, strings.Join(e.URLs, "\n"))
}
