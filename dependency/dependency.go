package dependency

import (
	"context"
	"strings"

	"github.com/araddon/dateparse"
	goversion "github.com/hashicorp/go-version"
	"github.com/samber/lo"
	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/dependency-check/memo"
	"github.com/aquasecurity/dependency-check/nvd"
	"github.com/aquasecurity/dependency-check/version"
)

const githubPrefix = "https://github.com/"

var ErrNoGithubClient = xerrors.New("no GitHub client configured")

var (
	releaseProperty = memo.NewProperty("release", "Release the dependency is pinned to",
		func(ctx context.Context, d *Dependency) (*Release, error) {
			return d.release(ctx)
		}, memo.Cached())

	commitsSinceCurrentProperty = memo.NewProperty("commits_since_current", "Commits to the default branch since the pinned commit",
		func(ctx context.Context, d *Dependency) (int, error) {
			return d.commitsSinceCurrent(ctx)
		}, memo.Cached())

	recentCommitsProperty = memo.NewProperty("recent_commits", "Commits since the pinned commit of an untagged dependency",
		func(ctx context.Context, d *Dependency) (int, error) {
			return d.recentCommits(ctx)
		}, memo.Cached())

	newerReleaseProperty = memo.NewProperty("newer_release", "Highest release newer than the pinned one",
		func(ctx context.Context, d *Dependency) (*Release, error) {
			return d.newerRelease(ctx)
		}, memo.Cached())

	hasRecentCommitsProperty = memo.NewProperty("has_recent_commits", "Whether an untagged dependency is behind",
		func(ctx context.Context, d *Dependency) (bool, error) {
			commits, err := d.RecentCommits(ctx)
			if err != nil {
				return false, err
			}
			return commits > 1, nil
		})

	releaseDateMismatchProperty = memo.NewProperty("release_date_mismatch", "Whether the metadata release date differs from upstream",
		func(ctx context.Context, d *Dependency) (bool, error) {
			return d.releaseDateMismatch(ctx)
		})
)

// Dependency is a third party dependency with its metadata. Upstream lookups
// go through the GitHub client and are cached per dependency.
type Dependency struct {
	memo.Cache

	id       string
	metadata Metadata
	github   GithubClient
}

func New(id string, metadata Metadata, github GithubClient) *Dependency {
	return &Dependency{
		id:       id,
		metadata: metadata,
		github:   github,
	}
}

// Compare orders dependencies by id.
func Compare(a, b *Dependency) int {
	return strings.Compare(a.id, b.id)
}

func (d *Dependency) ID() string {
	return d.id
}

func (d *Dependency) Metadata() Metadata {
	return d.metadata
}

func (d *Dependency) String() string {
	return d.id + "@" + d.Version()
}

func (d *Dependency) Version() string {
	return d.metadata.Version
}

func (d *Dependency) URLs() []string {
	return d.metadata.URLs
}

func (d *Dependency) ReleaseDate() string {
	return d.metadata.ReleaseDate
}

func (d *Dependency) CPE() string {
	return d.metadata.CPE
}

// VendorNormalized is the vendor of the dependency CPE as CVEs are indexed,
// empty without a valid CPE.
func (d *Dependency) VendorNormalized() string {
	c, err := nvd.ParseCPE(d.CPE())
	if err != nil {
		return ""
	}
	return c.VendorNormalized()
}

// ReleaseVersion is the parsed version, or nil when it is not a version
// (e.g. a commit sha).
func (d *Dependency) ReleaseVersion() *goversion.Version {
	v, err := version.Parse(d.Version())
	if err != nil {
		return nil
	}
	return v
}

// GithubURL returns the first GitHub URL of the dependency, if any.
func (d *Dependency) GithubURL() string {
	url, _ := lo.Find(d.URLs(), func(url string) bool {
		return strings.HasPrefix(url, githubPrefix)
	})
	return url
}

func (d *Dependency) URLComponents() ([]string, error) {
	url := d.GithubURL()
	if url == "" {
		return nil, &NotDependencyError{ID: d.id, URLs: d.URLs()}
	}
	return strings.Split(url, "/"), nil
}

func (d *Dependency) Organization() (string, error) {
	return d.component(3)
}

func (d *Dependency) Project() (string, error) {
	return d.component(4)
}

// GithubVersion is the tag or commit the GitHub URL points at.
func (d *Dependency) GithubVersion() (string, error) {
	components, err := d.URLComponents()
	if err != nil {
		return "", err
	}
	if len(components) > 5 && components[5] == "archive" {
		last := components[len(components)-1]
		if strings.HasSuffix(last, ".tar.gz") {
			return strings.TrimSuffix(last, ".tar.gz"), nil
		}
		return strings.TrimSuffix(last, ".zip"), nil
	}
	return d.component(7)
}

// GithubVersionName is the tag, or the short sha of an untagged dependency.
func (d *Dependency) GithubVersionName(ctx context.Context) (string, error) {
	v, err := d.GithubVersion()
	if err != nil {
		return "", err
	}
	release, err := d.Release(ctx)
	if err != nil {
		return "", err
	}
	if release.Tagged || len(v) <= 7 {
		return v, nil
	}
	return v[:7], nil
}

func (d *Dependency) Release(ctx context.Context) (*Release, error) {
	return releaseProperty.Get(ctx, d)
}

func (d *Dependency) CommitsSinceCurrent(ctx context.Context) (int, error) {
	return commitsSinceCurrentProperty.Get(ctx, d)
}

// RecentCommits is zero for tagged dependencies.
func (d *Dependency) RecentCommits(ctx context.Context) (int, error) {
	return recentCommitsProperty.Get(ctx, d)
}

func (d *Dependency) HasRecentCommits(ctx context.Context) (bool, error) {
	return hasRecentCommitsProperty.Get(ctx, d)
}

// NewerRelease returns nil when the pinned release is the highest one.
func (d *Dependency) NewerRelease(ctx context.Context) (*Release, error) {
	return newerReleaseProperty.Get(ctx, d)
}

func (d *Dependency) ReleaseDateMismatch(ctx context.Context) (bool, error) {
	return releaseDateMismatchProperty.Get(ctx, d)
}

// CVEs returns the CVEs of the feed applicable to the dependency version.
func (d *Dependency) CVEs(ctx context.Context, feed *nvd.Feed) ([]*nvd.CVE, error) {
	return feed.Matches(ctx, d)
}

func (d *Dependency) component(i int) (string, error) {
	components, err := d.URLComponents()
	if err != nil {
		return "", err
	}
	if i >= len(components) {
		return "", xerrors.Errorf("unexpected GitHub URL for %s: %s", d.id, d.GithubURL())
	}
	return components[i], nil
}

func (d *Dependency) repo() (string, string, error) {
	if d.github == nil {
		return "", "", ErrNoGithubClient
	}
	org, err := d.Organization()
	if err != nil {
		return "", "", err
	}
	project, err := d.Project()
	if err != nil {
		return "", "", err
	}
	return org, project, nil
}

func (d *Dependency) release(ctx context.Context) (*Release, error) {
	org, project, err := d.repo()
	if err != nil {
		return nil, err
	}
	v, err := d.GithubVersion()
	if err != nil {
		return nil, err
	}
	release, err := d.github.Release(ctx, org, project, v)
	if err != nil {
		return nil, xerrors.Errorf("unable to get release %s of %s/%s: %w", v, org, project, err)
	}
	return release, nil
}

func (d *Dependency) commitsSinceCurrent(ctx context.Context) (int, error) {
	org, project, err := d.repo()
	if err != nil {
		return 0, err
	}
	release, err := d.Release(ctx)
	if err != nil {
		return 0, err
	}
	count, err := d.github.CommitsSince(ctx, org, project, release.CommitTimestamp)
	if err != nil {
		return 0, xerrors.Errorf("unable to count commits of %s/%s: %w", org, project, err)
	}
	// the pinned commit itself is included
	if count > 0 {
		count--
	}
	return count, nil
}

func (d *Dependency) recentCommits(ctx context.Context) (int, error) {
	release, err := d.Release(ctx)
	if err != nil {
		return 0, err
	}
	if release.Tagged {
		return 0, nil
	}
	return d.CommitsSinceCurrent(ctx)
}

func (d *Dependency) newerRelease(ctx context.Context) (*Release, error) {
	org, project, err := d.repo()
	if err != nil {
		return nil, err
	}
	release, err := d.Release(ctx)
	if err != nil {
		return nil, err
	}
	highest, err := d.github.HighestRelease(ctx, org, project, release.Timestamp)
	if err != nil {
		return nil, xerrors.Errorf("unable to get releases of %s/%s: %w", org, project, err)
	}
	if highest == nil || sameVersion(highest, release) {
		return nil, nil
	}
	return highest, nil
}

func (d *Dependency) releaseDateMismatch(ctx context.Context) (bool, error) {
	release, err := d.Release(ctx)
	if err != nil {
		return false, err
	}
	date, err := dateparse.ParseAny(d.ReleaseDate())
	if err != nil {
		return true, nil
	}
	return date.Format("2006-01-02") != release.Date(), nil
}

func sameVersion(a, b *Release) bool {
	va, vb := a.Version(), b.Version()
	if va != nil && vb != nil {
		return va.Equal(vb)
	}
	return a.TagName == b.TagName
}

// Sort orders dependencies by id in place.
func Sort(deps []*Dependency) {
	slices.SortFunc(deps, Compare)
}

var _ nvd.Tracked = (*Dependency)(nil)
