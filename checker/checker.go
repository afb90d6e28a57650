package checker

import (
	"context"
	"iter"
	"log"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/dependency-check/concurrent"
	"github.com/aquasecurity/dependency-check/dependency"
	"github.com/aquasecurity/dependency-check/memo"
	"github.com/aquasecurity/dependency-check/nvd"
	"github.com/aquasecurity/dependency-check/utils"
)

const concurrency = 5

var findingsSequence = memo.NewSequence("findings", "Check results, one per dependency",
	func(ctx context.Context, c *Checker) iter.Seq2[Finding, error] {
		return c.check(ctx)
	}, memo.WithMode(memo.Materialized))

// Finding is the outcome of checking a single dependency.
type Finding struct {
	ID                  string              `json:"id"`
	Version             string              `json:"version"`
	CVEs                []*nvd.CVE          `json:"cves,omitempty"`
	NewerRelease        *dependency.Release `json:"newer_release,omitempty"`
	RecentCommits       int                 `json:"recent_commits,omitempty"`
	ReleaseDateMismatch bool                `json:"release_date_mismatch,omitempty"`
	Warnings            []string            `json:"warnings,omitempty"`
}

type Report struct {
	Dependencies []Finding `json:"dependencies"`
}

// Vulnerable returns the findings with at least one CVE.
func (r Report) Vulnerable() []Finding {
	return lo.Filter(r.Dependencies, func(f Finding, _ int) bool {
		return len(f.CVEs) > 0
	})
}

func (r Report) Write(fs utils.Fs, path string) error {
	if err := fs.WriteJSON(path, r); err != nil {
		return xerrors.Errorf("unable to write report: %w", err)
	}
	return nil
}

type options struct {
	releases bool
	limit    int
}

type Option func(*options)

// WithReleases enables the upstream release checks, which need a GitHub
// client on the dependencies.
func WithReleases(enabled bool) Option {
	return func(opts *options) {
		opts.releases = enabled
	}
}

func WithLimit(n int) Option {
	return func(opts *options) {
		opts.limit = n
	}
}

type Checker struct {
	memo.Cache
	*options

	deps []*dependency.Dependency
	feed *nvd.Feed
}

func New(deps []*dependency.Dependency, feed *nvd.Feed, opts ...Option) *Checker {
	o := &options{limit: concurrency}
	for _, opt := range opts {
		opt(o)
	}
	return &Checker{
		options: o,
		deps:    deps,
		feed:    feed,
	}
}

// Findings yields a finding per dependency as checks complete. The results
// of the first complete run are kept and replayed.
func (c *Checker) Findings(ctx context.Context) iter.Seq2[Finding, error] {
	return findingsSequence.All(ctx, c)
}

// Run checks every dependency and returns the findings ordered by id.
func (c *Checker) Run(ctx context.Context) (Report, error) {
	var report Report
	for finding, err := range c.Findings(ctx) {
		if err != nil {
			return Report{}, err
		}
		report.Dependencies = append(report.Dependencies, finding)
	}
	slices.SortFunc(report.Dependencies, func(a, b Finding) int {
		return strings.Compare(a.ID, b.ID)
	})
	log.Printf("Checked %d dependencies, %d with CVEs", len(report.Dependencies), len(report.Vulnerable()))
	return report, nil
}

func (c *Checker) check(ctx context.Context) iter.Seq2[Finding, error] {
	return func(yield func(Finding, error) bool) {
		// one download for all dependencies
		if _, err := c.feed.Data(ctx); err != nil {
			yield(Finding{}, err)
			return
		}
		ops := lo.Map(c.deps, func(dep *dependency.Dependency, _ int) concurrent.Op[Finding] {
			return func(ctx context.Context) (Finding, error) {
				return c.checkDependency(ctx, dep)
			}
		})
		for finding, err := range concurrent.Complete(ctx, ops, concurrent.WithLimit(c.limit)) {
			if !yield(finding, err) || err != nil {
				return
			}
		}
	}
}

func (c *Checker) checkDependency(ctx context.Context, dep *dependency.Dependency) (Finding, error) {
	finding := Finding{
		ID:      dep.ID(),
		Version: dep.Version(),
	}
	cves, err := dep.CVEs(ctx, c.feed)
	var invalid *nvd.InvalidCPEError
	switch {
	case xerrors.As(err, &invalid):
		finding.Warnings = append(finding.Warnings, invalid.Error())
	case err != nil:
		return Finding{}, xerrors.Errorf("unable to check CVEs of %s: %w", dep, err)
	}
	finding.CVEs = cves

	if !c.releases {
		return finding, nil
	}
	if _, err = dep.URLComponents(); err != nil {
		finding.Warnings = append(finding.Warnings, err.Error())
		return finding, nil
	}
	if finding.NewerRelease, err = dep.NewerRelease(ctx); err != nil {
		finding.Warnings = append(finding.Warnings, err.Error())
	}
	if has, err := dep.HasRecentCommits(ctx); err != nil {
		finding.Warnings = append(finding.Warnings, err.Error())
	} else if has {
		// cached by HasRecentCommits
		finding.RecentCommits, _ = dep.RecentCommits(ctx)
	}
	if finding.ReleaseDateMismatch, err = dep.ReleaseDateMismatch(ctx); err != nil {
		finding.Warnings = append(finding.Warnings, err.Error())
	}
	return finding, nil
}
