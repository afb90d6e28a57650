package github

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	githubql "github.com/shurcooL/githubv4"
	"github.com/shurcooL/graphql"
	"golang.org/x/oauth2"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/dependency-check/dependency"
	"github.com/aquasecurity/dependency-check/utils"
	"github.com/aquasecurity/dependency-check/version"
)

const (
	retry           = 5
	maxResponseSize = 100
)

type Querier interface {
	Query(ctx context.Context, q interface{}, variables map[string]interface{}) error
}

type options struct {
	retry int
	wait  func(i int) time.Duration
}

type Option func(*options)

func WithRetry(n int) Option {
	return func(opts *options) {
		opts.retry = n
	}
}

// Client implements dependency.GithubClient over the GraphQL API.
type Client struct {
	querier Querier
	*options
}

func NewClient(querier Querier, opts ...Option) *Client {
	o := &options{
		retry: retry,
		wait:  utils.Wait,
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Client{
		querier: querier,
		options: o,
	}
}

// NewHTTPClient returns a client authenticating with token, unauthenticated
// when token is empty.
func NewHTTPClient(ctx context.Context, token string) *http.Client {
	if token == "" {
		return http.DefaultClient
	}
	src := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	return oauth2.NewClient(ctx, src)
}

func (c *Client) Release(ctx context.Context, org, project, v string) (*dependency.Release, error) {
	var q ReleaseQuery
	variables := repoVariables(org, project)
	variables["tag"] = githubql.String(v)
	if err := c.query(ctx, &q, variables); err != nil {
		return nil, xerrors.Errorf("release query error: %w", err)
	}
	if r := q.Repository.Release; r != nil {
		return &dependency.Release{
			TagName:         v,
			Tagged:          true,
			Timestamp:       r.PublishedAt.UTC(),
			CommitTimestamp: r.TagCommit.CommittedDate.UTC(),
		}, nil
	}

	// no GitHub release, a plain tag or a commit
	var cq CommitQuery
	variables = repoVariables(org, project)
	variables["expression"] = githubql.String(v)
	if err := c.query(ctx, &cq, variables); err != nil {
		return nil, xerrors.Errorf("commit query error: %w", err)
	}
	committed := cq.Repository.Object.Commit.CommittedDate.Time
	if committed.IsZero() {
		committed = cq.Repository.Object.Tag.Target.Commit.CommittedDate.Time
	}
	if committed.IsZero() {
		return nil, xerrors.Errorf("no release or commit %s in %s/%s", v, org, project)
	}
	return &dependency.Release{
		TagName:         v,
		Tagged:          !isSHA(v),
		Timestamp:       committed.UTC(),
		CommitTimestamp: committed.UTC(),
	}, nil
}

// HighestRelease skips drafts, pre-releases and tags that are not versions.
func (c *Client) HighestRelease(ctx context.Context, org, project string, since time.Time) (*dependency.Release, error) {
	var q ReleasesQuery
	variables := repoVariables(org, project)
	variables["total"] = graphql.Int(maxResponseSize)
	if err := c.query(ctx, &q, variables); err != nil {
		return nil, xerrors.Errorf("releases query error: %w", err)
	}

	var highest *dependency.Release
	for _, node := range q.Repository.Releases.Nodes {
		if bool(node.IsDraft) || bool(node.IsPrerelease) || !node.PublishedAt.After(since) {
			continue
		}
		v, err := version.Parse(string(node.TagName))
		if err != nil {
			continue
		}
		if highest != nil && !v.GreaterThan(highest.Version()) {
			continue
		}
		highest = &dependency.Release{
			TagName:         string(node.TagName),
			Tagged:          true,
			Timestamp:       node.PublishedAt.UTC(),
			CommitTimestamp: node.TagCommit.CommittedDate.UTC(),
		}
	}
	return highest, nil
}

func (c *Client) CommitsSince(ctx context.Context, org, project string, since time.Time) (int, error) {
	var q HistoryQuery
	variables := repoVariables(org, project)
	variables["since"] = githubql.GitTimestamp{Time: since}
	if err := c.query(ctx, &q, variables); err != nil {
		return 0, xerrors.Errorf("history query error: %w", err)
	}
	return int(q.Repository.DefaultBranchRef.Target.Commit.History.TotalCount), nil
}

func (c *Client) query(ctx context.Context, q interface{}, variables map[string]interface{}) error {
	var err error
	for i := 0; i <= c.retry; i++ {
		if i > 0 {
			sleep := c.wait(i)
			log.Printf("retry after %s", sleep)
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = c.querier.Query(ctx, q, variables); err == nil {
			return nil
		}
	}
	return xerrors.Errorf("graphql api error: %w", err)
}

func repoVariables(org, project string) map[string]interface{} {
	return map[string]interface{}{
		"owner": githubql.String(org),
		"name":  githubql.String(project),
	}
}

func isSHA(s string) bool {
	if len(s) < 7 || len(s) > 40 {
		return false
	}
	return strings.Trim(strings.ToLower(s), "0123456789abcdef") == ""
}

var _ dependency.GithubClient = (*Client)(nil)
