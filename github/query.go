package github

import (
	githubql "github.com/shurcooL/githubv4"
)

type ReleaseNode struct {
	TagName      githubql.String
	IsDraft      githubql.Boolean
	IsPrerelease githubql.Boolean
	PublishedAt  githubql.DateTime
	TagCommit    struct {
		CommittedDate githubql.DateTime
	}
}

type CommitNode struct {
	CommittedDate githubql.DateTime
}

type ReleaseQuery struct {
	Repository struct {
		Release *ReleaseNode `graphql:"release(tagName: $tag)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

type CommitQuery struct {
	Repository struct {
		Object struct {
			Commit CommitNode `graphql:"... on Commit"`
			Tag    struct {
				Target struct {
					Commit CommitNode `graphql:"... on Commit"`
				}
			} `graphql:"... on Tag"`
		} `graphql:"object(expression: $expression)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

type ReleasesQuery struct {
	Repository struct {
		Releases struct {
			Nodes []ReleaseNode
		} `graphql:"releases(first: $total, orderBy: {field: CREATED_AT, direction: DESC})"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

type HistoryQuery struct {
	Repository struct {
		DefaultBranchRef struct {
			Target struct {
				Commit struct {
					History struct {
						TotalCount githubql.Int
					} `graphql:"history(since: $since)"`
				} `graphql:"... on Commit"`
			}
		}
	} `graphql:"repository(owner: $owner, name: $name)"`
}
