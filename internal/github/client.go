package github

import (
	"context"
	"fmt"

	"github.com/qiniu/notegen/internal/config"
	"github.com/qiniu/notegen/internal/github/auth"
	"github.com/qiniu/notegen/pkg/models"

	"github.com/google/go-github/v58/github"
	"github.com/qiniu/x/xlog"
)

// Client wraps the GitHub REST API for the pull-request data the notes
// service needs: PR metadata, the raw diff that seeds the generation
// request, and a contributor listing used as the enrichment fallback.
type Client struct {
	client *github.Client
}

func NewClient(cfg *config.Config) (*Client, error) {
	authenticator, err := auth.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("github authentication: %w", err)
	}

	client, err := authenticator.Client(context.Background())
	if err != nil {
		return nil, err
	}
	return &Client{client: client}, nil
}

// NewClientWithGitHub wraps an existing go-github client, used by tests.
func NewClientWithGitHub(client *github.Client) *Client {
	return &Client{client: client}
}

// GetPullRequest fetches PR metadata (title, body, author).
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	pr, _, err := c.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("failed to get PR %s/%s#%d: %w", owner, repo, number, err)
	}
	return pr, nil
}

// GetPullRequestDiff fetches the unified diff for a PR, which becomes the
// body of the generation request.
func (c *Client) GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	diff, _, err := c.client.PullRequests.GetRaw(ctx, owner, repo, number, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", fmt.Errorf("failed to get diff for PR %s/%s#%d: %w", owner, repo, number, err)
	}
	return diff, nil
}

// ListPullRequestContributors lists the people whose commits are in the PR,
// deduplicated by login. This is the REST fallback when the GraphQL
// participant query is unavailable.
func (c *Client) ListPullRequestContributors(ctx context.Context, owner, repo string, number int) ([]models.Contributor, error) {
	xl := xlog.NewWith(ctx)

	opts := &github.ListOptions{PerPage: 100}
	var contributors []models.Contributor
	seen := make(map[string]bool)

	for {
		commits, resp, err := c.client.PullRequests.ListCommits(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list commits for PR %s/%s#%d: %w", owner, repo, number, err)
		}

		for _, commit := range commits {
			author := commit.GetAuthor()
			if author == nil || seen[author.GetLogin()] {
				continue
			}
			seen[author.GetLogin()] = true
			contributors = append(contributors, models.Contributor{
				Login:     author.GetLogin(),
				Role:      "committer",
				AvatarURL: author.GetAvatarURL(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	xl.Debugf("found %d contributors for %s/%s#%d", len(contributors), owner, repo, number)
	return contributors, nil
}
