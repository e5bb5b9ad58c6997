package enrich

import (
	"context"
	"fmt"

	"github.com/qiniu/notegen/internal/github/auth"
	"github.com/qiniu/notegen/internal/store"
	"github.com/qiniu/notegen/pkg/models"

	"github.com/qiniu/x/xlog"
	"github.com/shurcooL/githubv4"
)

// querier is the slice of githubv4.Client the enricher uses; an interface so
// tests can script responses.
type querier interface {
	Query(ctx context.Context, q interface{}, variables map[string]interface{}) error
}

// restFallback lists contributors through the REST API when the GraphQL
// query fails. Implemented by *github.Client in this module.
type restFallback interface {
	ListPullRequestContributors(ctx context.Context, owner, repo string, number int) ([]models.Contributor, error)
}

// participantsQuery fetches the PR author and everyone who participated, in
// one GraphQL round trip.
type participantsQuery struct {
	Repository struct {
		PullRequest struct {
			Author struct {
				Login     githubv4.String
				AvatarURL githubv4.URI `graphql:"avatarUrl"`
			}
			Participants struct {
				Nodes []struct {
					Login     githubv4.String
					Name      githubv4.String
					AvatarURL githubv4.URI `graphql:"avatarUrl"`
				}
			} `graphql:"participants(first: 50)"`
		} `graphql:"pullRequest(number: $number)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// Enricher merges contributor identities into note records. It runs
// independently of note generation for the same id: a failed or slow
// enrichment never blocks or fails the notes themselves.
type Enricher struct {
	gql      querier
	fallback restFallback
	store    store.Store
}

func New(authenticator auth.Authenticator, fallback restFallback, st store.Store) (*Enricher, error) {
	httpClient, err := authenticator.HTTPClient(context.Background())
	if err != nil {
		return nil, fmt.Errorf("enrichment client: %w", err)
	}
	return &Enricher{
		gql:      githubv4.NewClient(httpClient),
		fallback: fallback,
		store:    st,
	}, nil
}

// NewWithClients wires explicit clients, used by tests.
func NewWithClients(gql querier, fallback restFallback, st store.Store) *Enricher {
	return &Enricher{gql: gql, fallback: fallback, store: st}
}

// EnrichNote fetches contributors for a PR and merges them into the note
// record. Enrichment is idempotent: a record that already has contributors
// is left alone. Failures are logged and swallowed; the note display simply
// omits contributors.
func (e *Enricher) EnrichNote(ctx context.Context, id, owner, repo string, number int) {
	xl := xlog.NewWith(ctx)

	if rec := e.store.Get(id); len(rec.Contributors) > 0 {
		xl.Debugf("contributors already present for %s, skipping enrichment", id)
		return
	}

	contributors, err := e.fetch(ctx, owner, repo, number)
	if err != nil {
		xl.Warnf("enrichment failed for %s: %v", id, err)
		return
	}
	if len(contributors) == 0 {
		return
	}

	e.store.Update(id, models.NoteUpdate{Contributors: contributors})
	xl.Infof("enriched %s with %d contributors", id, len(contributors))
}

func (e *Enricher) fetch(ctx context.Context, owner, repo string, number int) ([]models.Contributor, error) {
	contributors, gqlErr := e.fetchGraphQL(ctx, owner, repo, number)
	if gqlErr == nil {
		return contributors, nil
	}

	if e.fallback == nil {
		return nil, gqlErr
	}
	contributors, restErr := e.fallback.ListPullRequestContributors(ctx, owner, repo, number)
	if restErr != nil {
		return nil, fmt.Errorf("graphql: %v; rest fallback: %w", gqlErr, restErr)
	}
	return contributors, nil
}

func (e *Enricher) fetchGraphQL(ctx context.Context, owner, repo string, number int) ([]models.Contributor, error) {
	var query participantsQuery
	variables := map[string]interface{}{
		"owner":  githubv4.String(owner),
		"name":   githubv4.String(repo),
		"number": githubv4.Int(number),
	}

	if err := e.gql.Query(ctx, &query, variables); err != nil {
		return nil, err
	}

	pr := query.Repository.PullRequest
	authorLogin := string(pr.Author.Login)

	var contributors []models.Contributor
	seen := make(map[string]bool)

	if authorLogin != "" {
		seen[authorLogin] = true
		contributors = append(contributors, models.Contributor{
			Login:     authorLogin,
			Role:      "author",
			AvatarURL: uriString(pr.Author.AvatarURL),
		})
	}
	for _, node := range pr.Participants.Nodes {
		login := string(node.Login)
		if login == "" || seen[login] {
			continue
		}
		seen[login] = true
		contributors = append(contributors, models.Contributor{
			Login:     login,
			Name:      string(node.Name),
			Role:      "participant",
			AvatarURL: uriString(node.AvatarURL),
		})
	}

	return contributors, nil
}

func uriString(u githubv4.URI) string {
	if u.URL == nil {
		return ""
	}
	return u.String()
}
