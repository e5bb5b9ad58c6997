package enrich

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/qiniu/notegen/internal/section"
	"github.com/qiniu/notegen/internal/store"
	"github.com/qiniu/notegen/pkg/models"

	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuerier struct {
	err     error
	author  string
	people  []string
	queries int
}

func (f *fakeQuerier) Query(ctx context.Context, q interface{}, variables map[string]interface{}) error {
	f.queries++
	if f.err != nil {
		return f.err
	}

	query, ok := q.(*participantsQuery)
	if !ok {
		return errors.New("unexpected query type")
	}

	avatar, _ := url.Parse("https://avatars.example.com/u/1")
	query.Repository.PullRequest.Author.Login = githubv4.String(f.author)
	query.Repository.PullRequest.Author.AvatarURL = githubv4.URI{URL: avatar}
	for _, login := range f.people {
		node := struct {
			Login     githubv4.String
			Name      githubv4.String
			AvatarURL githubv4.URI `graphql:"avatarUrl"`
		}{Login: githubv4.String(login), Name: githubv4.String("Name of " + login)}
		query.Repository.PullRequest.Participants.Nodes = append(query.Repository.PullRequest.Participants.Nodes, node)
	}
	return nil
}

type fakeFallback struct {
	contributors []models.Contributor
	err          error
	calls        int
}

func (f *fakeFallback) ListPullRequestContributors(ctx context.Context, owner, repo string, number int) ([]models.Contributor, error) {
	f.calls++
	return f.contributors, f.err
}

func TestEnrichNote_GraphQL(t *testing.T) {
	st := store.NewMemoryStore()
	gql := &fakeQuerier{author: "alice", people: []string{"alice", "bob"}}
	e := NewWithClients(gql, &fakeFallback{}, st)

	id := "qiniu/notegen#1"
	e.EnrichNote(context.Background(), id, "qiniu", "notegen", 1)

	rec := st.Get(id)
	require.Len(t, rec.Contributors, 2, "author deduplicated against participants")
	assert.Equal(t, "alice", rec.Contributors[0].Login)
	assert.Equal(t, "author", rec.Contributors[0].Role)
	assert.Equal(t, "https://avatars.example.com/u/1", rec.Contributors[0].AvatarURL)
	assert.Equal(t, "bob", rec.Contributors[1].Login)
	assert.Equal(t, "participant", rec.Contributors[1].Role)
	assert.Equal(t, "Name of bob", rec.Contributors[1].Name)
}

func TestEnrichNote_Idempotent(t *testing.T) {
	st := store.NewMemoryStore()
	id := "qiniu/notegen#2"
	st.Update(id, models.NoteUpdate{Contributors: []models.Contributor{{Login: "carol"}}})

	gql := &fakeQuerier{author: "alice"}
	e := NewWithClients(gql, nil, st)
	e.EnrichNote(context.Background(), id, "qiniu", "notegen", 2)

	assert.Zero(t, gql.queries, "populated record is not re-fetched")
	rec := st.Get(id)
	require.Len(t, rec.Contributors, 1)
	assert.Equal(t, "carol", rec.Contributors[0].Login)
}

func TestEnrichNote_RESTFallback(t *testing.T) {
	st := store.NewMemoryStore()
	fallback := &fakeFallback{contributors: []models.Contributor{{Login: "dave", Role: "committer"}}}
	e := NewWithClients(&fakeQuerier{err: errors.New("graphql down")}, fallback, st)

	id := "qiniu/notegen#3"
	e.EnrichNote(context.Background(), id, "qiniu", "notegen", 3)

	assert.Equal(t, 1, fallback.calls)
	rec := st.Get(id)
	require.Len(t, rec.Contributors, 1)
	assert.Equal(t, "dave", rec.Contributors[0].Login)
}

func TestEnrichNote_FailureLeavesRecordAlone(t *testing.T) {
	st := store.NewMemoryStore()
	e := NewWithClients(&fakeQuerier{err: errors.New("graphql down")}, &fakeFallback{err: errors.New("rest down")}, st)

	id := "qiniu/notegen#4"
	st.Update(id, models.NoteUpdate{Sections: map[section.Tag]string{section.TagDeveloper: "note"}})
	e.EnrichNote(context.Background(), id, "qiniu", "notegen", 4)

	rec := st.Get(id)
	assert.Empty(t, rec.Contributors)
	assert.Equal(t, "note", rec.Sections[section.TagDeveloper], "enrichment failure does not touch notes")
}
