package store

import (
	"testing"

	"github.com/qiniu/notegen/internal/section"
	"github.com/qiniu/notegen/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestMemoryStore_GetUnknownID(t *testing.T) {
	s := NewMemoryStore()

	rec := s.Get("qiniu/notegen#1")
	require.NotNil(t, rec)
	assert.Equal(t, "qiniu/notegen#1", rec.ID)
	assert.Equal(t, models.PhaseIdle, rec.Session.Phase)
	assert.Empty(t, rec.Sections)
	assert.Empty(t, rec.RawText)
}

func TestMemoryStore_UpdateMergesFields(t *testing.T) {
	s := NewMemoryStore()
	id := "qiniu/notegen#2"

	s.Update(id, models.NoteUpdate{
		Sections: map[section.Tag]string{section.TagDeveloper: "dev note"},
		RawText:  strPtr("DEVELOPER: dev note"),
	})

	// A later partial update must not clobber fields it does not carry.
	s.Update(id, models.NoteUpdate{
		Contributors: []models.Contributor{{Login: "alice", Role: "author"}},
	})

	rec := s.Get(id)
	assert.Equal(t, "dev note", rec.Sections[section.TagDeveloper])
	assert.Equal(t, "DEVELOPER: dev note", rec.RawText)
	require.Len(t, rec.Contributors, 1)
	assert.Equal(t, "alice", rec.Contributors[0].Login)
}

func TestMemoryStore_UpdateLastWriterWins(t *testing.T) {
	s := NewMemoryStore()
	id := "qiniu/notegen#3"

	s.Update(id, models.NoteUpdate{Sections: map[section.Tag]string{section.TagDeveloper: "first"}})
	s.Update(id, models.NoteUpdate{Sections: map[section.Tag]string{section.TagDeveloper: "second"}})

	assert.Equal(t, "second", s.Get(id).Sections[section.TagDeveloper])
}

func TestMemoryStore_InvalidUpdatesDropped(t *testing.T) {
	s := NewMemoryStore()

	s.Update("", models.NoteUpdate{RawText: strPtr("x")})
	s.Update("qiniu/notegen#4", models.NoteUpdate{})

	rec := s.Get("qiniu/notegen#4")
	assert.Empty(t, rec.RawText)
	assert.True(t, rec.UpdatedAt.IsZero())
}

func TestMemoryStore_BeginRejectsConcurrentSession(t *testing.T) {
	s := NewMemoryStore()
	id := "qiniu/notegen#5"

	require.True(t, s.Begin(id))
	assert.False(t, s.Begin(id), "second begin while streaming must be rejected")

	s.Finish(id, models.PhaseCompleted, "")
	assert.True(t, s.Begin(id), "begin allowed again after completion")
}

func TestMemoryStore_FinishPhases(t *testing.T) {
	s := NewMemoryStore()
	id := "qiniu/notegen#6"

	require.True(t, s.Begin(id))
	s.Finish(id, models.PhaseFailed, "request timed out after 30s")

	rec := s.Get(id)
	assert.Equal(t, models.PhaseFailed, rec.Session.Phase)
	assert.Equal(t, "request timed out after 30s", rec.Session.Error)

	// Cancel path: back to Idle, error cleared.
	require.True(t, s.Begin(id))
	s.Finish(id, models.PhaseIdle, "")
	rec = s.Get(id)
	assert.Equal(t, models.PhaseIdle, rec.Session.Phase)
	assert.Empty(t, rec.Session.Error)

	// Finish may not re-enter Streaming.
	s.Finish(id, models.PhaseStreaming, "")
	assert.Equal(t, models.PhaseIdle, s.Get(id).Session.Phase)
}

func TestMemoryStore_FinishCompletedKeepsError(t *testing.T) {
	s := NewMemoryStore()
	id := "qiniu/notegen#7"

	require.True(t, s.Begin(id))
	s.Finish(id, models.PhaseFailed, "stream broke")
	require.True(t, s.Begin(id))

	// Begin of a fresh session clears prior error.
	assert.Empty(t, s.Get(id).Session.Error)
}

func TestMemoryStore_ResetKeepsRecord(t *testing.T) {
	s := NewMemoryStore()
	id := "qiniu/notegen#8"

	s.Update(id, models.NoteUpdate{
		Sections:     map[section.Tag]string{section.TagDeveloper: "dev"},
		RawText:      strPtr("raw"),
		Contributors: []models.Contributor{{Login: "bob"}},
	})
	s.Reset(id)

	rec := s.Get(id)
	assert.Empty(t, rec.Sections)
	assert.Empty(t, rec.RawText)
	assert.Empty(t, rec.Contributors)
	assert.Equal(t, models.PhaseIdle, rec.Session.Phase)
	assert.False(t, rec.UpdatedAt.IsZero(), "record survives reset")
}

func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	s := NewMemoryStore()
	id := "qiniu/notegen#9"

	s.Update(id, models.NoteUpdate{Sections: map[section.Tag]string{section.TagDeveloper: "dev"}})

	rec := s.Get(id)
	rec.Sections[section.TagDeveloper] = "mutated"

	assert.Equal(t, "dev", s.Get(id).Sections[section.TagDeveloper])
}
