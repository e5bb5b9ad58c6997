package store

import (
	"sync"
	"time"

	"github.com/qiniu/notegen/internal/section"
	"github.com/qiniu/notegen/pkg/models"

	"github.com/qiniu/x/log"
)

// Store holds the latest note record per pull request id. It is the single
// serialization point for a record: the stream consumer, the enrichment
// fetch, and HTTP readers all go through it, so nothing else needs a lock.
//
// Modeled as an injectable interface rather than a package-level singleton
// so the consumer can be tested against a plain in-memory instance.
type Store interface {
	// Get returns a snapshot of the record, creating a default one if the
	// id has never been seen. Mutating the snapshot does not affect the
	// store.
	Get(id string) *models.NoteRecord

	// Update merges the supplied fields into the record, last writer wins.
	// Fields not present in the update are left untouched. Invalid updates
	// (empty id, no fields) are dropped with a diagnostic.
	Update(id string, update models.NoteUpdate)

	// Begin atomically transitions the record's session to Streaming and
	// stamps StartedAt. It returns false, changing nothing, if a session
	// is already streaming for this id.
	Begin(id string) bool

	// Finish transitions a streaming session out of Streaming. Completed
	// leaves any existing error untouched; Failed records errMsg; Idle
	// (explicit cancel) clears the error.
	Finish(id string, phase models.SessionPhase, errMsg string)

	// Reset clears sections, raw text, and session state back to defaults.
	// The record still exists afterwards; this is not deletion.
	Reset(id string)
}

// MemoryStore is the in-memory Store used by the service. Records live for
// the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.NoteRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*models.NoteRecord),
	}
}

func (s *MemoryStore) Get(id string) *models.NoteRecord {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()

	if !ok {
		return &models.NoteRecord{
			ID:      id,
			Session: models.Session{Phase: models.PhaseIdle},
		}
	}
	return snapshot(rec)
}

func (s *MemoryStore) Update(id string, update models.NoteUpdate) {
	if id == "" {
		log.Warnf("store: dropping update with empty note id")
		return
	}
	if update.Empty() {
		log.Warnf("store: dropping empty update for %s", id)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.ensure(id)
	if update.Sections != nil {
		rec.Sections = cloneSections(update.Sections)
	}
	if update.RawText != nil {
		rec.RawText = *update.RawText
	}
	if update.Contributors != nil {
		rec.Contributors = append([]models.Contributor(nil), update.Contributors...)
	}
	rec.UpdatedAt = time.Now()
}

func (s *MemoryStore) Begin(id string) bool {
	if id == "" {
		log.Warnf("store: refusing to begin session with empty note id")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.ensure(id)
	if rec.Session.Phase == models.PhaseStreaming {
		return false
	}
	rec.Session = models.Session{
		Phase:     models.PhaseStreaming,
		StartedAt: time.Now(),
	}
	rec.UpdatedAt = time.Now()
	return true
}

func (s *MemoryStore) Finish(id string, phase models.SessionPhase, errMsg string) {
	if phase == models.PhaseStreaming {
		log.Warnf("store: Finish cannot target the Streaming phase, dropping for %s", id)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.ensure(id)
	rec.Session.Phase = phase
	switch phase {
	case models.PhaseFailed:
		rec.Session.Error = errMsg
	case models.PhaseIdle:
		rec.Session.Error = ""
	}
	rec.UpdatedAt = time.Now()
}

func (s *MemoryStore) Reset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.ensure(id)
	rec.Sections = nil
	rec.RawText = ""
	rec.Contributors = nil
	rec.Session = models.Session{Phase: models.PhaseIdle}
	rec.UpdatedAt = time.Now()
}

// ensure returns the live record for id, creating it if needed. Callers must
// hold the write lock.
func (s *MemoryStore) ensure(id string) *models.NoteRecord {
	rec, ok := s.records[id]
	if !ok {
		rec = &models.NoteRecord{
			ID:      id,
			Session: models.Session{Phase: models.PhaseIdle},
		}
		s.records[id] = rec
	}
	return rec
}

func snapshot(rec *models.NoteRecord) *models.NoteRecord {
	out := *rec
	out.Sections = cloneSections(rec.Sections)
	if rec.Contributors != nil {
		out.Contributors = append([]models.Contributor(nil), rec.Contributors...)
	}
	return &out
}

func cloneSections(in map[section.Tag]string) map[section.Tag]string {
	if in == nil {
		return nil
	}
	out := make(map[section.Tag]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
