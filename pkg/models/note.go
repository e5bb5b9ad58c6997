package models

import (
	"fmt"
	"time"

	"github.com/qiniu/notegen/internal/section"
)

// SessionPhase is the lifecycle state of one note-generation session.
// Transitions are driven only by the stream consumer: Idle -> Streaming ->
// Completed or Failed, and Streaming -> Idle on explicit cancel.
type SessionPhase string

const (
	PhaseIdle      SessionPhase = "idle"
	PhaseStreaming SessionPhase = "streaming"
	PhaseCompleted SessionPhase = "completed"
	PhaseFailed    SessionPhase = "failed"
)

// Terminal reports whether the phase admits starting a new session.
func (p SessionPhase) Terminal() bool {
	return p != PhaseStreaming
}

// Session is the ephemeral per-generation state attached to a note record.
type Session struct {
	Phase     SessionPhase `json:"phase"`
	Error     string       `json:"error,omitempty"`
	StartedAt time.Time    `json:"started_at,omitempty"`
}

// Contributor is the enrichment payload for one person involved in the
// change, fetched from GitHub independently of note generation.
type Contributor struct {
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// NoteRecord is the externally visible projection of one pull request's
// generated notes: the latest parsed sections, the raw accumulated model
// output (kept for diagnostics and fallback display), session status, and
// optional contributor enrichment.
type NoteRecord struct {
	ID           string                 `json:"id"`
	Sections     map[section.Tag]string `json:"sections"`
	RawText      string                 `json:"raw_text,omitempty"`
	Session      Session                `json:"session"`
	Contributors []Contributor          `json:"contributors,omitempty"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// NoteUpdate is a partial, last-writer-wins update to a NoteRecord. Nil
// fields leave the corresponding record fields untouched.
type NoteUpdate struct {
	Sections     map[section.Tag]string
	RawText      *string
	Contributors []Contributor
}

// Empty reports whether the update carries no fields at all.
func (u NoteUpdate) Empty() bool {
	return u.Sections == nil && u.RawText == nil && u.Contributors == nil
}

// GenerateRequest carries everything the stream consumer needs to ask the
// generator for notes about one pull request. The consumer treats Diff and
// Description as opaque text.
type GenerateRequest struct {
	ID          string `json:"id"`
	Owner       string `json:"owner,omitempty"`
	Repo        string `json:"repo,omitempty"`
	Number      int    `json:"number,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Diff        string `json:"diff"`
}

// NoteID builds the store key for a pull request, e.g. "qiniu/notegen#12".
func NoteID(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s#%d", owner, repo, number)
}
