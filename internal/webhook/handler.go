package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/qiniu/notegen/internal/config"
	"github.com/qiniu/notegen/internal/notes"
	"github.com/qiniu/notegen/internal/store"
	"github.com/qiniu/notegen/internal/trace"
	"github.com/qiniu/notegen/pkg/models"
	"github.com/qiniu/notegen/pkg/signature"

	"github.com/google/go-github/v58/github"
	"github.com/qiniu/x/xlog"
)

// generationStarter is the consumer surface the handler needs.
type generationStarter interface {
	Start(ctx context.Context, req *models.GenerateRequest) error
	Cancel(id string) bool
}

// prFetcher supplies the PR metadata and diff that seed a generation
// request. Implemented by the GitHub REST client.
type prFetcher interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
	GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (string, error)
}

// noteEnricher runs contributor enrichment, independently of generation.
type noteEnricher interface {
	EnrichNote(ctx context.Context, id, owner, repo string, number int)
}

type Handler struct {
	config   *config.Config
	consumer generationStarter
	store    store.Store
	github   prFetcher
	enricher noteEnricher
}

func NewHandler(cfg *config.Config, consumer generationStarter, st store.Store, gh prFetcher, enricher noteEnricher) *Handler {
	return &Handler{
		config:   cfg,
		consumer: consumer,
		store:    st,
		github:   gh,
		enricher: enricher,
	}
}

// Register installs all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/notes/{owner}/{repo}/{number}/generate", h.handleGenerate)
	mux.HandleFunc("POST /api/notes/{owner}/{repo}/{number}/cancel", h.handleCancel)
	mux.HandleFunc("POST /api/notes/{owner}/{repo}/{number}/reset", h.handleReset)
	mux.HandleFunc("GET /api/notes/{owner}/{repo}/{number}", h.handleGet)
	mux.HandleFunc("POST /hook", h.handleWebhook)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type prRef struct {
	owner  string
	repo   string
	number int
}

func (p prRef) id() string {
	return models.NoteID(p.owner, p.repo, p.number)
}

func prRefFromPath(r *http.Request) (prRef, error) {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil || number <= 0 {
		return prRef{}, errors.New("invalid pull request number")
	}
	ref := prRef{
		owner:  r.PathValue("owner"),
		repo:   r.PathValue("repo"),
		number: number,
	}
	if ref.owner == "" || ref.repo == "" {
		return prRef{}, errors.New("owner and repo are required")
	}
	return ref, nil
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ref, err := prRefFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := trace.NewContext(context.Background(), trace.NewID("generate"))
	xl := xlog.NewWith(ctx)
	xl.Infof("generation requested for %s", ref.id())

	// Fast in-flight check so a double click doesn't refetch the diff; the
	// consumer still enforces the rule authoritatively at Start.
	if h.store.Get(ref.id()).Session.Phase == models.PhaseStreaming {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "already streaming"})
		return
	}

	go h.startGeneration(ctx, ref)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// startGeneration fetches the PR context and kicks off the stream session
// plus contributor enrichment. Runs detached from the HTTP request.
func (h *Handler) startGeneration(ctx context.Context, ref prRef) {
	xl := xlog.NewWith(ctx)
	id := ref.id()

	pr, err := h.github.GetPullRequest(ctx, ref.owner, ref.repo, ref.number)
	if err != nil {
		h.failBeforeStreaming(id, "failed to fetch pull request: "+err.Error())
		xl.Errorf("fetching PR %s: %v", id, err)
		return
	}
	diff, err := h.github.GetPullRequestDiff(ctx, ref.owner, ref.repo, ref.number)
	if err != nil {
		h.failBeforeStreaming(id, "failed to fetch diff: "+err.Error())
		xl.Errorf("fetching diff for %s: %v", id, err)
		return
	}

	req := &models.GenerateRequest{
		ID:          id,
		Owner:       ref.owner,
		Repo:        ref.repo,
		Number:      ref.number,
		Title:       pr.GetTitle(),
		Description: pr.GetBody(),
		Diff:        diff,
	}
	if err := h.consumer.Start(ctx, req); err != nil {
		if errors.Is(err, notes.ErrSessionInFlight) {
			xl.Infof("generation already in flight for %s, ignoring", id)
			return
		}
		xl.Errorf("starting generation for %s: %v", id, err)
		return
	}

	// One stream and one enrichment fetch may run concurrently for the
	// same id; they meet only at the store.
	go h.enricher.EnrichNote(ctx, id, ref.owner, ref.repo, ref.number)
}

// failBeforeStreaming surfaces a pre-stream failure on the session, unless
// another session is already streaming for the id.
func (h *Handler) failBeforeStreaming(id, msg string) {
	if h.store.Begin(id) {
		h.store.Finish(id, models.PhaseFailed, msg)
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ref, err := prRefFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.store.Get(ref.id()))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ref, err := prRefFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	canceled := h.consumer.Cancel(ref.id())
	writeJSON(w, http.StatusOK, map[string]bool{"canceled": canceled})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	ref, err := prRefFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.consumer.Cancel(ref.id())
	h.store.Reset(ref.id())
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleWebhook accepts GitHub pull_request events and starts generation
// for freshly opened or updated PRs.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if secret := h.config.Server.WebhookSecret; secret != "" {
		if err := signature.Validate(r.Header.Get("X-Hub-Signature-256"), body, secret); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	ctx := trace.NewContext(context.Background(), trace.NewID("hook"))
	xl := xlog.NewWith(ctx)

	eventType := r.Header.Get("X-GitHub-Event")
	if eventType != "pull_request" {
		xl.Debugf("ignoring webhook event type %q", eventType)
		w.WriteHeader(http.StatusOK)
		return
	}

	var event github.PullRequestEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid pull_request event")
		return
	}

	action := event.GetAction()
	if action != "opened" && action != "reopened" && action != "synchronize" {
		xl.Debugf("ignoring pull_request action %q", action)
		w.WriteHeader(http.StatusOK)
		return
	}

	repo := event.GetRepo()
	if repo == nil || repo.GetOwner() == nil || event.GetPullRequest() == nil {
		writeError(w, http.StatusBadRequest, "event missing repository or pull request")
		return
	}

	ref := prRef{
		owner:  repo.GetOwner().GetLogin(),
		repo:   repo.GetName(),
		number: event.GetPullRequest().GetNumber(),
	}
	xl.Infof("pull_request %s for %s, starting generation", action, ref.id())

	// synchronize means new commits: drop stale notes before regenerating.
	if action == "synchronize" {
		h.consumer.Cancel(ref.id())
		h.store.Reset(ref.id())
	}

	go h.startGeneration(ctx, ref)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(nil, r.Body, 4<<20))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
