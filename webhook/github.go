package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"hookgram/internal"

	"github.com/go-playground/webhooks/v6/github"
)

const signatureHeader = "X-Hub-Signature-256"

var githubEvents = []github.Event{
	github.PingEvent,
	github.PushEvent,
}

// GitHubHandler receives GitHub deliveries, verifies them and runs the push
// pipeline against the current event map.
type GitHubHandler struct {
	// hook parses already verified bodies, so it carries no secret.
	hook      *github.Webhook
	secret    []byte
	events    internal.EventMapSource
	processor *internal.Processor
	logger    *log.Logger
	maxBody   int64
}

// NewGitHubHandler creates a new GitHubHandler.
func NewGitHubHandler(secret string, events internal.EventMapSource, processor *internal.Processor, logger *log.Logger, maxBody int64) (*GitHubHandler, error) {
	if secret == "" {
		return nil, errors.New("github webhook secret is empty")
	}
	if events == nil {
		return nil, errors.New("github webhook needs an event map source")
	}
	hook, err := github.New()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	if processor == nil {
		processor = &internal.Processor{}
	}
	return &GitHubHandler{
		hook:      hook,
		secret:    []byte(secret),
		events:    events,
		processor: processor,
		logger:    logger,
		maxBody:   maxBody,
	}, nil
}

func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	reqID := requestID(r)
	if reqID != "" {
		w.Header().Set("X-Request-Id", reqID)
	}
	logger := internal.WithRequestID(h.logger, reqID)

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			internal.IncRejected("body_too_large")
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		internal.IncRejected("body_unreadable")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !internal.VerifySignature(h.secret, rawBody, r.Header.Get(signatureHeader)) {
		logger.Printf("signature rejected event=%s", r.Header.Get("X-GitHub-Event"))
		internal.IncRejected("signature")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(rawBody))
	payload, err := h.hook.Parse(r, githubEvents...)
	if err != nil {
		logger.Printf("github parse failed: %v", err)
		internal.IncRejected("event")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	eventName := r.Header.Get("X-GitHub-Event")
	internal.IncRequest(eventName)

	switch p := payload.(type) {
	case github.PingPayload:
		logger.Printf("ping zen=%q hook_id=%d", pingZen(rawBody), p.HookID)
	case github.PushPayload:
		if err := h.handlePush(r, logger, reqID, p, rawBody); err != nil {
			logger.Printf("push failed repository=%s: %v", p.Repository.FullName, err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	default:
		logger.Printf("event %s ignored", eventName)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *GitHubHandler) handlePush(r *http.Request, logger *log.Logger, reqID string, p github.PushPayload, rawBody []byte) error {
	data, err := internal.DecodePayload(rawBody)
	if err != nil {
		return err
	}
	configs, err := h.events.Load(r.Context())
	if err != nil {
		return err
	}

	report, err := h.processor.HandlePush(r.Context(), logger, internal.PushEvent{
		Repository: p.Repository.FullName,
		Payload:    data,
		Raw:        rawBody,
	}, reqID, configs)
	logger.Printf("push repository=%s routed=%d results=%d skipped=%d", report.Repository, report.Routed, len(report.Results), len(report.Skipped()))
	return err
}

// pingZen reads the zen line, which the typed ping payload does not carry.
func pingZen(rawBody []byte) string {
	var ping struct {
		Zen string `json:"zen"`
	}
	if err := json.Unmarshal(rawBody, &ping); err != nil {
		return ""
	}
	return ping.Zen
}
