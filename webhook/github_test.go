package webhook

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hookgram/internal"
)

const testSecret = "s3cret"

const pushBody = `{
  "ref": "refs/heads/main",
  "repository": {"full_name": "octo/app"},
  "pusher": {"name": "ada"},
  "commits": [{"message": "add login", "added": ["login.go"], "removed": [], "modified": []}]
}`

type recordingSender struct {
	texts []string
	err   error
}

func (s *recordingSender) Send(ctx context.Context, botToken string, target internal.TelegramTarget, text string) error {
	if s.err != nil {
		return s.err
	}
	s.texts = append(s.texts, text)
	return nil
}

type failingSource struct{}

func (failingSource) Load(ctx context.Context) ([]internal.EventMapConfig, error) {
	return nil, errors.New("event map unavailable")
}

func eventMap(worker internal.Worker) internal.StaticEventMapSource {
	return internal.StaticEventMapSource{{
		Kind:        internal.KindEventMap,
		ServiceName: "deploy-bot",
		EventType:   "push",
		Listener:    &internal.PushEventListener{RepositoryTarget: "octo/app", Worker: worker},
	}}
}

func newTestHandler(t *testing.T, source internal.EventMapSource, sender *recordingSender, maxBody int64) *GitHubHandler {
	t.Helper()
	processor := &internal.Processor{Dispatcher: &internal.Dispatcher{BotToken: "token", Sender: sender}}
	handler, err := NewGitHubHandler(testSecret, source, processor, log.New(io.Discard, "", 0), maxBody)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler
}

func signedRequest(event, body, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if event != "" {
		req.Header.Set("X-GitHub-Event", event)
	}
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	return req
}

func serve(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func sign(body string) string {
	return internal.SignBody([]byte(testSecret), []byte(body))
}

func TestGitHubHandlerPushDelivers(t *testing.T) {
	sender := &recordingSender{}
	worker := &internal.PushNotificationWorker{
		Message:        "{pusher.name} -> {repository.full_name}{ln}{added_files}",
		TelegramTarget: &internal.TelegramTarget{Chat: -100},
	}
	handler := newTestHandler(t, eventMap(worker), sender, 0)

	req := signedRequest("push", pushBody, sign(pushBody))
	req.Header.Set("X-Request-Id", "req-42")
	rec := serve(handler, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") != "req-42" {
		t.Fatalf("expected request id echo, got %q", rec.Header().Get("X-Request-Id"))
	}
	if len(sender.texts) != 1 || sender.texts[0] != "ada -> octo/app\n+ login.go" {
		t.Fatalf("unexpected messages %q", sender.texts)
	}
}

func TestGitHubHandlerRejectsBadSignature(t *testing.T) {
	sender := &recordingSender{}
	handler := newTestHandler(t, eventMap(&internal.PushNotificationWorker{TelegramTarget: &internal.TelegramTarget{Chat: 1}}), sender, 0)

	cases := map[string]string{
		"missing": "",
		"wrong":   internal.SignBody([]byte("other"), []byte(pushBody)),
		"garbage": "sha256=zz",
	}
	for name, signature := range cases {
		rec := serve(handler, signedRequest("push", pushBody, signature))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
	}
	if len(sender.texts) != 0 {
		t.Fatalf("expected no deliveries for rejected requests")
	}
}

func TestGitHubHandlerRejectsUnsupportedEvent(t *testing.T) {
	handler := newTestHandler(t, eventMap(nil), &recordingSender{}, 0)

	for _, event := range []string{"", "issues", "pull_request"} {
		rec := serve(handler, signedRequest(event, pushBody, sign(pushBody)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("event %q: expected 400, got %d", event, rec.Code)
		}
	}
}

func TestGitHubHandlerPing(t *testing.T) {
	var logs bytes.Buffer
	handler, err := NewGitHubHandler(testSecret, failingSource{}, nil, log.New(&logs, "", 0), 0)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	body := `{"zen":"Keep it logically awesome.","hook_id":42}`

	rec := serve(handler, signedRequest("ping", body, sign(body)))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	out := logs.String()
	if !strings.Contains(out, `zen="Keep it logically awesome."`) || !strings.Contains(out, "hook_id=42") {
		t.Fatalf("expected zen and hook_id in log, got %q", out)
	}
}

func TestGitHubHandlerNoMatchingWorker(t *testing.T) {
	sender := &recordingSender{}
	handler := newTestHandler(t, eventMap(nil), sender, 0)

	rec := serve(handler, signedRequest("push", pushBody, sign(pushBody)))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(sender.texts) != 0 {
		t.Fatalf("expected no deliveries")
	}
}

func TestGitHubHandlerSendFailure(t *testing.T) {
	sender := &recordingSender{err: errors.New("telegram down")}
	worker := &internal.PushNotificationWorker{Message: "m", TelegramTarget: &internal.TelegramTarget{Chat: 1}}
	handler := newTestHandler(t, eventMap(worker), sender, 0)

	rec := serve(handler, signedRequest("push", pushBody, sign(pushBody)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestGitHubHandlerEventMapFailure(t *testing.T) {
	handler := newTestHandler(t, failingSource{}, &recordingSender{}, 0)

	rec := serve(handler, signedRequest("push", pushBody, sign(pushBody)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestGitHubHandlerBodyLimit(t *testing.T) {
	handler := newTestHandler(t, eventMap(nil), &recordingSender{}, 16)
	body := strings.Repeat("x", 64)

	rec := serve(handler, signedRequest("push", body, sign(body)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestNewGitHubHandlerValidation(t *testing.T) {
	if _, err := NewGitHubHandler("", eventMap(nil), nil, nil, 0); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := NewGitHubHandler(testSecret, nil, nil, nil, 0); err == nil {
		t.Fatalf("expected error for missing event map source")
	}
}
