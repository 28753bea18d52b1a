package internal

import "testing"

func pushConfig(service, repo string, worker Worker) EventMapConfig {
	return EventMapConfig{
		Kind:        KindEventMap,
		ServiceName: service,
		EventType:   EventPush,
		Listener:    &PushEventListener{RepositoryTarget: repo, Worker: worker},
	}
}

func TestRouteFiltersByKindAndEventType(t *testing.T) {
	configs := []EventMapConfig{
		pushConfig("a", "octo/app", nil),
		{Kind: KindEventMap, ServiceName: "b", EventType: "issues"},
		{Kind: "other-map", ServiceName: "c", EventType: EventPush},
		pushConfig("d", "octo/app", nil),
		pushConfig("a", "octo/app", nil),
	}

	routed := Route(EventPush, configs)
	var names []string
	for _, cfg := range routed {
		names = append(names, cfg.ServiceName)
	}
	if len(names) != 3 || names[0] != "a" || names[1] != "d" || names[2] != "a" {
		t.Fatalf("unexpected routing order: %v", names)
	}
	if len(Route("release", configs)) != 0 {
		t.Fatalf("expected no configs for release")
	}
	if len(Route(EventPush, nil)) != 0 {
		t.Fatalf("expected no configs for empty map")
	}
}

func TestResolvePush(t *testing.T) {
	worker := &PushNotificationWorker{Message: "hi"}
	event := PushEvent{Repository: "octo/app", Payload: map[string]interface{}{"ref": "refs/heads/main"}}
	values := TemplateValues(event.Payload)

	var nilListener *PushEventListener
	var nilWorker *PushNotificationWorker

	cases := []struct {
		name   string
		cfg    EventMapConfig
		event  PushEvent
		reason string
	}{
		{name: "match", cfg: pushConfig("s", "octo/app", worker), event: event},
		{name: "case sensitive", cfg: pushConfig("s", "Octo/App", worker), event: event, reason: SkipRepositoryMismatch},
		{name: "empty repository", cfg: pushConfig("s", "", worker), event: PushEvent{}, reason: SkipRepositoryMismatch},
		{name: "no worker", cfg: pushConfig("s", "octo/app", nil), event: event, reason: SkipNoWorker},
		{name: "typed nil worker", cfg: pushConfig("s", "octo/app", nilWorker), event: event, reason: SkipNoWorker},
		{name: "other worker", cfg: pushConfig("s", "octo/app", &UnknownWorker{Kind: "release-worker"}), event: event, reason: SkipWorkerIgnored},
		{name: "no listener", cfg: EventMapConfig{Kind: KindEventMap, ServiceName: "s", EventType: EventPush}, event: event, reason: SkipMalformedListener},
		{name: "typed nil listener", cfg: EventMapConfig{Kind: KindEventMap, ServiceName: "s", EventType: EventPush, Listener: nilListener}, event: event, reason: SkipMalformedListener},
		{name: "other listener", cfg: EventMapConfig{Kind: KindEventMap, ServiceName: "s", EventType: EventPush, Listener: &UnknownListener{Kind: "issue-event-listener"}}, event: event, reason: SkipMalformedListener},
	}
	for _, tc := range cases {
		got, skipped := ResolvePush(tc.cfg, tc.event, values)
		if tc.reason == "" {
			if skipped != nil || got != worker {
				t.Fatalf("%s: expected worker, got %v %v", tc.name, got, skipped)
			}
			continue
		}
		if skipped == nil || skipped.Reason != tc.reason {
			t.Fatalf("%s: expected skip %q, got %v", tc.name, tc.reason, skipped)
		}
		if skipped.Service != "s" {
			t.Fatalf("%s: expected service on skip, got %q", tc.name, skipped.Service)
		}
	}
}

func TestResolvePushCondition(t *testing.T) {
	worker := &PushNotificationWorker{Message: "hi"}
	event := PushEvent{Repository: "octo/app", Payload: map[string]interface{}{"ref": "refs/heads/dev"}}
	values := TemplateValues(event.Payload)

	cfg := pushConfig("s", "octo/app", worker)
	cfg.Listener.(*PushEventListener).Condition = `ref == "refs/heads/main"`
	if _, skipped := ResolvePush(cfg, event, values); skipped == nil || skipped.Reason != SkipConditionFalse {
		t.Fatalf("expected condition skip, got %v", skipped)
	}

	cfg.Listener.(*PushEventListener).Condition = `ref ==`
	if _, skipped := ResolvePush(cfg, event, values); skipped == nil || skipped.Reason != SkipConditionError {
		t.Fatalf("expected condition error skip, got %v", skipped)
	}

	cfg.Listener.(*PushEventListener).Condition = `matches(ref, "heads/")`
	if got, skipped := ResolvePush(cfg, event, values); skipped != nil || got != worker {
		t.Fatalf("expected worker, got %v", skipped)
	}
}

func TestSkipErrorMessage(t *testing.T) {
	err := &SkipError{Service: "svc", Reason: SkipNoWorker}
	if err.Error() != "svc: no worker" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	err.Detail = "x"
	if err.Error() != "svc: no worker: x" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
