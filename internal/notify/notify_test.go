package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/core"
)

type fakeRedis struct {
	incrs      []string
	published  map[string][]string
	publishErr error
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	f.incrs = append(f.incrs, key)
	return redis.NewIntResult(int64(len(f.incrs)), nil)
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	if f.publishErr != nil {
		return redis.NewIntResult(0, f.publishErr)
	}
	if f.published == nil {
		f.published = make(map[string][]string)
	}
	f.published[channel] = append(f.published[channel], string(message.([]byte)))
	return redis.NewIntResult(1, nil)
}

func event(action core.EventAction) core.Event {
	return core.Event{
		Action:     action,
		Severity:   core.EventHigh,
		SessionID:  "s1",
		Scope:      "store-1",
		EntityType: catalog.Item,
		Status:     core.StatusConfirmed,
		At:         time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRedis_Notify(t *testing.T) {
	tests := []struct {
		name      string
		action    core.EventAction
		wantIncrs int
	}{
		{"confirmed bumps version", core.EventConfirmed, 1},
		{"validated only publishes", core.EventValidated, 0},
		{"discarded only publishes", core.EventDiscarded, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeRedis{}
			n := NewRedis(fake, "")
			if err := n.Notify(context.Background(), event(tt.action)); err != nil {
				t.Fatalf("Notify() error = %v", err)
			}
			if len(fake.incrs) != tt.wantIncrs {
				t.Errorf("incrs = %v, want %d", fake.incrs, tt.wantIncrs)
			}
			if tt.wantIncrs > 0 && fake.incrs[0] != "catalog:store-1:version" {
				t.Errorf("incr key = %q", fake.incrs[0])
			}
			msgs := fake.published[DefaultChannel]
			if len(msgs) != 1 {
				t.Fatalf("published = %v", fake.published)
			}
			var got core.Event
			if err := json.Unmarshal([]byte(msgs[0]), &got); err != nil {
				t.Fatal(err)
			}
			if got.Action != tt.action || got.SessionID != "s1" {
				t.Errorf("published event = %+v", got)
			}
		})
	}
}

func TestRedis_NotifyPublishFailure(t *testing.T) {
	fake := &fakeRedis{publishErr: errors.New("connection refused")}
	err := NewRedis(fake, "events").Notify(context.Background(), event(core.EventConfirmed))
	if err == nil || !strings.Contains(err.Error(), "publish event") {
		t.Errorf("Notify() error = %v", err)
	}
	if len(fake.incrs) != 1 {
		t.Error("version bump should not depend on publish")
	}
}

func TestLog_Notify(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	e := event(core.EventCommitFailed)
	e.Severity = core.EventCritical
	if err := NewLog(logger).Notify(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "action=import_commit_failed") {
		t.Errorf("log = %q", out)
	}
}
