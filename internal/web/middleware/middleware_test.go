package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/JonMunkholm/catalogimport/internal/core"
)

func TestTrustedRealIP(t *testing.T) {
	mw := TrustedRealIP([]string{"10.0.0.0/8", "192.168.1.5", "not-a-cidr"})

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"untrusted strips port", "203.0.113.9:5555", nil, "203.0.113.9"},
		{"untrusted ignores headers", "203.0.113.9:5555", map[string]string{"X-Real-IP": "1.2.3.4"}, "203.0.113.9"},
		{"trusted uses X-Real-IP", "10.1.2.3:80", map[string]string{"X-Real-IP": "1.2.3.4"}, "1.2.3.4"},
		{"trusted uses first forwarded hop", "10.1.2.3:80", map[string]string{"X-Forwarded-For": "5.6.7.8, 10.0.0.1"}, "5.6.7.8"},
		{"trusted single address", "192.168.1.5:80", map[string]string{"X-Real-IP": "9.9.9.9"}, "9.9.9.9"},
		{"trusted with invalid header", "10.1.2.3:80", map[string]string{"X-Real-IP": "garbage"}, "10.1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { got = r.RemoteAddr }))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActor(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		caps     string
		wantCode int
		wantCaps []string
	}{
		{"missing id", "", core.CapabilityImport, http.StatusUnauthorized, nil},
		{"capabilities trimmed", "alice", " catalog.import , catalog.import.admin,", http.StatusOK, []string{"catalog.import", "catalog.import.admin"}},
		{"no capabilities", "bob", "", http.StatusOK, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got core.Actor
			h := Actor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = core.ActorFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.id != "" {
				req.Header.Set(HeaderActorID, tt.id)
			}
			req.Header.Set(HeaderActorCapabilities, tt.caps)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			if got.ID != tt.id || !reflect.DeepEqual(got.Capabilities, tt.wantCaps) {
				t.Errorf("actor = %+v", got)
			}
		})
	}
}

func TestLogger_IncludesActor(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	h := Logger(Actor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})))
	req := httptest.NewRequest(http.MethodPost, "/api/imports", nil)
	req.Header.Set(HeaderActorID, "alice")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"status=202", "actor=alice", "path=/api/imports"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}
