package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"pkt.systems/pslog"
	"pkt.systems/sshtabs/schema"
)

func newTestLogger(w *logCapture) pslog.Logger {
	return pslog.NewWithOptions(w, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

func TestWithProfileAddsFields(t *testing.T) {
	capture := &logCapture{}
	log := WithProfile(newTestLogger(capture), schema.Profile{
		ID:         "p1",
		Host:       "example.org",
		Port:       2222,
		Username:   "deploy",
		Credential: schema.Credential{Password: "hunter2"},
	})
	log.Info("hello")

	entry := capture.firstEntry(t)
	if entry["profile"] != "p1" {
		t.Fatalf("expected profile field, got %+v", entry)
	}
	if entry["host"] != "example.org:2222" {
		t.Fatalf("expected host field, got %+v", entry)
	}
	if bytes.Contains(capture.buf.Bytes(), []byte("hunter2")) {
		t.Fatalf("password leaked into log: %s", capture.buf.String())
	}
}

func TestWithSessionDeduplicates(t *testing.T) {
	capture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newTestLogger(capture))
	WithSession(ctx, "s1").Info("hello")

	entry := capture.firstEntry(t)
	if entry["session"] != "s1" {
		t.Fatalf("expected session field, got %+v", entry)
	}

	capture.buf.Reset()
	ctx = ContextWithSessionLogger(ctx, WithSession(ctx, "s1"), "s1")
	WithSession(ctx, "s1").Info("again")
	if n := bytes.Count(capture.buf.Bytes(), []byte(`"session"`)); n != 1 {
		t.Fatalf("expected exactly one session field, got %d in %s", n, capture.buf.String())
	}
}

func TestCopyContextFields(t *testing.T) {
	src := ContextWithSession(context.Background(), "s9")
	dst := CopyContextFields(context.Background(), src)
	if got, _ := dst.Value(sessionKey).(schema.SessionID); got != "s9" {
		t.Fatalf("expected copied session marker, got %q", got)
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
