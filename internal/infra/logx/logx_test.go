package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRedactionInStdlogWriter(t *testing.T) {
	var buf bytes.Buffer
	w := StdlogWriter(LevelDebug, &buf)
	SetMinLevel(LevelDebug)
	SetVerbose(false)
	RegisterSecret("secret123")

	_, err := w.Write([]byte("this contains secret123 and should be redacted\n"))
	if err != nil {
		t.Fatalf("write error: %v", err)
	}
	got := buf.String()
	if strings.Contains(got, "secret123") {
		t.Fatalf("expected secret to be redacted, got: %s", got)
	}
	if !strings.Contains(got, "[REDACTED]") {
		t.Fatalf("expected [REDACTED] marker, got: %s", got)
	}
}

func TestTruncationWhenNotVerbose(t *testing.T) {
	var buf bytes.Buffer
	w := StdlogWriter(LevelDebug, &buf)
	SetMinLevel(LevelDebug)
	SetVerbose(false)

	long := strings.Repeat("a", 6000)
	_, err := w.Write([]byte(long + "\n"))
	if err != nil {
		t.Fatalf("write error: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "truncated") {
		t.Fatalf("expected truncation indicator, got: %s", got)
	}
}

func TestNoTruncationWhenVerbose(t *testing.T) {
	var buf bytes.Buffer
	w := StdlogWriter(LevelDebug, &buf)
	SetMinLevel(LevelDebug)
	SetVerbose(true)
	defer SetVerbose(false)

	long := strings.Repeat("b", 4000)
	_, err := w.Write([]byte(long + "\n"))
	if err != nil {
		t.Fatalf("write error: %v", err)
	}
	got := buf.String()
	if strings.Contains(got, "truncated") {
		t.Fatalf("did not expect truncation, got: %s", got)
	}
}

func TestMinLevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	SetMinLevel(LevelWarn)

	Infof("upload %d ok", 1)
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got: %s", buf.String())
	}
	Errorf("upload %d failed", 2)
	if !strings.Contains(buf.String(), "upload 2 failed") {
		t.Fatalf("expected error line, got: %s", buf.String())
	}
}

func TestStructuredFieldsAreNestedAndRedacted(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	SetMinLevel(LevelDebug)
	RegisterSecret("hunter2")

	Errorw("media upload failed",
		FieldItem, "Brush Pack",
		FieldStatus, 500,
		FieldError, errors.New("auth hunter2 rejected"),
	)

	var line struct {
		Level  string         `json:"level"`
		Msg    string         `json:"msg"`
		Fields map[string]any `json:"fields"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if line.Level != "error" || line.Msg != "media upload failed" {
		t.Fatalf("unexpected entry: %+v", line)
	}
	if line.Fields[FieldItem] != "Brush Pack" {
		t.Fatalf("missing item field: %+v", line.Fields)
	}
	if got := line.Fields[FieldError]; got != "auth [REDACTED] rejected" {
		t.Fatalf("error field not redacted: %v", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"error":   LevelError,
		"warn":    LevelWarn,
		"unknown": LevelWarn,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
