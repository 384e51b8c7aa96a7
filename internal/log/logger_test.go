package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewBindsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Component: "worker",
		Handler:   slog.NewTextHandler(&buf, nil),
	})

	logger.Info("queue drained", "exported", 3)

	out := buf.String()
	if !strings.Contains(out, "component=worker") {
		t.Errorf("missing component attribute in %q", out)
	}
	if !strings.Contains(out, "exported=3") {
		t.Errorf("missing call attributes in %q", out)
	}
	if logger.Component() != "worker" {
		t.Errorf("Component() = %q, want worker", logger.Component())
	}
}

func TestNewWithoutComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Handler: slog.NewTextHandler(&buf, nil)})

	logger.Info("plain")

	if strings.Contains(buf.String(), "component=") {
		t.Errorf("unexpected component attribute in %q", buf.String())
	}
}
