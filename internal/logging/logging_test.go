package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf, "release", "warn")
	t.Cleanup(func() { Setup(nil, "release", "info") })

	log.Info().Msg("hidden")
	log.Warn().Str("module", "test").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %q, want one", lines)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if entry["module"] != "test" || entry["message"] != "shown" || entry["level"] != "warn" {
		t.Fatalf("entry = %v", entry)
	}
}

func TestSetupBadLevel(t *testing.T) {
	Setup(&bytes.Buffer{}, "debug", "loud")
	t.Cleanup(func() { Setup(nil, "release", "info") })
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("level = %v, want info", zerolog.GlobalLevel())
	}
}
