package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tether/internal/logging"
)

func TestSetupWriter_JSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	if err := logging.SetupWriter(&buf, "warn", "json"); err != nil {
		t.Fatalf("SetupWriter: %v", err)
	}
	log.Info().Msg("hidden")
	log.Warn().Str("session", "abc").Msg("shown")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not a single json line: %q", buf.String())
	}
	if line["message"] != "shown" || line["session"] != "abc" || line["level"] != "warn" {
		t.Fatalf("line = %v", line)
	}
}

func TestSetupWriter_Rejects(t *testing.T) {
	var buf bytes.Buffer
	if err := logging.SetupWriter(&buf, "loud", "json"); err == nil {
		t.Fatal("bad level accepted")
	}
	if err := logging.SetupWriter(&buf, "info", "xml"); err == nil {
		t.Fatal("bad format accepted")
	}
}
