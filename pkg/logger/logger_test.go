package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestModuleField(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, InfoLevel).Module("dispatcher")
	log.Debug().Msg("hidden")
	log.Info().Str("kind", "video").Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not a single json line: %q", buf.String())
	}
	if line["m"] != "dispatcher" || line["kind"] != "video" || line["message"] != "hello" {
		t.Errorf("unexpected fields %v", line)
	}
}

func TestLevels(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{TraceLevel, "trace"},
		{DebugLevel, "debug"},
		{InfoLevel, "info"},
		{Disabled, "disabled"},
		{Level(42), "42"},
	}
	for _, test := range tests {
		if got := test.level.String(); got != test.want {
			t.Errorf("%v != %v", got, test.want)
		}
	}
	if !NewWriter(&bytes.Buffer{}, DebugLevel).Enabled(InfoLevel) {
		t.Errorf("info should be enabled at debug level")
	}
}
