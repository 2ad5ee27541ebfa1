package log

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "prod")
	logger.Debug().Msg("скрыто")
	if buf.Len() != 0 {
		t.Fatalf("debug не должен писаться вне dev")
	}
	chatLog := Component(logger, "chat")
	chatLog.Info().Msg("видно")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ожидали JSON: %v", err)
	}
	if entry["component"] != "chat" || entry["service"] != "vibeailife" {
		t.Fatalf("неожиданные поля: %v", entry)
	}

	buf.Reset()
	devLog := newLogger(&buf, "dev")
	devLog.Debug().Msg("debug")
	if buf.Len() == 0 {
		t.Fatalf("в dev debug должен писаться")
	}
}
