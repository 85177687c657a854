package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestConfigure_Level(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		Configure(Options{Level: in, Format: "json"})
		if got := zerolog.GlobalLevel(); got != want {
			t.Errorf("level %q: want %s, got %s", in, want, got)
		}
	}
}
