package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestLogWriterFormats(t *testing.T) {
	var buf bytes.Buffer
	assert.Same(t, &buf, logWriter(Config{Format: "json"}, &buf), "json format should write directly to output")

	w := logWriter(Config{Format: "console"}, &buf)
	logger := zerolog.New(w)
	logger.Info().Str("component", "test").Msg("hello")
	require.Contains(t, buf.String(), "hello")
	assert.NotEqual(t, byte('{'), buf.Bytes()[0], "console output should not be json")
}
