package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, "text")
	t.Cleanup(func() {
		Configure(os.Stderr, "text")
		SetLogLevel("INFO")
	})

	SetLogLevel("WARN")
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "level=WARN")
}

func TestJSONFormatWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, "json")
	t.Cleanup(func() { Configure(os.Stderr, "text") })
	SetLogLevel("DEBUG")
	t.Cleanup(func() { SetLogLevel("INFO") })

	With("library", "demo").Debug("ping")

	assert.Contains(t, buf.String(), `"library":"demo"`)
	assert.Contains(t, buf.String(), `"msg":"ping"`)
}
