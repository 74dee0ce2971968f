package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_PlainWhenNotTTY(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRenderer(&out, &errOut, ModeAuto)

	assert.False(t, r.IsTTY())
	assert.Equal(t, ModeText, r.EffectiveMode())

	r.Header("Summary")
	r.KeyValue("scripts", 3)
	r.Success("done")
	r.Warning("slow")
	r.Error("broken")

	assert.Equal(t, "Summary\n  scripts: 3\nok done\n", out.String())
	assert.Equal(t, "warning: slow\nFAIL broken\n", errOut.String())
	assert.NotContains(t, out.String(), "\x1b[")
}

func TestRenderer_JSON(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, &bytes.Buffer{}, ModeJSON)
	assert.Equal(t, ModeJSON, r.EffectiveMode())

	require.NoError(t, r.JSON(map[string]int{"records": 2}))
	assert.Equal(t, "{\n  \"records\": 2\n}\n", out.String())
}

func TestNewRenderer_DefaultMode(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, "")
	assert.Equal(t, ModeText, r.EffectiveMode())
	assert.NotNil(t, r.Styles())
	assert.NotNil(t, r.Writer())
}
