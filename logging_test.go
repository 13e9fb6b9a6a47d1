package gpuparticles

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLoggerDebugToggle(t *testing.T) {
	var out bytes.Buffer
	l := NewDefaultLogger("sim", false)
	l.out = log.New(&out, "", 0)

	l.Debugf("hidden %d", 1)
	assert.Empty(t, out.String())

	l.SetDebug(true)
	assert.True(t, l.DebugEnabled())
	l.Debugf("shown %d", 2)
	l.Infof("ready")
	assert.Equal(t, "[sim] DEBUG: shown 2\n[sim] INFO: ready\n", out.String())

	l.SetDebug(false)
	out.Reset()
	l.Debugf("hidden again")
	assert.Empty(t, out.String())
}
