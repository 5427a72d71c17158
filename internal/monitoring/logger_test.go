package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })
	Logf("device %s connected")
	assert.Equal(t, "device %s connected", got)

	// nil installs a no-op, not a nil function.
	got = ""
	SetLogger(nil)
	Logf("dropped")
	assert.Empty(t, got)
}

func TestDebugfGatedByVerbose(t *testing.T) {
	original := Logf
	originalVerbose := Verbose
	defer func() {
		Logf = original
		Verbose = originalVerbose
	}()

	calls := 0
	SetLogger(func(format string, v ...interface{}) { calls++ })

	Verbose = false
	Debugf("frame %d", 1)
	assert.Zero(t, calls)

	Verbose = true
	Debugf("frame %d", 2)
	assert.Equal(t, 1, calls)
}
