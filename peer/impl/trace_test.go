package impl

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_TRACE_Disabled(t *testing.T) {
	tr := newTracer("", "node")
	require.Nil(t, tr)

	// no-op on a nil tracer
	tr.event("send %s", "PING")
}

func Test_TRACE_WritesLog(t *testing.T) {
	dir := t.TempDir()

	tr := newTracer(filepath.Join(dir, "trace"), "node")
	require.NotNil(t, tr)

	tr.event("send %s to %s", "PING", "127.0.0.1:1")
	tr.event("recv %s from %s", "PONG", "127.0.0.1:1")

	files, err := filepath.Glob(filepath.Join(dir, "trace-node*"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
}
