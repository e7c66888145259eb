package process

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infer-mli/src/internal/types"
)

func TestStartProcessSpawnFailure(t *testing.T) {
	pm := NewLSPProcessManager()

	info, err := pm.StartProcess(types.ClientConfig{
		Command:       "definitely-not-a-language-server-binary",
		WorkspaceRoot: t.TempDir(),
	})
	require.Error(t, err)
	assert.Nil(t, info)
}

func TestStopProcessNilSafe(t *testing.T) {
	pm := NewLSPProcessManager()
	assert.NoError(t, pm.StopProcess(nil, nil))
}

func TestCleanupProcessNilSafe(t *testing.T) {
	pm := NewLSPProcessManager()
	assert.NotPanics(t, func() { pm.CleanupProcess(nil) })
}

func TestMonitorProcessInvalidInfo(t *testing.T) {
	pm := NewLSPProcessManager()

	var reported error
	pm.MonitorProcess(nil, func(err error) { reported = err })
	assert.Error(t, reported)
}

func TestStartAndStopProcess(t *testing.T) {
	pm := NewLSPProcessManager()

	// cat waits on stdin, which is close enough to a stdio language server
	// for lifecycle purposes.
	info, err := pm.StartProcess(types.ClientConfig{
		Command:       "cat",
		WorkspaceRoot: t.TempDir(),
	})
	require.NoError(t, err)
	require.NotNil(t, info)
	require.NotNil(t, info.Stdin)
	require.NotNil(t, info.Stdout)

	assert.NoError(t, pm.StopProcess(info, nil))

	select {
	case <-info.StopCh:
	default:
		t.Fatal("StopCh must be closed after StopProcess")
	}

	// A second stop on an already-stopped process is a no-op.
	assert.NotPanics(t, func() { pm.StopProcess(info, nil) })
}

func TestConcurrentStopSignals(t *testing.T) {
	info := &ProcessInfo{StopCh: make(chan struct{})}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info.markStopped()
		}()
	}
	wg.Wait()

	select {
	case <-info.StopCh:
	default:
		t.Fatal("StopCh must be closed")
	}
}
