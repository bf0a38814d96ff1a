package adapters

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depmend/internal/types"
)

func TestFileAuditTrailAppendAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	trail, err := OpenFileAuditTrail(path)
	require.NoError(t, err)
	defer trail.Close()

	first, err := trail.Append(types.EventScanStarted, "corr-1", "scanner", map[string]string{"scope": "all"})
	require.NoError(t, err)
	second, err := trail.Append(types.EventScanCompleted, "corr-1", "scanner", nil)
	require.NoError(t, err)
	_, err = trail.Append(types.EventStateTransition, "corr-2", "orchestrator", nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), first.Sequence)
	assert.Equal(t, uint64(2), second.Sequence)

	events, err := trail.Query("corr-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, types.EventScanStarted, events[0].Type)
	assert.Equal(t, "all", events[0].Payload["scope"])

	all, err := trail.All()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFileAuditTrailSequenceSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	trail, err := OpenFileAuditTrail(path)
	require.NoError(t, err)
	_, err = trail.Append(types.EventScanStarted, "corr-1", "scanner", nil)
	require.NoError(t, err)
	_, err = trail.Append(types.EventScanCompleted, "corr-1", "scanner", nil)
	require.NoError(t, err)
	require.NoError(t, trail.Close())

	reopened, err := OpenFileAuditTrail(path)
	require.NoError(t, err)
	defer reopened.Close()

	event, err := reopened.Append(types.EventStateTransition, "corr-2", "orchestrator", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), event.Sequence)
}

func TestFileAuditTrailConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	trail, err := OpenFileAuditTrail(path)
	require.NoError(t, err)
	defer trail.Close()

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				_, err := trail.Append(types.EventCommandExecuted, "corr", "executor", nil)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	events, err := trail.All()
	require.NoError(t, err)
	require.Len(t, events, writers*perWriter)

	seen := map[uint64]struct{}{}
	for _, event := range events {
		_, duplicate := seen[event.Sequence]
		assert.False(t, duplicate, "sequence %d reused", event.Sequence)
		seen[event.Sequence] = struct{}{}
	}
}

func TestFileAuditTrailToleratesTornFinalLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	trail, err := OpenFileAuditTrail(path)
	require.NoError(t, err)
	_, err = trail.Append(types.EventScanStarted, "corr-1", "scanner", nil)
	require.NoError(t, err)
	require.NoError(t, trail.Close())

	// Simulate a crash mid-append.
	appendRaw(t, path, `{"sequence":2,"correlation_id":"corr-1","ty`)

	reopened, err := OpenFileAuditTrail(path)
	require.NoError(t, err)
	defer reopened.Close()

	events, err := reopened.All()
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func appendRaw(t *testing.T, path string, line string) {
	t.Helper()
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = file.WriteString(line)
	require.NoError(t, err)
	require.NoError(t, file.Close())
}

func TestFileAuditTrailAppendAfterClose(t *testing.T) {
	trail, err := OpenFileAuditTrail(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	require.NoError(t, trail.Close())

	_, err = trail.Append(types.EventScanStarted, "corr", "scanner", nil)
	require.Error(t, err)
}
