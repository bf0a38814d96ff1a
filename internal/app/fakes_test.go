package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"depmend/internal/ports"
	"depmend/internal/types"
)

func testClock() time.Time {
	return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
}

type memTrail struct {
	mu       sync.Mutex
	sequence uint64
	events   []types.AuditEvent
}

func (m *memTrail) Append(eventType types.AuditEventType, correlationID string, actor string, payload map[string]string) (types.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence++
	event := types.AuditEvent{
		Sequence:      m.sequence,
		CorrelationID: correlationID,
		Type:          eventType,
		Timestamp:     testClock().Add(time.Duration(m.sequence) * time.Second),
		Actor:         actor,
		Payload:       payload,
	}
	m.events = append(m.events, event)
	return event, nil
}

func (m *memTrail) Query(correlationID string) ([]types.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []types.AuditEvent
	for _, event := range m.events {
		if event.CorrelationID == correlationID {
			matched = append(matched, event)
		}
	}
	return matched, nil
}

func (m *memTrail) All() ([]types.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.AuditEvent(nil), m.events...), nil
}

func (m *memTrail) ofType(eventType types.AuditEventType) []types.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []types.AuditEvent
	for _, event := range m.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

// memManifest keeps the rendered manifest bytes so byte-identity after
// a rollback can be asserted.
type memManifest struct {
	mu     sync.Mutex
	data   []byte
	writes int
}

func newMemManifest(manifest types.Manifest) *memManifest {
	return &memManifest{data: manifest.Render()}
}

func (m *memManifest) Read() (types.Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.ParseManifest(m.data)
}

func (m *memManifest) WriteAtomic(manifest types.Manifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = manifest.Render()
	m.writes++
	return nil
}

func (m *memManifest) bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

type memBackups struct {
	mu        sync.Mutex
	snapshots map[string]types.EnvironmentSnapshot
	attempts  map[string]string
	saveErr   error
	loadErr   error
}

func newMemBackups() *memBackups {
	return &memBackups{
		snapshots: map[string]types.EnvironmentSnapshot{},
		attempts:  map[string]string{},
	}
}

func (m *memBackups) Save(snapshot types.EnvironmentSnapshot, attemptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.snapshots[snapshot.BackupID] = snapshot
	m.attempts[snapshot.BackupID] = attemptID
	return nil
}

func (m *memBackups) Load(backupID string) (types.EnvironmentSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return types.EnvironmentSnapshot{}, m.loadErr
	}
	return m.snapshots[backupID], nil
}

func (m *memBackups) List() ([]types.SnapshotInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var infos []types.SnapshotInfo
	for id, snapshot := range m.snapshots {
		infos = append(infos, types.SnapshotInfo{
			BackupID:     id,
			AttemptID:    m.attempts[id],
			PackageCount: len(snapshot.Manifest),
			CreatedAt:    snapshot.CreatedAt,
		})
	}
	return infos, nil
}

func (m *memBackups) Delete(backupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, backupID)
	delete(m.attempts, backupID)
	return nil
}

// fakeExecutor scripts subprocess behavior per pipeline phase without
// spawning anything.
type fakeExecutor struct {
	mu    sync.Mutex
	calls []ports.CommandSpec

	installResult ports.CommandResult
	installErr    error
	checkResult   ports.CommandResult
	testResult    ports.CommandResult
	testErr       error
	restoreErr    error
	restoreResult ports.CommandResult
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		testResult: ports.CommandResult{Stdout: "45 passed in 1.20s", ExitCode: 0},
	}
}

func (f *fakeExecutor) Run(_ context.Context, spec ports.CommandSpec) (ports.CommandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, spec)
	f.mu.Unlock()

	switch f.phase(spec) {
	case "restore":
		return f.restoreResult, f.restoreErr
	case "install":
		return f.installResult, f.installErr
	case "check":
		return f.checkResult, nil
	case "test":
		return f.testResult, f.testErr
	default:
		return ports.CommandResult{}, nil
	}
}

func (f *fakeExecutor) phase(spec ports.CommandSpec) string {
	joined := joinArgs(spec)
	switch {
	case strings.Contains(joined, "--force-reinstall"):
		return "restore"
	case strings.Contains(joined, "pip install"):
		return "install"
	case strings.Contains(joined, "pip check"):
		return "check"
	case spec.Command == "pytest":
		return "test"
	default:
		return "other"
	}
}

func (f *fakeExecutor) callsMatching(fragment string) []ports.CommandSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []ports.CommandSpec
	for _, spec := range f.calls {
		if strings.Contains(spec.Command+" "+joinArgs(spec), fragment) {
			matched = append(matched, spec)
		}
	}
	return matched
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func joinArgs(spec ports.CommandSpec) string {
	values := make([]string, 0, len(spec.Args))
	for _, arg := range spec.Args {
		values = append(values, arg.Value)
	}
	return strings.Join(values, " ")
}

// fakeProvider returns canned audit-tool JSON per scope.
type fakeProvider struct {
	mu        sync.Mutex
	reports   map[string][]byte
	fallback  []byte
	scanCount int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{reports: map[string][]byte{}, fallback: []byte(`{"dependencies": []}`)}
}

func (f *fakeProvider) RawReport(_ context.Context, scope string, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanCount++
	if report, ok := f.reports[scope]; ok {
		return report, nil
	}
	return f.fallback, nil
}
