package adapters

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"depmend/internal/ports"
	"depmend/internal/types"
)

// FileAuditTrail is an append-only JSONL event log. Sequence numbers
// are assigned under a mutex, strictly increase, and are never reused;
// there is no update or delete path. On open, the highest sequence in
// the existing file seeds the counter so restarts never regress it.
type FileAuditTrail struct {
	path string

	mu       sync.Mutex
	sequence uint64
	file     *os.File
	Clock    func() time.Time
}

func OpenFileAuditTrail(path string) (*FileAuditTrail, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot create audit trail directory").
			WithCause(err)
	}
	trail := &FileAuditTrail{path: path, Clock: time.Now}

	existing, err := trail.All()
	if err != nil {
		return nil, err
	}
	for _, event := range existing {
		if event.Sequence > trail.sequence {
			trail.sequence = event.Sequence
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("cannot open audit trail %s", path)).
			WithCause(err)
	}
	trail.file = file
	return trail, nil
}

func (t *FileAuditTrail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

func (t *FileAuditTrail) Append(eventType types.AuditEventType, correlationID string, actor string, payload map[string]string) (types.AuditEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return types.AuditEvent{}, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("audit trail is closed")
	}

	t.sequence++
	event := types.AuditEvent{
		Sequence:      t.sequence,
		CorrelationID: correlationID,
		Type:          eventType,
		Timestamp:     t.Clock().UTC(),
		Actor:         actor,
		Payload:       payload,
	}
	line, err := json.Marshal(event)
	if err != nil {
		return types.AuditEvent{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot encode audit event").
			WithCause(err)
	}
	if _, err := t.file.Write(append(line, '\n')); err != nil {
		return types.AuditEvent{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot append audit event").
			WithCause(err)
	}
	if err := t.file.Sync(); err != nil {
		return types.AuditEvent{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot sync audit trail").
			WithCause(err)
	}
	return event, nil
}

// Query replays one attempt's lifecycle in sequence order.
func (t *FileAuditTrail) Query(correlationID string) ([]types.AuditEvent, error) {
	all, err := t.All()
	if err != nil {
		return nil, err
	}
	var matched []types.AuditEvent
	for _, event := range all {
		if event.CorrelationID == correlationID {
			matched = append(matched, event)
		}
	}
	return matched, nil
}

// All returns every event in file order, which equals sequence order
// for a single-writer trail.
func (t *FileAuditTrail) All() ([]types.AuditEvent, error) {
	file, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("cannot read audit trail %s", t.path)).
			WithCause(err)
	}
	defer file.Close()

	var events []types.AuditEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event types.AuditEvent
		if err := json.Unmarshal(line, &event); err != nil {
			// A torn final line after a crash is tolerated; anything
			// else would have been written atomically per line.
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("cannot scan audit trail").
			WithCause(err)
	}
	return events, nil
}

var _ ports.AuditTrailPort = (*FileAuditTrail)(nil)
