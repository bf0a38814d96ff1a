package cli

import (
	"errors"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depmend/internal/types"
)

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "explicit status wins",
			err:  exitStatus{code: exitVulnerabilitiesRemain, message: "vulnerabilities found"},
			want: 1,
		},
		{
			name: "wrapped status unwraps",
			err:  errors.Join(exitStatus{code: exitRolledBack, message: "rolled back"}),
			want: 3,
		},
		{
			name: "invalid argument is a rejection",
			err:  errbuilder.New().WithCode(errbuilder.CodeInvalidArgument).WithMsg("bad name"),
			want: 2,
		},
		{
			name: "duplicate backup is a rejection",
			err:  errbuilder.New().WithCode(errbuilder.CodeAlreadyExists).WithMsg("backup exists"),
			want: 2,
		},
		{
			name: "data loss is fatal",
			err:  errbuilder.New().WithCode(errbuilder.CodeDataLoss).WithMsg("rollback failed"),
			want: 4,
		},
		{
			name: "anything else is fatal",
			err:  errors.New("boom"),
			want: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeForError(tt.err))
		})
	}
}

func TestSeverityFlag(t *testing.T) {
	assert.Equal(t, types.SeverityCritical, severityFlag(" Critical "))
	assert.Equal(t, types.SeverityHigh, severityFlag("HIGH"))
	assert.Equal(t, types.Severity(""), severityFlag(""))
}

func TestParseTimeFlag(t *testing.T) {
	parsed, err := parseTimeFlag("2026-08-24")
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC).Equal(parsed))

	parsed, err = parseTimeFlag("")
	require.NoError(t, err)
	assert.True(t, parsed.IsZero())

	_, err = parseTimeFlag("last tuesday")
	require.Error(t, err)
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()
	var names []string
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"scan", "remediate", "resume", "report", "audit", "prune"} {
		assert.Contains(t, names, want)
	}
}
