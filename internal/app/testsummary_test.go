package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTestSummary(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   testSummary
	}{
		{
			name:   "all passing",
			output: "============ 45 passed in 2.34s ============",
			want:   testSummary{passed: 45},
		},
		{
			name:   "failures and passes",
			output: "3 failed, 45 passed in 2.34s",
			want:   testSummary{failed: 3, passed: 45},
		},
		{
			name:   "errors counted separately",
			output: "2 failed, 40 passed, 1 error in 5.00s",
			want:   testSummary{failed: 2, passed: 40, errored: 1},
		},
		{
			name: "last summary line wins over per-test noise",
			output: "test_api.py::test_login FAILED\n" +
				"assert 1 passed is not what happened\n" +
				"1 failed, 9 passed in 0.50s",
			want: testSummary{failed: 1, passed: 9},
		},
		{
			name:   "no counts at all",
			output: "internal error: plugin crashed before collection",
			want:   testSummary{},
		},
		{
			name:   "empty output",
			output: "",
			want:   testSummary{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseTestSummary(tt.output))
		})
	}
}

func TestFailureRate(t *testing.T) {
	assert.Equal(t, 0.0, testSummary{}.failureRate())
	assert.Equal(t, 0.0, testSummary{passed: 50}.failureRate())
	assert.Equal(t, 0.1, testSummary{failed: 1, passed: 9}.failureRate())
	// Errored tests count as failures.
	assert.Equal(t, 0.2, testSummary{failed: 1, errored: 1, passed: 8}.failureRate())
	assert.Equal(t, 1.0, testSummary{failed: 4}.failureRate())
}

func TestSummaryTotal(t *testing.T) {
	assert.Equal(t, 0, testSummary{}.total())
	assert.Equal(t, 12, testSummary{failed: 2, passed: 9, errored: 1}.total())
}
