package app

import (
	"regexp"
	"strconv"
	"strings"
)

// testSummary holds the counts parsed from a test runner's trailing
// summary line, e.g. "3 failed, 45 passed in 2.34s".
type testSummary struct {
	failed  int
	passed  int
	errored int
}

var summaryCountPattern = regexp.MustCompile(`(\d+)\s+(failed|passed|error(?:s)?)`)

func parseTestSummary(output string) testSummary {
	var summary testSummary
	// The summary is the last line mentioning counts; scan bottom-up so
	// per-test noise above it cannot shadow it.
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		matches := summaryCountPattern.FindAllStringSubmatch(lines[i], -1)
		if len(matches) == 0 {
			continue
		}
		for _, match := range matches {
			count, err := strconv.Atoi(match[1])
			if err != nil {
				continue
			}
			switch {
			case match[2] == "failed":
				summary.failed = count
			case match[2] == "passed":
				summary.passed = count
			case strings.HasPrefix(match[2], "error"):
				summary.errored = count
			}
		}
		return summary
	}
	return summary
}

func (s testSummary) total() int {
	return s.failed + s.passed + s.errored
}

// failureRate treats errored tests as failures. With no parseable
// counts the rate is 0; the exit code still gates the attempt.
func (s testSummary) failureRate() float64 {
	total := s.failed + s.passed + s.errored
	if total == 0 {
		return 0
	}
	return float64(s.failed+s.errored) / float64(total)
}
