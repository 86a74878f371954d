package resume

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wardial-server/pkg/errors"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testEngine() *Engine {
	return NewEngine(NANP(), testLogger())
}

func TestGenerateRange(t *testing.T) {
	engine := testEngine()

	numbers, err := engine.GenerateRange("555-234-56")
	require.NoError(t, err)

	assert.Len(t, numbers, 100)
	assert.Equal(t, "555-234-5600", numbers[0])
	assert.Equal(t, "555-234-5699", numbers[99])
}

func TestGenerateRangeFiltersInvalidCandidates(t *testing.T) {
	engine := testEngine()

	// Completions of 555-21 where the exchange lands on 211 are barred as
	// N11 service codes and silently dropped.
	numbers, err := engine.GenerateRange("555-21")
	require.NoError(t, err)

	assert.Len(t, numbers, 90000)
	for _, n := range numbers {
		assert.NotEqual(t, "555-211", n[:7], "N11 exchange must be filtered: %s", n)
	}
}

func TestGenerateRangeFullNumber(t *testing.T) {
	engine := testEngine()

	numbers, err := engine.GenerateRange("555-234-5678")
	require.NoError(t, err)
	assert.Equal(t, []string{"555-234-5678"}, numbers)
}

func TestGenerateRangeInvalidPattern(t *testing.T) {
	engine := testEngine()

	for _, prefix := range []string{"", "abc", "155", "555-1", "911-234-5678"} {
		_, err := engine.GenerateRange(prefix)
		assert.Error(t, err, "prefix %q must be rejected", prefix)
	}
}

func TestInferPrefix(t *testing.T) {
	engine := testEngine()

	tests := []struct {
		name   string
		dialed []string
		expect string
		ok     bool
	}{
		{
			name:   "common range prefix",
			dialed: []string{"555-234-5600", "555-234-5642", "555-234-5699"},
			expect: "555-234-56",
			ok:     true,
		},
		{
			name:   "stops at first diverging digit",
			dialed: []string{"555-234-5600", "555-234-5799"},
			expect: "555-234-5",
			ok:     true,
		},
		{
			name:   "single number trims back to a range",
			dialed: []string{"555-234-5678"},
			expect: "555-234-56",
			ok:     true,
		},
		{
			name:   "empty set",
			dialed: nil,
			expect: "",
			ok:     false,
		},
		{
			name:   "no common prefix",
			dialed: []string{"212-555-0100", "914-555-0199"},
			expect: "",
			ok:     false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dialed := make(map[string]struct{}, len(tc.dialed))
			for _, n := range tc.dialed {
				dialed[n] = struct{}{}
			}

			prefix, ok := engine.InferPrefix(dialed)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expect, prefix)
		})
	}
}

func TestCalculateRemaining(t *testing.T) {
	engine := testEngine()

	dialed := map[string]struct{}{
		"555-234-5603": {},
		"555-234-5610": {},
		"555-234-5699": {},
	}

	remaining, err := engine.CalculateRemaining("555-234-56", dialed, false)
	require.NoError(t, err)

	assert.Len(t, remaining, 97)
	for _, n := range remaining {
		_, done := dialed[n]
		assert.False(t, done, "remaining must be disjoint from dialed: %s", n)
	}

	// Generation order is preserved when not randomizing.
	assert.Equal(t, "555-234-5600", remaining[0])
	assert.True(t, sort.StringsAreSorted(remaining))
}

func TestCalculateRemainingRandomized(t *testing.T) {
	engine := testEngine()

	dialed := map[string]struct{}{"555-234-5600": {}}

	ordered, err := engine.CalculateRemaining("555-234-56", dialed, false)
	require.NoError(t, err)
	shuffled, err := engine.CalculateRemaining("555-234-56", dialed, true)
	require.NoError(t, err)

	// Same numbers either way.
	require.Len(t, shuffled, len(ordered))
	orderedCopy := append([]string(nil), ordered...)
	shuffledCopy := append([]string(nil), shuffled...)
	sort.Strings(shuffledCopy)
	assert.Equal(t, orderedCopy, shuffledCopy)
}

func writeResultsCSV(t *testing.T, numbers []string) SourceConfig {
	t.Helper()

	path := filepath.Join(t.TempDir(), "results.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	fmt.Fprintln(f, "phone_number,status,timestamp")
	for i, n := range numbers {
		fmt.Fprintf(f, "%s,no_answer,2026-08-23T10:00:%02dZ\n", n, i)
	}
	require.NoError(t, f.Close())

	return SourceConfig{Kind: SourceCSV, Path: path}
}

func TestPrepareResume(t *testing.T) {
	engine := testEngine()
	cfg := writeResultsCSV(t, []string{"555-234-5600", "555-234-5601", "555-234-5699"})

	plan, err := engine.PrepareResume(cfg, "", false)
	require.NoError(t, err)

	assert.Equal(t, "555-234-56", plan.Prefix)
	assert.Equal(t, 3, plan.DialedCount)
	assert.Equal(t, 100, plan.Total)
	assert.Len(t, plan.Remaining, 97)
}

func TestPrepareResumeExplicitPrefix(t *testing.T) {
	engine := testEngine()
	cfg := writeResultsCSV(t, []string{"555-234-5600"})

	plan, err := engine.PrepareResume(cfg, "555-234-56", false)
	require.NoError(t, err)

	assert.Equal(t, "555-234-56", plan.Prefix)
	assert.Len(t, plan.Remaining, 99)
	assert.Equal(t, 100, plan.Total)
}

func TestPrepareResumeEmptyResults(t *testing.T) {
	engine := testEngine()
	cfg := writeResultsCSV(t, nil)

	_, err := engine.PrepareResume(cfg, "", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNothingToResume))
}

func TestPrepareResumeInferenceFailure(t *testing.T) {
	engine := testEngine()
	cfg := writeResultsCSV(t, []string{"212-555-0100", "914-555-0199"})

	_, err := engine.PrepareResume(cfg, "", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPatternInference))
}

func TestPrepareResumeMissingFile(t *testing.T) {
	engine := testEngine()
	cfg := SourceConfig{Kind: SourceCSV, Path: filepath.Join(t.TempDir(), "nope.csv")}

	_, err := engine.PrepareResume(cfg, "", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSourceNotFound))
}
