package resume

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"wardial-server/pkg/errors"
	"wardial-server/pkg/metrics"
)

// Engine reconstructs dialing ranges and remaining-work lists from a
// numbering plan and previously recorded results. Each method call is a
// pure transformation over its inputs; the engine itself holds no
// session state and may serve independent sessions concurrently as long
// as each session supplies its own storage handle.
type Engine struct {
	plan   Plan
	logger *logrus.Logger
}

// NewEngine creates a range engine for the given numbering plan.
func NewEngine(plan Plan, logger *logrus.Logger) *Engine {
	return &Engine{plan: plan, logger: logger}
}

// ResumePlan is the prepared state for continuing an interrupted session.
type ResumePlan struct {
	// Prefix is the effective (explicit or inferred) dialing prefix.
	Prefix string

	// Remaining lists the numbers still to dial, in generation order or
	// uniformly shuffled.
	Remaining []string

	// Total is the session size: remaining plus already dialed.
	Total int

	// DialedCount is how many numbers the source recorded as attempted.
	DialedCount int
}

// GenerateRange enumerates every formatted, plan-valid completion of a
// digit prefix. Candidates failing the plan rules are filtered silently;
// that is expected, not an error, since leading-digit rules legitimately
// remove a large slice of any range. A full-length prefix validates
// alone, and an invalid one is reported as an error rather than an empty
// list so a user-supplied complete number never looks like a finished
// session.
func (e *Engine) GenerateRange(prefix string) ([]string, error) {
	digits := e.plan.NormalizePattern(prefix)
	if err := e.plan.ValidatePattern(digits); err != nil {
		return nil, err
	}

	if len(digits) == e.plan.TargetLength {
		if err := e.plan.ValidateNumber(digits); err != nil {
			return nil, err
		}
		return []string{e.plan.Format(digits)}, nil
	}

	digitsNeeded := e.plan.TargetLength - len(digits)
	combinations := 1
	for i := 0; i < digitsNeeded; i++ {
		combinations *= 10
	}

	numbers := make([]string, 0, combinations)
	filtered := 0
	for i := 0; i < combinations; i++ {
		candidate := digits + fmt.Sprintf("%0*d", digitsNeeded, i)
		if err := e.plan.ValidateNumber(candidate); err != nil {
			filtered++
			continue
		}
		numbers = append(numbers, e.plan.Format(candidate))
	}

	metrics.RangeNumbersGenerated.Add(float64(combinations))
	metrics.RangeNumbersFiltered.Add(float64(filtered))

	if filtered > 0 {
		e.logger.WithFields(logrus.Fields{
			"prefix":   prefix,
			"filtered": filtered,
			"kept":     len(numbers),
		}).Debug("Filtered plan-invalid candidates from range")
	}

	return numbers, nil
}

// InferPrefix derives the dialing prefix from a bag of already-dialed
// numbers: the longest common character prefix of the lexicographic
// first and last elements. When that common prefix is itself one
// complete number, it is trimmed back by two characters (or one, if two
// would leave fewer than two digits) to recover a usable range prefix.
// Returns false on an empty set or when no meaningful prefix exists.
func (e *Engine) InferPrefix(dialed map[string]struct{}) (string, bool) {
	if len(dialed) == 0 {
		return "", false
	}

	sorted := make([]string, 0, len(dialed))
	for n := range dialed {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	first, last := sorted[0], sorted[len(sorted)-1]
	common := ""
	for i := 0; i < len(first) && i < len(last); i++ {
		if first[i] != last[i] {
			break
		}
		common = first[:i+1]
	}
	common = strings.TrimSuffix(common, "-")

	// A full-length common prefix means every dialed number was the same
	// number; back off to a prefix that denotes a sensible range.
	if len(e.plan.NormalizePattern(common)) == e.plan.TargetLength {
		for _, trim := range []int{2, 1} {
			candidate := common
			if len(common) > trim {
				candidate = common[:len(common)-trim]
			}
			candidate = strings.TrimSuffix(candidate, "-")
			if len(e.plan.NormalizePattern(candidate)) >= 2 {
				return candidate, true
			}
		}
	}

	if len(e.plan.NormalizePattern(common)) >= 2 {
		return common, true
	}

	return "", false
}

// CalculateRemaining subtracts the dialed set from the prefix's full
// range, preserving generation order unless randomize asks for a uniform
// shuffle. The result is always disjoint from dialed.
func (e *Engine) CalculateRemaining(prefix string, dialed map[string]struct{}, randomize bool) ([]string, error) {
	all, err := e.GenerateRange(prefix)
	if err != nil {
		return nil, err
	}

	remaining := make([]string, 0, len(all))
	for _, number := range all {
		if _, done := dialed[number]; !done {
			remaining = append(remaining, number)
		}
	}

	if randomize {
		rand.Shuffle(len(remaining), func(i, j int) {
			remaining[i], remaining[j] = remaining[j], remaining[i]
		})
	}

	e.logger.WithFields(logrus.Fields{
		"prefix":    prefix,
		"total":     len(all),
		"dialed":    len(dialed),
		"remaining": len(remaining),
	}).Info("Calculated remaining numbers")

	return remaining, nil
}

// PrepareResume composes source reading, prefix inference and remaining
// calculation into the state a dialing loop needs to continue a session.
// An empty dialed set and an un-inferable prefix are both fatal usage
// errors carrying enough context for the CLI to print an actionable
// message; neither ever degrades into a silently empty work list.
func (e *Engine) PrepareResume(cfg SourceConfig, prefix string, randomize bool) (*ResumePlan, error) {
	source, err := NewSource(cfg, e.logger)
	if err != nil {
		metrics.ResumePreparations.WithLabelValues("error").Inc()
		return nil, err
	}

	dialed, err := source.ReadDialedNumbers()
	if err != nil {
		metrics.ResumePreparations.WithLabelValues("error").Inc()
		return nil, err
	}

	if len(dialed) == 0 {
		metrics.ResumePreparations.WithLabelValues("empty").Inc()
		return nil, errors.Wrap(errors.ErrNothingToResume,
			fmt.Sprintf("results at %s record no dialed numbers", cfg.Path)).
			WithField("path", cfg.Path)
	}

	if prefix == "" {
		inferred, ok := e.InferPrefix(dialed)
		if !ok {
			metrics.ResumePreparations.WithLabelValues("error").Inc()
			return nil, errors.Wrap(errors.ErrPatternInference,
				"provide an explicit prefix to resume this session").
				WithField("path", cfg.Path).
				WithField("dialed_count", len(dialed))
		}
		prefix = inferred
		e.logger.WithField("prefix", prefix).Info("Inferred dialing prefix")
	}

	remaining, err := e.CalculateRemaining(prefix, dialed, randomize)
	if err != nil {
		metrics.ResumePreparations.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.ResumePreparations.WithLabelValues("ok").Inc()

	return &ResumePlan{
		Prefix:      prefix,
		Remaining:   remaining,
		Total:       len(remaining) + len(dialed),
		DialedCount: len(dialed),
	}, nil
}
