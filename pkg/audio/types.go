package audio

import "time"

// ToneType labels what the far end of a call produced on the line.
type ToneType string

const (
	ToneModem   ToneType = "modem"
	ToneFax     ToneType = "fax"
	ToneVoice   ToneType = "voice"
	ToneUnknown ToneType = "unknown"
)

// SpectralPeak is a single prominent frequency in the magnitude spectrum.
// Peaks are produced in descending-magnitude order and never persisted.
type SpectralPeak struct {
	FrequencyHz float64 `json:"frequency_hz"`
	Magnitude   float64 `json:"magnitude"`
}

// ToneAnalysisResult is the outcome of classifying one recording.
//
// PeakFrequency is nil when no significant peak was found or when ingest
// failed. Err carries the human-readable ingest cause; a populated Err
// always comes with ToneUnknown and zero confidence so downstream merge
// logic never has to special-case ingest failure versus "no clear tone".
type ToneAnalysisResult struct {
	ToneType      ToneType       `json:"tone_type"`
	PeakFrequency *float64       `json:"peak_frequency,omitempty"`
	Confidence    float64        `json:"confidence"`
	Peaks         []SpectralPeak `json:"all_peaks,omitempty"`
	Err           string         `json:"error,omitempty"`
}

// unknownResult builds the degraded result used for ingest failures.
func unknownResult(cause error) ToneAnalysisResult {
	res := ToneAnalysisResult{
		ToneType:   ToneUnknown,
		Confidence: 0.0,
	}
	if cause != nil {
		res.Err = cause.Error()
	}
	return res
}

// PendingAnalysis tracks one in-flight ingest+analyze job. It is owned
// exclusively by the Scheduler; callers interact with it only through
// Scheduler.TryGet and Scheduler.AwaitAll.
type PendingAnalysis struct {
	CallID      string
	SubmittedAt time.Time

	done   chan struct{}
	result ToneAnalysisResult
}

// Wait blocks until the analysis completes or the timeout elapses. The
// second return value reports whether a result is available.
func (p *PendingAnalysis) Wait(timeout time.Duration) (ToneAnalysisResult, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return p.result, true
	case <-timer.C:
		return ToneAnalysisResult{}, false
	}
}
