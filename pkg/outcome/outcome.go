// Package outcome assembles call-result records from the telephony
// backend's raw view of a call and the analysis core's signal
// classification. Records are built in stages rather than mutated in
// place, so each field has exactly one writer.
package outcome

import (
	"time"

	"wardial-server/pkg/audio"
)

// Status is the dialer-level disposition of a call attempt.
type Status string

const (
	StatusModem    Status = "modem"
	StatusFax      Status = "fax"
	StatusPerson   Status = "person"
	StatusBusy     Status = "busy"
	StatusNoAnswer Status = "no_answer"
	StatusError    Status = "error"
)

// Outcome is one dialed number's result. The AnsweredBy field is the
// telephony backend's answering-machine-detection hint and is kept as
// provenance: tone analysis overwrites the signal-derived fields
// (ToneType, PeakFrequency, Confidence, CarrierDetected) but never the
// human/machine determination, even when the two disagree.
type Outcome struct {
	PhoneNumber string    `json:"phone_number"`
	Status      Status    `json:"status"`
	Success     bool      `json:"success"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`

	// Backend-supplied fields.
	AnsweredBy        string  `json:"answered_by,omitempty"`
	AMDDuration       float64 `json:"amd_duration,omitempty"`
	RecordingURL      string  `json:"recording_url,omitempty"`
	RecordingDuration float64 `json:"recording_duration,omitempty"`

	// Signal-derived fields, owned by the tone analysis.
	CarrierDetected bool           `json:"carrier_detected"`
	ToneType        audio.ToneType `json:"tone_type,omitempty"`
	PeakFrequency   *float64       `json:"peak_frequency,omitempty"`
	Confidence      float64        `json:"confidence,omitempty"`
	AnalysisError   string         `json:"analysis_error,omitempty"`
}

// New starts an outcome record from the backend's raw dial result.
func New(phoneNumber string, status Status, success bool, message string) Outcome {
	return Outcome{
		PhoneNumber: phoneNumber,
		Status:      status,
		Success:     success,
		Message:     message,
		Timestamp:   time.Now(),
	}
}

// WithAMDHint attaches the backend's answering-machine-detection result.
func (o Outcome) WithAMDHint(answeredBy string, amdDuration float64) Outcome {
	o.AnsweredBy = answeredBy
	o.AMDDuration = amdDuration
	return o
}

// WithRecording attaches the recording reference handed to the analysis
// scheduler.
func (o Outcome) WithRecording(url string, duration float64) Outcome {
	o.RecordingURL = url
	o.RecordingDuration = duration
	return o
}

// WithToneAnalysis returns a copy enriched with the classifier's result.
// The signal fields are overwritten wholesale; CarrierDetected is set
// when the signal says modem or fax and is never cleared by a weaker
// result; AnsweredBy is left untouched by construction.
func (o Outcome) WithToneAnalysis(res audio.ToneAnalysisResult) Outcome {
	o.ToneType = res.ToneType
	o.PeakFrequency = res.PeakFrequency
	o.Confidence = res.Confidence
	o.AnalysisError = res.Err

	if res.ToneType == audio.ToneModem || res.ToneType == audio.ToneFax {
		o.CarrierDetected = true
	}

	return o
}
