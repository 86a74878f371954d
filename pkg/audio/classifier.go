package audio

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Frequency bands for the tones a dialer cares about. The fax CNG/CED
// frequencies and the V.22 handshake tones are fixed by the relevant
// ITU-T standards; the general carrier range covers the rest of the
// modem handshake family.
const (
	faxCNGFrequency   = 1100.0 // Hz, fax calling tone
	faxCEDFrequency   = 2100.0 // Hz, fax called-station identification
	modemV22Answer    = 2400.0 // Hz, V.22 answer tone
	modemV22Originate = 1200.0 // Hz, V.22 originate tone

	modemRangeLow  = 1650.0 // Hz, general carrier range (excludes CED)
	modemRangeHigh = 2400.0

	frequencyTolerance  = 50.0 // Hz, matching window around each band center
	confidenceThreshold = 0.7  // floor for a band hit

	voiceRangeLow  = 300.0 // Hz, telephone voice band
	voiceRangeHigh = 3400.0
)

// Classify maps a ranked peak list to a tone category with a confidence
// score. The band rules are checked in a fixed precedence order: the fax
// CNG tone pre-empts the nearby V.22 originate band, and a CED primary
// with a CNG companion peak is fax rather than modem. Callers must not
// reorder these checks.
func Classify(peaks []SpectralPeak) ToneAnalysisResult {
	if len(peaks) == 0 {
		return ToneAnalysisResult{
			ToneType:   ToneUnknown,
			Confidence: 0.0,
		}
	}

	primary := peaks[0].FrequencyHz
	toneType, confidence := classifyPrimary(primary, peaks)

	return ToneAnalysisResult{
		ToneType:      toneType,
		PeakFrequency: &primary,
		Confidence:    confidence,
		Peaks:         peaks,
	}
}

func classifyPrimary(primary float64, peaks []SpectralPeak) (ToneType, float64) {
	// Fax CNG tone (1100 Hz).
	if math.Abs(primary-faxCNGFrequency) < frequencyTolerance {
		confidence := 1.0 - math.Abs(primary-faxCNGFrequency)/frequencyTolerance
		return ToneFax, math.Max(confidence, confidenceThreshold)
	}

	// Fax CED tone (2100 Hz). Ambiguous with the V.22bis answer tone on
	// its own; a CNG companion peak settles it as fax.
	if math.Abs(primary-faxCEDFrequency) < frequencyTolerance {
		for _, p := range peaks {
			if math.Abs(p.FrequencyHz-faxCNGFrequency) < frequencyTolerance {
				return ToneFax, 0.9
			}
		}
		return ToneModem, 0.75
	}

	// V.22 originate tone (1200 Hz).
	if math.Abs(primary-modemV22Originate) < frequencyTolerance {
		confidence := 1.0 - math.Abs(primary-modemV22Originate)/frequencyTolerance
		return ToneModem, math.Max(confidence, confidenceThreshold)
	}

	// V.22 answer tone (2400 Hz).
	if math.Abs(primary-modemV22Answer) < frequencyTolerance {
		confidence := 1.0 - math.Abs(primary-modemV22Answer)/frequencyTolerance
		return ToneModem, math.Max(confidence, confidenceThreshold)
	}

	// General modem carrier range, excluding the CED zone handled above.
	if primary >= modemRangeLow && primary <= modemRangeHigh {
		if math.Abs(primary-faxCEDFrequency) > frequencyTolerance {
			rangeCenter := (modemRangeLow + modemRangeHigh) / 2
			maxDistance := (modemRangeHigh - modemRangeLow) / 2
			confidence := 1.0 - (math.Abs(primary-rangeCenter)/maxDistance)*0.3
			return ToneModem, math.Max(confidence, confidenceThreshold)
		}
	}

	// Voice: several peaks spread across the telephone band rather than
	// concentrated on one frequency.
	voiceFreqs := make([]float64, 0, len(peaks))
	for _, p := range peaks {
		if p.FrequencyHz >= voiceRangeLow && p.FrequencyHz <= voiceRangeHigh {
			voiceFreqs = append(voiceFreqs, p.FrequencyHz)
		}
	}
	if len(voiceFreqs) >= 3 {
		top := voiceFreqs
		if len(top) > 5 {
			top = top[:5]
		}
		if stat.PopStdDev(top, nil) > 300 {
			return ToneVoice, 0.75
		}
	}

	if primary >= voiceRangeLow && primary <= voiceRangeHigh {
		return ToneVoice, 0.6
	}

	return ToneUnknown, 0.0
}
