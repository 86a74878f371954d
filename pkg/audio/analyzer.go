package audio

import (
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Peak search tunables. A candidate peak must clear a fraction of the
// global maximum magnitude and keep a minimum spacing from stronger
// peaks already accepted, so a single wide carrier lobe does not show
// up as several adjacent "peaks".
const (
	// minPeakHeightRatio is the minimum peak height relative to the
	// strongest bin in the spectrum.
	minPeakHeightRatio = 0.1

	// minPeakSeparationHz is the minimum spacing between accepted peaks.
	minPeakSeparationHz = 100.0

	// maxPeaks caps how many peaks Analyze returns.
	maxPeaks = 5
)

// Analyze computes the magnitude spectrum of a mono sample buffer and
// returns its most prominent peaks, strongest first, capped at maxPeaks.
//
// Samples are expected to be normalized to [-1, 1]; ingest takes care of
// downmixing and scaling. An empty return value means no peak cleared the
// height threshold, which is a valid outcome and distinct from an ingest
// error. Analyze has no side effects and is safe to call concurrently.
func Analyze(samples []float64, sampleRate int) []SpectralPeak {
	if len(samples) < 2 || sampleRate <= 0 {
		return nil
	}

	n := len(samples)
	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, samples)

	// Positive frequencies only. Bin 0 is DC; for even n the last
	// coefficient sits exactly at Nyquist and is kept.
	magnitudes := make([]float64, 0, len(coeffs)-1)
	freqs := make([]float64, 0, len(coeffs)-1)
	binWidth := float64(sampleRate) / float64(n)
	for k := 1; k < len(coeffs); k++ {
		magnitudes = append(magnitudes, cmplx.Abs(coeffs[k]))
		freqs = append(freqs, float64(k)*binWidth)
	}

	maxMag := 0.0
	for _, m := range magnitudes {
		if m > maxMag {
			maxMag = m
		}
	}
	if maxMag == 0 {
		return nil
	}

	minHeight := maxMag * minPeakHeightRatio
	minSepBins := int(minPeakSeparationHz / binWidth)
	if minSepBins < 1 {
		minSepBins = 1
	}

	// Local maxima above the height threshold.
	candidates := make([]int, 0, 16)
	for i := 1; i < len(magnitudes)-1; i++ {
		if magnitudes[i] < minHeight {
			continue
		}
		if magnitudes[i] > magnitudes[i-1] && magnitudes[i] >= magnitudes[i+1] {
			candidates = append(candidates, i)
		}
	}

	// Strongest candidates win; anything within the separation window of
	// an already accepted peak is discarded.
	sort.SliceStable(candidates, func(a, b int) bool {
		return magnitudes[candidates[a]] > magnitudes[candidates[b]]
	})

	accepted := make([]int, 0, len(candidates))
	for _, idx := range candidates {
		tooClose := false
		for _, kept := range accepted {
			diff := idx - kept
			if diff < 0 {
				diff = -diff
			}
			if diff < minSepBins {
				tooClose = true
				break
			}
		}
		if !tooClose {
			accepted = append(accepted, idx)
		}
	}

	if len(accepted) > maxPeaks {
		accepted = accepted[:maxPeaks]
	}

	peaks := make([]SpectralPeak, 0, len(accepted))
	for _, idx := range accepted {
		peaks = append(peaks, SpectralPeak{
			FrequencyHz: freqs[idx],
			Magnitude:   magnitudes[idx],
		})
	}

	return peaks
}
