package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"wardial-server/pkg/errors"

	"github.com/go-audio/wav"
)

const (
	// maxDownloadRetries bounds the exponential retry on transient
	// download failures. Decode failures are never retried.
	maxDownloadRetries = 2

	// maxRecordingBytes guards against a misbehaving recording endpoint
	// streaming unbounded data into memory.
	maxRecordingBytes = 64 << 20
)

// Ingestor downloads call recordings and decodes them to normalized mono
// PCM for the analyzer. It performs blocking network I/O and belongs on a
// worker, never on an interactive thread.
type Ingestor struct {
	client *http.Client
	logger *logrus.Logger
}

// NewIngestor creates an ingestor whose downloads are bounded by timeout.
func NewIngestor(timeout time.Duration, logger *logrus.Logger) *Ingestor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Ingestor{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// FetchAndDecode downloads the recording at url and decodes it into mono
// float64 samples normalized to [-1, 1], returning the samples and the
// container sample rate. Stereo input is downmixed by channel average.
//
// Every failure mode comes back wrapped as ErrIngestFailed; the scheduler
// degrades it to an unknown-tone result rather than letting it cross the
// analysis boundary as a crash.
func (in *Ingestor) FetchAndDecode(ctx context.Context, url string) ([]float64, int, error) {
	body, err := in.download(ctx, url)
	if err != nil {
		return nil, 0, errors.NewIngestFailed(err, url)
	}

	samples, sampleRate, err := decodeWAV(body)
	if err != nil {
		return nil, 0, errors.NewIngestFailed(err, url)
	}

	in.logger.WithFields(logrus.Fields{
		"url":         url,
		"samples":     len(samples),
		"sample_rate": sampleRate,
	}).Debug("Recording decoded")

	return samples, sampleRate, nil
}

// download fetches the raw recording bytes with bounded exponential retry.
func (in *Ingestor) download(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := in.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("unexpected status %d fetching recording", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxRecordingBytes))
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxDownloadRetries)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}

	return body, nil
}

// decodeWAV parses a PCM WAV container into normalized mono samples.
func decodeWAV(data []byte) ([]float64, int, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decoding wav container: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, fmt.Errorf("wav container holds no PCM data")
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		samples[i] = sum / float64(channels)
	}

	// Normalize by peak absolute value; a silent buffer stays as-is.
	peak := 0.0
	for _, s := range samples {
		if a := abs(s); a > peak {
			peak = a
		}
	}
	if peak > 0 {
		for i := range samples {
			samples[i] /= peak
		}
	}

	return samples, buf.Format.SampleRate, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
