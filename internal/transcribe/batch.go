package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/callwarden/callwarden/internal/common"
	"github.com/callwarden/callwarden/internal/model"
	"github.com/callwarden/callwarden/internal/service"
)

// BatchConfig configures the batch transcription client.
type BatchConfig struct {
	Endpoint     string
	APIKey       string
	PollInterval time.Duration
	Timeout      time.Duration
}

// BatchClient implements service.BatchTranscriber against a job-based HTTP
// transcription API: submit the audio URL, poll until the job completes,
// map the flat word array. Words typed "spacing" carry no speech and are
// dropped.
type BatchClient struct {
	httpClient   *http.Client
	endpoint     string
	apiKey       string
	pollInterval time.Duration
}

// NewBatchClient creates a batch transcription client.
func NewBatchClient(cfg BatchConfig) *BatchClient {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &BatchClient{
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		endpoint:     cfg.Endpoint,
		apiKey:       cfg.APIKey,
		pollInterval: cfg.PollInterval,
	}
}

type batchJob struct {
	ID       string     `json:"id"`
	Status   string     `json:"status"`
	Error    string     `json:"error,omitempty"`
	Language string     `json:"language,omitempty"`
	Words    []wireWord `json:"words,omitempty"`
}

type wireWord struct {
	Text      string  `json:"text"`
	Type      string  `json:"type,omitempty"`
	SpeakerID string  `json:"speaker_id,omitempty"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// Transcribe submits the audio URL and polls until the transcript is ready.
func (c *BatchClient) Transcribe(ctx context.Context, audioURL string) (service.BatchTranscript, error) {
	job, err := c.submit(ctx, audioURL)
	if err != nil {
		return service.BatchTranscript{}, err
	}

	for {
		switch job.Status {
		case "completed":
			return mapTranscript(job), nil
		case "error", "failed":
			return service.BatchTranscript{}, fmt.Errorf("batch transcription job %s failed: %s", job.ID, job.Error)
		}

		select {
		case <-ctx.Done():
			return service.BatchTranscript{}, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		job, err = c.poll(ctx, job.ID)
		if err != nil {
			return service.BatchTranscript{}, err
		}
	}
}

func (c *BatchClient) submit(ctx context.Context, audioURL string) (*batchJob, error) {
	body, err := json.Marshal(map[string]string{"audio_url": audioURL})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transcription request: %w", err)
	}

	var job *batchJob
	err = common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build transcription request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", c.apiKey)

		job, err = c.do(req)
		return err
	}, service.RetryOptions{})
	return job, err
}

func (c *BatchClient) poll(ctx context.Context, jobID string) (*batchJob, error) {
	var job *batchJob
	err := common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/"+jobID, nil)
		if err != nil {
			return fmt.Errorf("failed to build poll request: %w", err)
		}
		req.Header.Set("Authorization", c.apiKey)

		job, err = c.do(req)
		return err
	}, service.RetryOptions{})
	return job, err
}

func (c *BatchClient) do(req *http.Request) (*batchJob, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: transcription API", common.ErrRateLimit)
	case resp.StatusCode >= 500:
		return nil, &common.RetryableError{
			Err:       fmt.Errorf("transcription API returned status %d", resp.StatusCode),
			Retryable: true,
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		// Client errors are not worth retrying.
		return nil, &common.RetryableError{
			Err:       fmt.Errorf("transcription API returned status %d", resp.StatusCode),
			Retryable: false,
		}
	}

	var job batchJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("failed to decode transcription response: %w", err)
	}
	return &job, nil
}

func mapTranscript(job *batchJob) service.BatchTranscript {
	transcript := service.BatchTranscript{Language: job.Language}
	for _, w := range job.Words {
		if w.Type == "spacing" {
			continue
		}
		transcript.Words = append(transcript.Words, model.Word{
			Text:      w.Text,
			Start:     w.Start,
			End:       w.End,
			SpeakerID: w.SpeakerID,
		})
	}
	return transcript
}
