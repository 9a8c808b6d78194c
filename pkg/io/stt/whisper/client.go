package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xpanvictor/voxcap/pkg/Logger"
	"github.com/xpanvictor/voxcap/pkg/io/stt"
	"github.com/xpanvictor/voxcap/pkg/io/stt/decode"
)

// TranscriptionResponse represents the response from Whisper STT service
type TranscriptionResponse struct {
	Text     string                 `json:"text"`
	Language string                 `json:"language"`
	Segments []TranscriptionSegment `json:"segments,omitempty"`
}

// TranscriptionSegment represents a timed segment of transcription
type TranscriptionSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	ID    int     `json:"id"`
}

// WhisperClient talks to a whisper-asr-webservice compatible server.
type WhisperClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *Logger.Logger
}

var _ stt.Transcriber = (*WhisperClient)(nil)

// NewWhisperClient creates a new Whisper client
func NewWhisperClient(baseURL string, timeout time.Duration, logger *Logger.Logger) *WhisperClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WhisperClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Probe implements stt.Transcriber. Any HTTP answer from the base URL counts as alive.
func (w *WhisperClient) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whisper service unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("whisper service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Transcribe implements stt.Transcriber.
func (w *WhisperClient) Transcribe(ctx context.Context, in stt.Request) (*stt.Transcription, error) {
	if len(in.Audio) == 0 {
		return nil, fmt.Errorf("no audio provided")
	}
	if in.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", in.SampleRate)
	}

	// Create multipart form data
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio_file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(decode.EncodeWAV(in.Audio, in.SampleRate)); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	query := url.Values{}
	query.Set("encode", "true")
	query.Set("task", "transcribe")
	query.Set("output", "json")
	if in.Language != "" {
		query.Set("language", in.Language)
	}
	requestURL := w.baseURL + "/asr?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		w.logger.Errorf("Whisper service error (status %d): %s", resp.StatusCode, string(responseBody))
		return nil, fmt.Errorf("whisper service returned status %d", resp.StatusCode)
	}
	if len(bytes.TrimSpace(responseBody)) == 0 {
		return nil, fmt.Errorf("whisper service returned empty response")
	}

	var transcription TranscriptionResponse
	if err := json.Unmarshal(responseBody, &transcription); err != nil {
		// some deployments answer output=json with plain text
		w.logger.Debugf("Treating whisper response as plain text: %v", err)
		text := strings.TrimSpace(string(responseBody))
		return &stt.Transcription{
			Text:        text,
			Language:    in.Language,
			Segments:    []stt.Segment{{Text: text}},
			GeneratedAt: time.Now(),
		}, nil
	}

	w.logger.Debugf("Whisper transcription for generation %d: %s (language: %s)",
		in.GenerationID, transcription.Text, transcription.Language)

	return transcription.toTranscription(), nil
}

func (r *TranscriptionResponse) toTranscription() *stt.Transcription {
	out := &stt.Transcription{
		Text:        strings.TrimSpace(r.Text),
		Language:    r.Language,
		GeneratedAt: time.Now(),
	}
	for _, s := range r.Segments {
		out.Segments = append(out.Segments, stt.Segment{ID: s.ID, Text: s.Text, Start: s.Start, End: s.End})
	}
	if len(out.Segments) == 0 && out.Text != "" {
		out.Segments = []stt.Segment{{Text: out.Text}}
	}
	return out
}
