package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the ElevenLabs API root
	DefaultBaseURL = "https://api.elevenlabs.io"
	// DefaultVoiceID is a calm narrator voice
	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	// DefaultModel is the speech model
	DefaultModel = "eleven_multilingual_v2"
	// MaxTextLength bounds a single synthesis request
	MaxTextLength = 5000
	// MaxAudioBytes bounds the audio read back from the provider
	MaxAudioBytes = 20 << 20
)

var (
	// ErrNotConfigured is returned when no API key is available
	ErrNotConfigured = errors.New("text-to-speech is not configured")
	// ErrEmptyText is returned for blank input
	ErrEmptyText = errors.New("text is required")
	// ErrTextTooLong is returned when input exceeds MaxTextLength
	ErrTextTooLong = fmt.Errorf("text exceeds %d characters", MaxTextLength)
)

// Synthesizer turns text into audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Audio, error)
}

// Audio is a synthesized clip
type Audio struct {
	ContentType string
	Data        []byte
}

// ProviderError carries the upstream status for failed synthesis
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("speech provider returned status %d: %s", e.StatusCode, e.Body)
}

// Client calls the ElevenLabs text-to-speech endpoint
type Client struct {
	apiKey     string
	baseURL    string
	voiceID    string
	model      string
	httpClient *http.Client
}

// NewClient creates an ElevenLabs client. Empty arguments fall back to the defaults.
func NewClient(apiKey, baseURL, voiceID, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		voiceID:    voiceID,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Synthesize returns MP3 audio for text
func (c *Client) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if len([]rune(text)) > MaxTextLength {
		return nil, ErrTextTooLong
	}

	payload, err := json.Marshal(map[string]string{
		"text":     text,
		"model_id": c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + "/v1/text-to-speech/" + url.PathEscape(c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &Audio{ContentType: contentType, Data: data}, nil
}
