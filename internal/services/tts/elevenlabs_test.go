package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSynthesize(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-1" || r.Header.Get("xi-api-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["text"] != "hello there" || body["model_id"] != DefaultModel {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	t.Cleanup(srv.Close)

	client := NewClient("key", srv.URL, "voice-1", "")
	audio, err := client.Synthesize(context.Background(), "  hello there ")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if audio.ContentType != "audio/mpeg" || string(audio.Data) != "ID3-audio" {
		t.Errorf("Unexpected audio %+v", audio)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"detail":"quota"}`))
	}))
	t.Cleanup(srv.Close)

	tests := []struct {
		name   string
		client *Client
		text   string
		check  func(error) bool
	}{
		{"no key", NewClient("", srv.URL, "", ""), "hi", func(err error) bool { return errors.Is(err, ErrNotConfigured) }},
		{"blank text", NewClient("key", srv.URL, "", ""), "   ", func(err error) bool { return errors.Is(err, ErrEmptyText) }},
		{"too long", NewClient("key", srv.URL, "", ""), strings.Repeat("a", MaxTextLength+1), func(err error) bool { return errors.Is(err, ErrTextTooLong) }},
		{"provider failure", NewClient("key", srv.URL, "", ""), "hi", func(err error) bool {
			var pe *ProviderError
			return errors.As(err, &pe) && pe.StatusCode == http.StatusTooManyRequests
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := tt.client.Synthesize(context.Background(), tt.text); !tt.check(err) {
				t.Errorf("Unexpected error %v", err)
			}
		})
	}
}
