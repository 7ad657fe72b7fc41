// Package voice is the adapter to the external speech services: transcription
// of student audio and synthesis of spoken prompts. The rest of the system
// treats it as a black box behind the Adapter interface.
package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Adapter transcribes student audio and synthesizes prompt audio.
// languageCode is a speech-service code such as "en-US" or "sw-KE".
type Adapter interface {
	Transcribe(ctx context.Context, audio []byte, languageCode string) (string, error)
	Synthesize(ctx context.Context, text, languageCode string) ([]byte, error)
}

// Client implements Adapter against an OpenAI-compatible audio API.
type Client struct {
	api             *openai.Client
	transcribeModel string
	speechModel     openai.SpeechModel
	speechVoice     openai.SpeechVoice
}

// New creates a voice client. baseURL may point at any OpenAI-compatible
// speech gateway; an empty baseURL uses the default endpoint.
func New(baseURL, apiKey, transcribeModel, speechModel, speechVoice string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if transcribeModel == "" {
		transcribeModel = string(openai.Whisper1)
	}
	if speechModel == "" {
		speechModel = string(openai.TTSModel1)
	}
	if speechVoice == "" {
		speechVoice = string(openai.VoiceAlloy)
	}
	return &Client{
		api:             openai.NewClientWithConfig(config),
		transcribeModel: transcribeModel,
		speechModel:     openai.SpeechModel(speechModel),
		speechVoice:     openai.SpeechVoice(speechVoice),
	}
}

// Ping verifies the speech endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("speech endpoint unreachable: %w", err)
	}
	return nil
}

// Transcribe converts one audio clip to text. An empty result is returned
// as-is; deciding what an empty transcript means is the caller's business.
func (c *Client) Transcribe(ctx context.Context, audio []byte, languageCode string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio payload")
	}

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.transcribeModel,
		FilePath: "clip.webm",
		Reader:   bytes.NewReader(audio),
		Language: isoLanguage(languageCode),
	})
	if err != nil {
		return "", fmt.Errorf("transcription API call: %w", err)
	}

	slog.Debug("transcribed audio", "language", languageCode, "chars", len(resp.Text))
	return resp.Text, nil
}

// Synthesize converts prompt text to audio (MP3 bytes).
func (c *Client) Synthesize(ctx context.Context, text, languageCode string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty synthesis text")
	}

	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          c.speechModel,
		Input:          text,
		Voice:          c.speechVoice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech API call: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech response: %w", err)
	}

	slog.Debug("synthesized speech", "language", languageCode, "bytes", len(data))
	return data, nil
}

// isoLanguage maps a speech-service code like "en-US" or "sw-KE" to the
// two-letter code the transcription model expects.
func isoLanguage(languageCode string) string {
	if i := strings.IndexByte(languageCode, '-'); i > 0 {
		return strings.ToLower(languageCode[:i])
	}
	return strings.ToLower(languageCode)
}
