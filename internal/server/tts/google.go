// Package tts turns text into MP3 audio through the Google Cloud
// Text-to-Speech API.
package tts

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/viaifoundation/ttsgate/internal/common"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"
)

// Synthesizer produces MP3 audio for text spoken by voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

type GoogleSynthesizer struct {
	svc *texttospeech.Service
}

// NewGoogleSynthesizer authenticates with apiKey when set and with
// application default credentials otherwise. endpoint overrides the API base
// URL when non-empty.
func NewGoogleSynthesizer(ctx context.Context, apiKey, endpoint string, opts ...option.ClientOption) (*GoogleSynthesizer, error) {
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	svc, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("texttospeech client: %w", err)
	}
	return &GoogleSynthesizer{svc: svc}, nil
}

func (g *GoogleSynthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: languageCode(voice),
			Name:         voice,
		},
		AudioConfig: &texttospeech.AudioConfig{AudioEncoding: "MP3"},
	}

	resp, err := g.svc.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: synthesize: %v", common.ErrUpstreamUnavailable, err)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("%w: decode audio: %v", common.ErrUpstreamUnavailable, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", common.ErrUpstreamUnavailable)
	}
	return audio, nil
}
