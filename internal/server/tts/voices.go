package tts

import (
	"fmt"
	"strings"

	"github.com/viaifoundation/ttsgate/internal/common"
)

// Voices maps a UI language code ("en", "zh", ...) to a synthesis voice name.
type Voices map[string]string

// Voice returns the voice for language or common.ErrUnsupportedLanguage.
func (v Voices) Voice(language string) (string, error) {
	name, ok := v[strings.ToLower(strings.TrimSpace(language))]
	if !ok || name == "" {
		return "", fmt.Errorf("%w: %q", common.ErrUnsupportedLanguage, language)
	}
	return name, nil
}

// languageCode extracts the BCP-47 prefix of a voice name,
// e.g. "en-US-Neural2-F" -> "en-US".
func languageCode(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 2 {
		return voice
	}
	return parts[0] + "-" + parts[1]
}
