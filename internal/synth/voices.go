package synth

import "strings"

// FallbackVoicePrefix marks the built-in placeholder voices.
const FallbackVoicePrefix = "fallback-"

// Voice is a voice offered by the synthesis service.
type Voice struct {
	VoiceID    string            `json:"voice_id"`
	Name       string            `json:"name"`
	Category   string            `json:"category,omitempty"`
	PreviewURL string            `json:"preview_url,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// Gender returns the gender label, if any.
func (v Voice) Gender() string {
	return v.Labels["gender"]
}

// IsFallbackVoice reports whether id names a placeholder voice. These never
// reach the network and always produce silence.
func IsFallbackVoice(id string) bool {
	return strings.HasPrefix(id, FallbackVoicePrefix)
}

// FallbackVoices returns the placeholder voices offered when the service is
// unreachable or no key is configured.
func FallbackVoices() []Voice {
	return []Voice{
		{VoiceID: "fallback-male-1", Name: "Male Voice 1 (Fallback)", Labels: map[string]string{"gender": "male"}},
		{VoiceID: "fallback-female-1", Name: "Female Voice 1 (Fallback)", Labels: map[string]string{"gender": "female"}},
		{VoiceID: "fallback-male-2", Name: "Male Voice 2 (Fallback)", Labels: map[string]string{"gender": "male"}},
		{VoiceID: "fallback-female-2", Name: "Female Voice 2 (Fallback)", Labels: map[string]string{"gender": "female"}},
	}
}
