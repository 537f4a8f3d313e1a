package pipeline

import "slices"

const FallbackVoice = "anushka"

// VoiceCatalog lists the TTS speakers a session may use.
type VoiceCatalog []string

func DefaultVoiceCatalog() VoiceCatalog {
	return VoiceCatalog{"anushka", "manisha", "vidya", "arya", "abhilash", "karun", "hitesh"}
}

func (c VoiceCatalog) Contains(voice string) bool {
	return slices.Contains(c, voice)
}

// Resolve returns voice when it is in the catalog and the fallback voice
// otherwise. ok is false when the fallback was used.
func (c VoiceCatalog) Resolve(voice string) (resolved string, ok bool) {
	if c.Contains(voice) {
		return voice, true
	}
	return FallbackVoice, false
}
