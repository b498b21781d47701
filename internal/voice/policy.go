package voice

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/dgnsrekt/cuecard/internal/synth"
)

// Policy picks voices for characters that have none.
type Policy interface {
	// Pick returns a voice id for each name it can place.
	Pick(names []string, voices []synth.Voice) map[string]string
}

// AutoAssign fills every unassigned character using p and sets a narrator
// voice if there is none. It returns how many characters were assigned.
func (r *Roster) AutoAssign(p Policy, voices []synth.Voice) int {
	if len(voices) == 0 {
		return 0
	}
	if r.NarratorVoice() == "" {
		r.SetNarratorVoice(NarratorVoice(voices))
	}

	picks := p.Pick(r.Unassigned(), voices)
	for name, id := range picks {
		r.Assign(name, id)
	}
	return len(picks)
}

// NarratorVoice prefers a voice without a gender label, else the first.
func NarratorVoice(voices []synth.Voice) string {
	if len(voices) == 0 {
		return ""
	}
	for _, v := range voices {
		if v.Gender() == "" {
			return v.VoiceID
		}
	}
	return voices[0].VoiceID
}

var femaleIndicators = []string{"she", "her", "ms", "mrs", "miss", "mother", "sister", "daughter", "girl", "woman"}

// GuessGender guesses "female" or "male" from a character name.
func GuessGender(name string) string {
	lower := strings.ToLower(name)
	for _, ind := range femaleIndicators {
		if strings.Contains(lower, ind) {
			return "female"
		}
	}
	return "male"
}

// RoundRobin deals voices of the guessed gender in turn, falling back to
// the other gender, then unlabelled voices, then any voice.
type RoundRobin struct{}

// Pick implements Policy.
func (RoundRobin) Pick(names []string, voices []synth.Voice) map[string]string {
	picks := make(map[string]string, len(names))
	if len(voices) == 0 {
		return picks
	}

	var male, female, other []synth.Voice
	for _, v := range voices {
		switch strings.ToLower(v.Gender()) {
		case "male":
			male = append(male, v)
		case "female":
			female = append(female, v)
		default:
			other = append(other, v)
		}
	}

	next := map[string]int{}
	for _, name := range names {
		gender := GuessGender(name)
		preferred, backup := male, female
		if gender == "female" {
			preferred, backup = female, male
		}

		i := next[gender]
		next[gender]++
		switch {
		case len(preferred) > 0:
			picks[name] = preferred[i%len(preferred)].VoiceID
		case len(backup) > 0:
			picks[name] = backup[i%len(backup)].VoiceID
		case len(other) > 0:
			picks[name] = other[i%len(other)].VoiceID
		default:
			picks[name] = voices[i%len(voices)].VoiceID
		}
	}
	return picks
}

// Fuzzy matches character names against voice names, so a character called
// RACHEL gets a voice named Rachel. Names without a match go to Fallback.
type Fuzzy struct {
	Fallback Policy
}

// Pick implements Policy.
func (f Fuzzy) Pick(names []string, voices []synth.Voice) map[string]string {
	voiceNames := make([]string, len(voices))
	for i, v := range voices {
		voiceNames[i] = strings.ToLower(v.Name)
	}

	picks := make(map[string]string, len(names))
	used := make(map[string]bool)
	var rest []string
	for _, name := range names {
		matched := false
		for _, word := range strings.Fields(strings.ToLower(name)) {
			if len(word) < 3 {
				continue
			}
			for _, m := range fuzzy.Find(word, voiceNames) {
				id := voices[m.Index].VoiceID
				if used[id] || !wordPrefix(voiceNames[m.Index], word) {
					continue
				}
				picks[name] = id
				used[id] = true
				matched = true
				break
			}
			if matched {
				break
			}
		}
		if !matched {
			rest = append(rest, name)
		}
	}

	fallback := f.Fallback
	if fallback == nil {
		fallback = RoundRobin{}
	}
	for name, id := range fallback.Pick(rest, voices) {
		picks[name] = id
	}
	return picks
}

// wordPrefix reports whether some word of s starts with word. fuzzy.Find
// alone matches scattered letters, which is too loose for names.
func wordPrefix(s, word string) bool {
	for _, w := range strings.Fields(s) {
		if strings.HasPrefix(w, word) {
			return true
		}
	}
	return false
}
