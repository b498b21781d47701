package playback

import "errors"

var errLineTimeout = errors.New("line playback timed out")

// Speaking returns who is being voiced right now, or "".
func (s *Sequencer) Speaking() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Subscribe calls fn whenever the speaker changes, with "" when a line
// ends. fn runs on the goroutine that made the change, which may be the
// caller of Start or Stop, so it must not block. The returned func
// removes the subscription.
func (s *Sequencer) Subscribe(fn func(speaker string)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Sequencer) setSpeaking(speaker string) {
	s.mu.Lock()
	fns := s.swapSpeaking(speaker)
	s.mu.Unlock()
	notify(fns, speaker)
}

// speakFor sets the speaker only if session is still the current one.
func (s *Sequencer) speakFor(session, speaker string) bool {
	s.mu.Lock()
	if s.session != session {
		s.mu.Unlock()
		return false
	}
	fns := s.swapSpeaking(speaker)
	s.mu.Unlock()
	notify(fns, speaker)
	return true
}

// swapSpeaking records speaker and returns the listeners to notify, or
// nil if nothing changed. Callers hold s.mu.
func (s *Sequencer) swapSpeaking(speaker string) []func(string) {
	if s.speaking == speaker {
		return nil
	}
	s.speaking = speaker
	fns := make([]func(string), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(string), speaker string) {
	for _, fn := range fns {
		fn(speaker)
	}
}
