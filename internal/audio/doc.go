// Package audio validates, decodes, encodes and plays synthesized speech.
//
// Raw bytes from the synthesis service are never trusted: Validator sniffs
// and decodes them under a deadline and hands back a silent buffer when
// anything is off. EncodeWAV turns a decoded Buffer into the canonical
// 16-bit PCM WAV used everywhere else, and Player streams that WAV to the
// sound device through oto.
package audio
