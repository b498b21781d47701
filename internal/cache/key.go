package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Key identifies a clip by voice and text.
type Key string

// NewKey returns the hex SHA-256 of "voiceID:text". Text is NFC-normalized
// and its whitespace collapsed first, so equivalent spellings of a line
// share a clip.
func NewKey(voiceID, text string) Key {
	sum := sha256.Sum256([]byte(voiceID + ":" + NormalizeText(text)))
	return Key(hex.EncodeToString(sum[:]))
}

// NormalizeText applies NFC and collapses runs of whitespace to one space.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(norm.NFC.String(text)), " ")
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return string(k)
}

// Short returns the first 12 hex digits, for logs.
func (k Key) Short() string {
	if len(k) > 12 {
		return string(k[:12])
	}
	return string(k)
}
