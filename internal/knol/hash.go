// Package knol fingerprints card content so a re-imported deck can be matched
// against the cards a learner already has.
package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/duedeck/internal/domain"
)

// Normalize joins the cleaned front and back with a newline. Each side is
// lowercased, trimmed and has its line endings unified, so cosmetic edits in
// a deck file do not produce a new card.
func Normalize(front, back string) string {
	clean := func(part string) string {
		p := strings.ReplaceAll(part, "\r\n", "\n")
		p = strings.ToLower(p)
		return strings.TrimSpace(p)
	}
	return clean(front) + "\n" + clean(back)
}

// Hash returns the hex SHA-256 of the normalized content.
func Hash(front, back string) string {
	sum := sha256.Sum256([]byte(Normalize(front, back)))
	return fmt.Sprintf("%x", sum)
}

// Fingerprint hashes a card's current content.
func Fingerprint(card domain.Card) string {
	return Hash(card.Front, card.Back)
}
