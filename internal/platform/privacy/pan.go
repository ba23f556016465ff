// Package privacy provides utilities for keeping primary account numbers (PANs)
// out of logs, spans, and error messages.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MaskPAN replaces every character except the last four with '*'
// (e.g., "4111111111111111" -> "************1111").
//
// Numbers of four characters or fewer are fully masked, since revealing them
// would reveal the whole number. Returns "" for an empty input.
func MaskPAN(pan string) string {
	if pan == "" {
		return ""
	}
	if len(pan) <= 4 {
		return strings.Repeat("*", len(pan))
	}
	return strings.Repeat("*", len(pan)-4) + pan[len(pan)-4:]
}

// LastFour returns the trailing four characters of a PAN, or "" when the
// number is too short to reveal any of it safely.
func LastFour(pan string) string {
	if len(pan) <= 4 {
		return ""
	}
	return pan[len(pan)-4:]
}

// HashPAN returns a truncated SHA-256 of the PAN so traces can correlate
// calls for the same card without carrying the number.
func HashPAN(pan string) string {
	if pan == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(pan))
	return hex.EncodeToString(hash[:8])
}
