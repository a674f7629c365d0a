package ident

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"cargo-placement-backend/internal/apperr"
)

// DisplayNumberLen is the width of a cargo display number in hex characters.
const DisplayNumberLen = 12

// MaxIndex is the largest line or unit index that fits the two-digit unit number fields.
const MaxIndex = 99

// NewCargoID returns a random 128-bit token. Nothing about it depends on a shared counter.
func NewCargoID() string {
	return uuid.NewString()
}

// NewSessionID returns a token for a scanning session.
func NewSessionID() string {
	return uuid.NewString()
}

// DisplayNumber derives the short human number of a cargo from its ID.
// It is the leading DisplayNumberLen hex digits of the token, upper-cased.
func DisplayNumber(cargoID string) (string, error) {
	id, err := uuid.Parse(cargoID)
	if err != nil {
		return "", apperr.InvalidArgument("malformed cargo id %q", cargoID)
	}
	raw := hex.EncodeToString(id[:])
	return strings.ToUpper(raw[:DisplayNumberLen]), nil
}

// UnitNumber builds the identifier of one individual unit: {display}/{line:02}/{unit:02}.
// Indices are 1-based and at most MaxIndex.
func UnitNumber(displayNumber string, lineIndex, unitIndex int) (string, error) {
	if displayNumber == "" || strings.Contains(displayNumber, "/") {
		return "", apperr.InvalidArgument("malformed display number %q", displayNumber)
	}
	if lineIndex < 1 || unitIndex < 1 {
		return "", apperr.InvalidArgument("unit indices must be 1-based, got %d/%d", lineIndex, unitIndex)
	}
	if lineIndex > MaxIndex || unitIndex > MaxIndex {
		return "", apperr.InvalidArgument("unit indices must not exceed %d, got %d/%d", MaxIndex, lineIndex, unitIndex)
	}
	return fmt.Sprintf("%s/%02d/%02d", displayNumber, lineIndex, unitIndex), nil
}
