// Package domain holds value parsing shared by the trust boundaries (HTTP
// handlers and the callback consumer).
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "dictkeys/pkg/domain-errors"
)

// ParseID parses an identifier received from outside the process. name is
// used in the error message ("key id", "claim id").
//
// Empty strings, malformed values and the nil UUID are rejected with
// CodeValidation.
func ParseID(name, s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+name)
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+name)
	}
	return id, nil
}

func ParseKeyID(s string) (uuid.UUID, error) {
	return ParseID("key id", s)
}
