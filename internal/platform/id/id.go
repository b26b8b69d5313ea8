// Package id generates identifiers for aggregates, commands, and saga-derived streams.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// sagaNamespace seeds deterministic identifiers derived from a correlation id.
var sagaNamespace = uuid.MustParse("5b0a6f0e-7c1e-4a8e-9d83-6f1f7c2a9e11")

// NewID returns a random RFC 4122 v4 identifier in canonical form.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// Derive returns a stable identifier for a named stream owned by a correlation id.
//
// The saga uses it to address the processing and settlement aggregates of one
// transaction without consulting any state outside its own instance, so replaying
// the same transition always targets the same streams.
func Derive(correlationID, stream string) string {
	key := strings.TrimSpace(correlationID) + "/" + strings.TrimSpace(stream)
	return uuid.NewSHA1(sagaNamespace, []byte(key)).String()
}
