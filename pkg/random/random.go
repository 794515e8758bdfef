package random

import (
	"crypto/rand"

	"github.com/pkg/errors"
)

// CollisionResistantLength is the number of bytes generally recommended for
// identifiers that need to be collision-resistant across many independent
// devices.
const CollisionResistantLength = 32

// New returns a byte slice of the specified length with cryptographically
// random contents.
func New(length int) ([]byte, error) {
	result := make([]byte, length)
	if _, err := rand.Read(result); err != nil {
		return nil, errors.Wrap(err, "unable to read random data")
	}
	return result, nil
}
