// Package identifier generates human-typeable, collision-resistant
// identifiers suitable for use as a DecSync ownAppId when a caller has no
// natural identifier of its own to reuse.
package identifier

import (
	"regexp"
	"strings"

	"github.com/eknkc/basex"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/decsync-io/decsync/pkg/random"
)

const (
	// PrefixApp is the prefix used for generated app identifiers.
	PrefixApp = "app"

	// base62Alphabet is the alphabet used for Base62 encoding.
	base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// collisionResistantLength is the number of random bytes used to build
	// a generated identifier.
	collisionResistantLength = random.CollisionResistantLength
)

// base62 is the Base62 encoder used for generated identifiers. It is safe
// for concurrent use.
var base62 *basex.Encoding

func init() {
	encoding, err := basex.NewEncoding(base62Alphabet)
	if err != nil {
		panic("unable to initialize Base62 encoder")
	}
	base62 = encoding
}

// matcher recognizes identifiers produced by New.
var matcher = regexp.MustCompile(`^[a-z]+_[0-9a-zA-Z]+$`)

// New generates a new collision-resistant identifier with the specified
// prefix, of the form "<prefix>_<base62>".
func New(prefix string) (string, error) {
	if prefix == "" {
		return "", errors.New("empty prefix")
	}
	for _, r := range prefix {
		if !('a' <= r && r <= 'z') {
			return "", errors.New("invalid prefix character")
		}
	}

	data, err := random.New(collisionResistantLength)
	if err != nil {
		return "", errors.Wrap(err, "unable to generate random data")
	}

	builder := &strings.Builder{}
	builder.WriteString(prefix)
	builder.WriteRune('_')
	builder.WriteString(base62.Encode(data))

	return builder.String(), nil
}

// NewAppID generates a new app identifier suitable for use as ownAppId.
func NewAppID() (string, error) {
	return New(PrefixApp)
}

// NewUUIDAppID generates an RFC 4122 UUID-based app identifier, for callers
// in ecosystems (e.g. contact/calendar sync apps) that already mint UUIDs
// for their own application identity and would rather reuse that form than
// mint a second, DecSync-specific identifier.
func NewUUIDAppID() string {
	return uuid.New().String()
}

// Valid reports whether id looks like an identifier produced by New (it
// does not validate UUID-based identifiers from NewUUIDAppID, which are
// validated via github.com/google/uuid.Parse instead).
func Valid(id string) bool {
	return matcher.MatchString(id)
}
