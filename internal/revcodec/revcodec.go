// Package revcodec produces and compares CouchDB-style revision tokens of
// the form "<generation>-<hash>".
package revcodec

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedRevision is returned when a caller-supplied previous revision
// does not parse as "<positive-decimal>-<rest>". An explicit error return
// over a silent reset to generation 1 matches the codebase's validation
// discipline elsewhere: malformed input is a caller bug, not a thing to
// paper over.
var ErrMalformedRevision = errors.New("revcodec: malformed revision token")

var validPattern = regexp.MustCompile(`^\d+-[a-z0-9]+$`)

// randomBits is the width of the random number behind the second half of
// the hash portion, which is base36(millis) followed by base36(random).
const randomBits = 62

// Generate produces the next revision token. With prev == "", the
// generation is 1. Otherwise the decimal generation preceding the first
// "-" is parsed and incremented; a malformed prev returns
// ErrMalformedRevision.
func Generate(prev string) (string, error) {
	gen := 1

	if prev != "" {
		idx := strings.IndexByte(prev, '-')
		if idx <= 0 {
			return "", fmt.Errorf("%w: %q", ErrMalformedRevision, prev)
		}

		parsed, err := strconv.Atoi(prev[:idx])
		if err != nil || parsed < 1 {
			return "", fmt.Errorf("%w: %q", ErrMalformedRevision, prev)
		}

		gen = parsed + 1
	}

	hash, err := generateHash()
	if err != nil {
		return "", fmt.Errorf("revcodec: generating hash: %w", err)
	}

	return fmt.Sprintf("%d-%s", gen, hash), nil
}

func generateHash() (string, error) {
	millis := time.Now().UnixMilli()

	randMax := new(big.Int).Lsh(big.NewInt(1), randomBits)
	randN, err := rand.Int(rand.Reader, randMax)
	if err != nil {
		return "", err
	}

	return base36(millis) + base36(randN.Int64()), nil
}

func base36(n int64) string {
	if n < 0 {
		n = -n
	}
	return strconv.FormatInt(n, 36)
}

// IsNewer reports whether a's generation is strictly greater than b's.
// Malformed tokens are treated as generation 0, so a well-formed token is
// always newer than a malformed one.
func IsNewer(a, b string) bool {
	return generationOf(a) > generationOf(b)
}

func generationOf(rev string) int {
	idx := strings.IndexByte(rev, '-')
	if idx <= 0 {
		return 0
	}

	gen, err := strconv.Atoi(rev[:idx])
	if err != nil {
		return 0
	}

	return gen
}

// IsValid reports whether rev matches the "^\d+-[a-z0-9]+$" token format.
func IsValid(rev string) bool {
	return validPattern.MatchString(rev)
}

// Generation extracts the decimal generation prefix of rev, or 0 if rev
// does not parse.
func Generation(rev string) int {
	return generationOf(rev)
}
