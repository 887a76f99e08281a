package kwstats

import (
	"crypto/sha3"
	"encoding/hex"
	"fmt"
)

// CallerTokenSize is the byte length of an anonymized caller identity.
const CallerTokenSize = 8

// CallerToken is the anonymized identity of a calling context. It can not be turned back into the name.
type CallerToken [CallerTokenSize]byte

// Anonymize derives the caller token from a caller's qualifying name.
// The token is the second 8 bytes of the SHA3-512 digest, which matches the 16 hex characters
// (offset 16 to 32) published by earlier statistics collections.
func Anonymize(name string) CallerToken {
	digest := sha3.Sum512([]byte(name))
	var token CallerToken
	copy(token[:], digest[CallerTokenSize:2*CallerTokenSize])
	return token
}

func (t CallerToken) String() string {
	return hex.EncodeToString(t[:])
}

// ParseCallerToken decodes the hex form produced by CallerToken.String.
func ParseCallerToken(s string) (CallerToken, error) {
	var token CallerToken
	if hex.DecodedLen(len(s)) != CallerTokenSize {
		return token, fmt.Errorf("caller token must be %d hex characters, got %d", 2*CallerTokenSize, len(s))
	} else if _, err := hex.Decode(token[:], []byte(s)); err != nil {
		return token, fmt.Errorf("invalid caller token: %w", err)
	}
	return token, nil
}
