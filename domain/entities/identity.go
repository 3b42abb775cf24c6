package entities

import (
	"fmt"
	"regexp"

	"gambler/lottery-engine/domain"
)

// Identity is the opaque principal of a caller. It keys accounts and round entries.
type Identity string

// AnonymousIdentity is the principal used by unauthenticated callers
const AnonymousIdentity Identity = "2vxsx-fae"

const maxIdentityLength = 63

// Principal text form: lowercase base32 groups of up to five characters separated by dashes
var identityPattern = regexp.MustCompile(`^[a-z2-7]{1,5}(-[a-z2-7]{1,5})*$`)

// Validate checks that the identity is a well-formed, non-anonymous principal
func (i Identity) Validate() error {
	if i == "" {
		return fmt.Errorf("%w: identity is empty", domain.ErrValidation)
	}
	if len(i) > maxIdentityLength {
		return fmt.Errorf("%w: identity exceeds %d characters", domain.ErrValidation, maxIdentityLength)
	}
	if !identityPattern.MatchString(string(i)) {
		return fmt.Errorf("%w: malformed identity %q", domain.ErrValidation, string(i))
	}
	if i == AnonymousIdentity {
		return fmt.Errorf("%w: anonymous identity not allowed", domain.ErrValidation)
	}
	return nil
}

// String returns the text form of the identity
func (i Identity) String() string {
	return string(i)
}
