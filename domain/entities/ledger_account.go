package entities

import (
	"bytes"
	"encoding/hex"

	"lukechampine.com/blake3"
)

// SubaccountLength is the size of a ledger sub-address discriminator
const SubaccountLength = 32

// LedgerAccount is an account on the external ledger: an owner plus an optional sub-address.
type LedgerAccount struct {
	Owner      Identity `json:"owner"`
	Subaccount []byte   `json:"subaccount,omitempty"`
}

// HasSubaccount returns true if the account carries a non-default sub-address
func (a LedgerAccount) HasSubaccount() bool {
	return len(a.Subaccount) > 0 && !bytes.Equal(a.Subaccount, make([]byte, SubaccountLength))
}

// Equal compares two ledger accounts, treating a zero sub-address like no sub-address
func (a LedgerAccount) Equal(other LedgerAccount) bool {
	if a.Owner != other.Owner {
		return false
	}
	if !a.HasSubaccount() && !other.HasSubaccount() {
		return true
	}
	return bytes.Equal(a.Subaccount, other.Subaccount)
}

// IsZero returns true if the account has no owner
func (a LedgerAccount) IsZero() bool {
	return a.Owner == ""
}

// String returns owner, or owner.hex(subaccount) when a sub-address is set
func (a LedgerAccount) String() string {
	if !a.HasSubaccount() {
		return a.Owner.String()
	}
	return a.Owner.String() + "." + hex.EncodeToString(a.Subaccount)
}

// DeriveSubaccount maps a user identity to the 32-byte sub-address of its custodial deposit account
func DeriveSubaccount(identity Identity) []byte {
	sum := blake3.Sum256([]byte("deposit:" + identity.String()))
	return sum[:]
}

// CustodialAccountFor returns the deposit address owned by custodyOwner for the given user
func CustodialAccountFor(custodyOwner, identity Identity) LedgerAccount {
	return LedgerAccount{
		Owner:      custodyOwner,
		Subaccount: DeriveSubaccount(identity),
	}
}

// ExternalAccountFor returns the identity's own default ledger account, used for payouts
func ExternalAccountFor(identity Identity) LedgerAccount {
	return LedgerAccount{Owner: identity}
}
