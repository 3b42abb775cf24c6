package entities

import (
	"errors"
	"testing"

	"gambler/lottery-engine/domain"

	"github.com/stretchr/testify/assert"
)

func TestIdentity_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		identity Identity
		wantErr  bool
	}{
		{name: "canister principal", identity: "rrkah-fqaaa-aaaaa-aaaaq-cai"},
		{name: "short principal", identity: "aaaaa-aa"},
		{name: "empty", identity: "", wantErr: true},
		{name: "anonymous", identity: AnonymousIdentity, wantErr: true},
		{name: "uppercase", identity: "AAAAA-aa", wantErr: true},
		{name: "invalid base32 digit", identity: "abc01-aa", wantErr: true},
		{name: "group too long", identity: "aaaaaa-aa", wantErr: true},
		{name: "trailing dash", identity: "aaaaa-", wantErr: true},
		{name: "too long", identity: "aaaaa-aaaaa-aaaaa-aaaaa-aaaaa-aaaaa-aaaaa-aaaaa-aaaaa-aaaaa-aaaaa", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.identity.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, domain.ErrValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLedgerAccount_Equal(t *testing.T) {
	t.Parallel()

	a := CustodialAccountFor("custo-dyaaa-cai", "alice-aaaaa")
	b := CustodialAccountFor("custo-dyaaa-cai", "alice-aaaaa")
	c := CustodialAccountFor("custo-dyaaa-cai", "bob22-aaaaa")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Len(t, a.Subaccount, SubaccountLength)

	plain := LedgerAccount{Owner: "alice-aaaaa"}
	zeroSub := LedgerAccount{Owner: "alice-aaaaa", Subaccount: make([]byte, SubaccountLength)}
	assert.True(t, plain.Equal(zeroSub))
	assert.Equal(t, "alice-aaaaa", zeroSub.String())
	assert.Contains(t, a.String(), "custo-dyaaa-cai.")
}
