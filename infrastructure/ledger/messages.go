package ledger

import (
	"time"

	"gambler/lottery-engine/domain/entities"
	"gambler/lottery-engine/domain/interfaces"
)

const (
	serviceName     = "ledger.v1.Ledger"
	balanceOfMethod = "/" + serviceName + "/BalanceOf"
	transferMethod  = "/" + serviceName + "/Transfer"
)

type accountMessage struct {
	Owner      string `json:"owner"`
	Subaccount []byte `json:"subaccount,omitempty"`
}

type balanceOfRequest struct {
	Account accountMessage `json:"account"`
}

type balanceOfResponse struct {
	Balance uint64 `json:"balance"`
}

type transferRequest struct {
	FromSubaccount    []byte         `json:"from_subaccount,omitempty"`
	To                accountMessage `json:"to"`
	Amount            uint64         `json:"amount"`
	Fee               uint64         `json:"fee"`
	Memo              []byte         `json:"memo,omitempty"`
	CreatedAtUnixNano int64          `json:"created_at_time"`
}

type transferResponse struct {
	BlockIndex *uint64               `json:"block_index,omitempty"`
	Error      *transferErrorMessage `json:"error,omitempty"`
}

type transferErrorMessage struct {
	Kind        string `json:"kind"`
	ExpectedFee uint64 `json:"expected_fee,omitempty"`
	DuplicateOf uint64 `json:"duplicate_of,omitempty"`
	Balance     uint64 `json:"balance,omitempty"`
	Message     string `json:"message,omitempty"`
}

func toAccountMessage(a entities.LedgerAccount) accountMessage {
	return accountMessage{Owner: a.Owner.String(), Subaccount: a.Subaccount}
}

func (m accountMessage) toEntity() entities.LedgerAccount {
	return entities.LedgerAccount{Owner: entities.Identity(m.Owner), Subaccount: m.Subaccount}
}

func toTransferRequest(args interfaces.TransferArgs) *transferRequest {
	req := &transferRequest{
		FromSubaccount: args.FromSubaccount,
		To:             toAccountMessage(args.To),
		Amount:         args.Amount,
		Fee:            args.Fee,
		Memo:           args.Memo,
	}
	if !args.CreatedAt.IsZero() {
		req.CreatedAtUnixNano = args.CreatedAt.UnixNano()
	}
	return req
}

func (r *transferRequest) toArgs() interfaces.TransferArgs {
	args := interfaces.TransferArgs{
		FromSubaccount: r.FromSubaccount,
		To:             r.To.toEntity(),
		Amount:         r.Amount,
		Fee:            r.Fee,
		Memo:           r.Memo,
	}
	if r.CreatedAtUnixNano != 0 {
		args.CreatedAt = time.Unix(0, r.CreatedAtUnixNano).UTC()
	}
	return args
}

func toTransferErrorMessage(e *interfaces.TransferError) *transferErrorMessage {
	return &transferErrorMessage{
		Kind:        string(e.Kind),
		ExpectedFee: e.ExpectedFee,
		DuplicateOf: e.DuplicateOf,
		Balance:     e.Balance,
		Message:     e.Message,
	}
}

func (m *transferErrorMessage) toError() *interfaces.TransferError {
	kind := interfaces.TransferErrorKind(m.Kind)
	switch kind {
	case interfaces.TransferErrorInsufficientFunds,
		interfaces.TransferErrorBadFee,
		interfaces.TransferErrorTooOld,
		interfaces.TransferErrorCreatedInFuture,
		interfaces.TransferErrorDuplicate,
		interfaces.TransferErrorTemporarilyUnavailable,
		interfaces.TransferErrorGeneric:
	default:
		kind = interfaces.TransferErrorGeneric
	}
	return &interfaces.TransferError{
		Kind:        kind,
		ExpectedFee: m.ExpectedFee,
		DuplicateOf: m.DuplicateOf,
		Balance:     m.Balance,
		Message:     m.Message,
	}
}
