package rpc

import (
	"errors"
	"fmt"

	"github.com/klingon-exchange/dashsend/internal/backend"
	"github.com/klingon-exchange/dashsend/internal/storage"
	"github.com/klingon-exchange/dashsend/internal/transfer"
	"github.com/klingon-exchange/dashsend/internal/txbuilder"
	"github.com/klingon-exchange/dashsend/internal/wallet"
)

// InsufficientFundsData is attached to InsufficientFunds errors.
type InsufficientFundsData struct {
	Required  uint64 `json:"required"`
	Available uint64 `json:"available"`
	Shortfall uint64 `json:"shortfall"`
}

// LookupFailedData is attached to LookupFailed errors.
type LookupFailedData struct {
	URL     string `json:"url,omitempty"`
	Status  int    `json:"status,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// TransferFailedData is attached to errors from transfer_send once the
// transfer has been journaled, so callers can look it up with transfer_get.
type TransferFailedData struct {
	TransferID string      `json:"transfer_id"`
	TxID       string      `json:"txid"`
	Status     string      `json:"status"`
	Cause      interface{} `json:"cause,omitempty"`
}

func invalidParams(format string, args ...interface{}) *Error {
	return &Error{Code: InvalidParams, Message: fmt.Sprintf(format, args...)}
}

// toRPCError maps domain errors onto JSON-RPC error codes.
func toRPCError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	var insufficient *txbuilder.InsufficientFundsError
	if errors.As(err, &insufficient) {
		return &Error{
			Code:    InsufficientFunds,
			Message: err.Error(),
			Data: &InsufficientFundsData{
				Required:  insufficient.Required,
				Available: insufficient.Available,
				Shortfall: insufficient.Shortfall(),
			},
		}
	}

	switch {
	case errors.Is(err, transfer.ErrInvalidAddress),
		errors.Is(err, transfer.ErrInvalidAmount),
		errors.Is(err, txbuilder.ErrMemoTooLarge),
		errors.Is(err, txbuilder.ErrInvalidOutput):
		return &Error{Code: InvalidParams, Message: err.Error()}

	case errors.Is(err, transfer.ErrBroadcastDisabled):
		return &Error{Code: BroadcastDisabled, Message: err.Error()}

	// Broadcast errors may wrap a lookup error; check them first.
	case errors.Is(err, backend.ErrBroadcastFailed),
		errors.Is(err, storage.ErrOutpointReserved):
		return &Error{Code: BroadcastFailed, Message: err.Error()}

	case errors.Is(err, backend.ErrLookupFailed):
		e := &Error{Code: LookupFailed, Message: err.Error()}
		var lookupErr *backend.LookupError
		if errors.As(err, &lookupErr) {
			e.Data = &LookupFailedData{
				URL:     lookupErr.URL,
				Status:  lookupErr.Status,
				Payload: string(lookupErr.Payload),
			}
		}
		return e

	case errors.Is(err, wallet.ErrLocked):
		return &Error{Code: WalletLocked, Message: err.Error()}

	case errors.Is(err, storage.ErrTransferNotFound):
		return &Error{Code: NotFound, Message: err.Error()}
	}

	return &Error{Code: InternalError, Message: err.Error()}
}
