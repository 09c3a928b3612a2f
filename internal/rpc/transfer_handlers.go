package rpc

import (
	"context"
	"encoding/json"

	"github.com/klingon-exchange/dashsend/internal/storage"
	"github.com/klingon-exchange/dashsend/internal/transfer"
	"github.com/klingon-exchange/dashsend/internal/txbuilder"
	"github.com/klingon-exchange/dashsend/internal/wallet"
)

// DefaultHistoryLimit is used when transfer_history is called without a limit.
const DefaultHistoryLimit = 20

// ========================================
// Transfer handlers
// ========================================

// TransferBuildParams is the parameters for transfer_build.
type TransferBuildParams struct {
	Sender    string `json:"sender,omitempty"` // defaults to the configured key
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"` // decimal, whole coins
	Memo      string `json:"memo,omitempty"`
}

// TxInputResult is one input of an unsigned transaction.
type TxInputResult struct {
	TxID    string `json:"txid"`
	Vout    uint32 `json:"vout"`
	Address string `json:"address,omitempty"`
	Amount  uint64 `json:"amount"`
}

// TxOutputResult is one output of an unsigned transaction.
type TxOutputResult struct {
	Address string `json:"address,omitempty"`
	Memo    string `json:"memo,omitempty"`
	Amount  uint64 `json:"amount"`
	Change  bool   `json:"change,omitempty"`
}

// UnsignedTxResult describes an assembled transaction.
type UnsignedTxResult struct {
	Version        int32            `json:"version"`
	LockTime       uint32           `json:"locktime"`
	Inputs         []TxInputResult  `json:"inputs"`
	Outputs        []TxOutputResult `json:"outputs"`
	InputTotal     string           `json:"input_total"`
	OutputTotal    string           `json:"output_total"`
	Fee            uint64           `json:"fee"`
	Surplus        uint64           `json:"surplus"`
	ChangeFloor    uint64           `json:"change_floor"`
	ChangeAbsorbed bool             `json:"change_absorbed"`
}

func (s *Server) transferBuild(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p TransferBuildParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams("invalid params: %v", err)
	}
	if p.Recipient == "" {
		return nil, invalidParams("recipient is required")
	}
	if p.Amount == "" {
		return nil, invalidParams("amount is required")
	}

	tx, err := s.transfers.Build(ctx, transfer.Request{
		Sender:    p.Sender,
		Recipient: p.Recipient,
		Amount:    p.Amount,
		Memo:      p.Memo,
	})
	if err != nil {
		return nil, err
	}

	return s.unsignedResult(tx), nil
}

func (s *Server) unsignedResult(tx *txbuilder.UnsignedTx) *UnsignedTxResult {
	params := s.node.Params()

	result := &UnsignedTxResult{
		Version:        tx.Version,
		LockTime:       tx.LockTime,
		Inputs:         make([]TxInputResult, len(tx.Inputs)),
		Outputs:        make([]TxOutputResult, len(tx.Outputs)),
		InputTotal:     tx.InputTotal().String(),
		OutputTotal:    tx.OutputTotal().String(),
		Fee:            tx.Fee,
		Surplus:        tx.Decision.Surplus,
		ChangeFloor:    tx.Decision.Floor,
		ChangeAbsorbed: tx.Decision.Absorbed,
	}

	for i, in := range tx.Inputs {
		result.Inputs[i] = TxInputResult{TxID: in.TxID, Vout: in.Vout, Address: in.Address, Amount: in.Amount}
	}

	for i, out := range tx.Outputs {
		r := TxOutputResult{Amount: out.Amount, Change: i == tx.ChangeIndex}
		if out.IsMemo() {
			r.Memo = string(out.Memo)
		} else if addr, err := wallet.EncodePubKeyHash(out.PubKeyHash, params); err == nil {
			r.Address = addr
		}
		result.Outputs[i] = r
	}

	return result
}

// TransferSendParams is the parameters for transfer_send.
type TransferSendParams struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Memo      string `json:"memo,omitempty"`
	Broadcast bool   `json:"broadcast,omitempty"`
}

// TransferResult is a journaled transfer.
type TransferResult struct {
	ID            string `json:"id"`
	Chain         string `json:"chain"`
	Network       string `json:"network"`
	Sender        string `json:"sender"`
	Recipient     string `json:"recipient"`
	Amount        uint64 `json:"amount"`
	AmountDecimal string `json:"amount_decimal"`
	Fee           uint64 `json:"fee"`
	Change        uint64 `json:"change"`
	Memo          string `json:"memo,omitempty"`
	Inputs        int    `json:"inputs"`
	TxID          string `json:"txid"`
	RawTx         string `json:"raw_tx"`
	Status        string `json:"status"`
	BroadcastRef  string `json:"broadcast_ref,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

// TransferSendResult is the response for transfer_send.
type TransferSendResult struct {
	Transfer  *TransferResult   `json:"transfer"`
	Unsigned  *UnsignedTxResult `json:"unsigned"`
	Size      int               `json:"size"`
	DecodeURL string            `json:"decode_url,omitempty"`
}

func (s *Server) transferSend(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p TransferSendParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams("invalid params: %v", err)
	}
	if p.Recipient == "" {
		return nil, invalidParams("recipient is required")
	}
	if p.Amount == "" {
		return nil, invalidParams("amount is required")
	}

	res, err := s.transfers.Send(ctx, transfer.SendRequest{
		Recipient: p.Recipient,
		Amount:    p.Amount,
		Memo:      p.Memo,
		Broadcast: p.Broadcast,
	})
	if err != nil {
		if res == nil || res.Transfer == nil {
			return nil, err
		}
		e := *toRPCError(err)
		e.Data = &TransferFailedData{
			TransferID: res.Transfer.ID,
			TxID:       res.Transfer.TxID,
			Status:     string(res.Transfer.Status),
			Cause:      e.Data,
		}
		return nil, &e
	}

	return &TransferSendResult{
		Transfer:  s.transferResult(res.Transfer),
		Unsigned:  s.unsignedResult(res.Unsigned),
		Size:      res.Signed.Size(),
		DecodeURL: s.decodeURL(),
	}, nil
}

// TransferGetParams is the parameters for transfer_get.
type TransferGetParams struct {
	ID string `json:"id"`
}

func (s *Server) transferGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p TransferGetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams("invalid params: %v", err)
	}
	if p.ID == "" {
		return nil, invalidParams("id is required")
	}

	t, err := s.transfers.Get(p.ID)
	if err != nil {
		return nil, err
	}
	return s.transferResult(t), nil
}

// TransferHistoryParams is the parameters for transfer_history.
type TransferHistoryParams struct {
	Limit int `json:"limit,omitempty"`
}

// TransferHistoryResult is the response for transfer_history.
type TransferHistoryResult struct {
	Transfers []*TransferResult `json:"transfers"`
	Count     int               `json:"count"`
}

func (s *Server) transferHistory(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p TransferHistoryParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("invalid params: %v", err)
		}
	}
	if p.Limit <= 0 {
		p.Limit = DefaultHistoryLimit
	}

	transfers, err := s.transfers.History(p.Limit)
	if err != nil {
		return nil, err
	}

	result := &TransferHistoryResult{Transfers: make([]*TransferResult, 0, len(transfers))}
	for _, t := range transfers {
		result.Transfers = append(result.Transfers, s.transferResult(t))
	}
	result.Count = len(result.Transfers)
	return result, nil
}

func (s *Server) transferResult(t *storage.Transfer) *TransferResult {
	return &TransferResult{
		ID:            t.ID,
		Chain:         t.Chain,
		Network:       t.Network,
		Sender:        t.Sender,
		Recipient:     t.Recipient,
		Amount:        t.Amount,
		AmountDecimal: s.formatAmount(t.Amount),
		Fee:           t.Fee,
		Change:        t.Change,
		Memo:          t.Memo,
		Inputs:        t.InputCount,
		TxID:          t.TxID,
		RawTx:         t.RawTx,
		Status:        string(t.Status),
		BroadcastRef:  t.BroadcastRef,
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt.Unix(),
	}
}
