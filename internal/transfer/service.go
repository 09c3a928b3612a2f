package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/klingon-exchange/dashsend/internal/storage"
	"github.com/klingon-exchange/dashsend/internal/txbuilder"
	"github.com/klingon-exchange/dashsend/internal/wallet"
	"github.com/klingon-exchange/dashsend/pkg/logging"
)

// ErrBroadcastDisabled is returned when a send asks for broadcast but the
// service was not configured to allow it.
var ErrBroadcastDisabled = errors.New("broadcast is disabled")

// KeySource derives signing keys. wallet.Service satisfies it.
type KeySource interface {
	KeyPair(symbol string, path []uint32) (*wallet.KeyPair, error)
}

// Event types emitted by the service.
const (
	EventBuilt     = "transfer_built"
	EventSigned    = "transfer_signed"
	EventBroadcast = "transfer_broadcast"
	EventFailed    = "transfer_failed"
)

// Event describes a step in a transfer's life.
type Event struct {
	TransferID string
	EventType  string
	Data       interface{}
	Timestamp  time.Time
}

// EventHandler is called when transfer events occur.
type EventHandler func(event Event)

// ServiceConfig holds configuration for the transfer service.
type ServiceConfig struct {
	Builder     *Builder
	Keys        KeySource
	Signer      wallet.Signer // defaults to wallet.P2PKHSigner
	Store       *storage.Storage
	Broadcaster Broadcaster

	// SenderPath is the derivation path of the paying key.
	SenderPath []uint32

	// AllowBroadcast must be set for any send to reach the network.
	AllowBroadcast bool
}

// SendRequest is a payment from the configured sender key.
type SendRequest struct {
	Recipient string
	Amount    string
	Memo      string
	Broadcast bool
}

// SendResult is what a send produced.
type SendResult struct {
	Transfer *storage.Transfer
	Unsigned *txbuilder.UnsignedTx
	Signed   *wallet.SignedTx
}

// Service runs the full send flow: derive, build, sign, journal, and
// broadcast on request.
type Service struct {
	builder        *Builder
	keys           KeySource
	signer         wallet.Signer
	store          *storage.Storage
	broadcaster    Broadcaster
	senderPath     []uint32
	allowBroadcast bool

	// One send at a time per sender address.
	addrMu    sync.Mutex
	addrLocks map[string]*sync.Mutex

	mu            sync.RWMutex
	eventHandlers []EventHandler

	log *logging.Logger
}

// NewService creates a new transfer service.
func NewService(cfg *ServiceConfig) (*Service, error) {
	if cfg == nil || cfg.Builder == nil {
		return nil, errors.New("builder required")
	}
	if cfg.Keys == nil {
		return nil, errors.New("key source required")
	}
	if cfg.Store == nil {
		return nil, errors.New("storage required")
	}
	if cfg.AllowBroadcast && cfg.Broadcaster == nil {
		return nil, errors.New("broadcaster required when broadcast is allowed")
	}

	signer := cfg.Signer
	if signer == nil {
		signer = wallet.P2PKHSigner{}
	}
	senderPath := cfg.SenderPath
	if len(senderPath) == 0 {
		senderPath = cfg.Builder.Params().DerivationPath(0, 0, 0)
	}

	return &Service{
		builder:        cfg.Builder,
		keys:           cfg.Keys,
		signer:         signer,
		store:          cfg.Store,
		broadcaster:    cfg.Broadcaster,
		senderPath:     senderPath,
		allowBroadcast: cfg.AllowBroadcast,
		addrLocks:      make(map[string]*sync.Mutex),
		log:            logging.GetDefault().Component("transfer"),
	}, nil
}

// OnEvent registers an event handler.
func (s *Service) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventHandlers = append(s.eventHandlers, handler)
}

func (s *Service) emitEvent(transferID, eventType string, data interface{}) {
	event := Event{
		TransferID: transferID,
		EventType:  eventType,
		Data:       data,
		Timestamp:  time.Now(),
	}

	s.mu.RLock()
	handlers := make([]EventHandler, len(s.eventHandlers))
	copy(handlers, s.eventHandlers)
	s.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}

// emitTransfer hands handlers a copy; t keeps changing after the event.
func (s *Service) emitTransfer(eventType string, t *storage.Transfer) {
	snapshot := *t
	s.emitEvent(t.ID, eventType, &snapshot)
}

// BroadcastAllowed reports whether sends may reach the network.
func (s *Service) BroadcastAllowed() bool {
	return s.allowBroadcast
}

// Sender returns the key that pays for sends.
func (s *Service) Sender() (*wallet.KeyPair, error) {
	return s.keys.KeyPair(s.builder.Params().Symbol, s.senderPath)
}

// Build assembles an unsigned transaction without touching keys. An empty
// Sender falls back to the configured sender key's address.
func (s *Service) Build(ctx context.Context, req Request) (*txbuilder.UnsignedTx, error) {
	if req.Sender == "" {
		kp, err := s.Sender()
		if err != nil {
			return nil, err
		}
		req.Sender = kp.Address
	}

	tx, err := s.builder.BuildTransaction(ctx, req)
	if err != nil {
		return nil, err
	}
	s.emitEvent("", EventBuilt, tx)
	return tx, nil
}

// Send builds, signs, and journals a payment. The transaction is submitted
// only when both the request and the service allow it.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if req.Broadcast && !s.allowBroadcast {
		return nil, ErrBroadcastDisabled
	}

	kp, err := s.Sender()
	if err != nil {
		return nil, fmt.Errorf("failed to derive sender key: %w", err)
	}

	unlock := s.lockAddress(kp.Address)
	defer unlock()

	unsigned, err := s.builder.BuildTransaction(ctx, Request{
		Sender:    kp.Address,
		Recipient: req.Recipient,
		Amount:    req.Amount,
		Memo:      req.Memo,
	})
	if err != nil {
		return nil, err
	}

	signed, err := s.signer.Sign(unsigned, wallet.SingleKeyring(len(unsigned.Inputs), kp.PrivKey))
	if err != nil {
		return nil, err
	}
	s.log.Info("transaction signed", "txid", signed.TxID(), "size", signed.Size(), "fee", unsigned.Fee)

	t := s.journalEntry(kp.Address, req, unsigned, signed)
	if err := s.store.CreateTransfer(t); err != nil {
		return nil, fmt.Errorf("failed to journal transfer: %w", err)
	}
	s.emitTransfer(EventSigned, t)

	result := &SendResult{Transfer: t, Unsigned: unsigned, Signed: signed}
	if !req.Broadcast {
		return result, nil
	}

	if err := s.broadcast(ctx, t, unsigned, signed); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Service) broadcast(ctx context.Context, t *storage.Transfer, unsigned *txbuilder.UnsignedTx, signed *wallet.SignedTx) error {
	outpoints := make([]storage.Outpoint, len(unsigned.Inputs))
	for i, in := range unsigned.Inputs {
		outpoints[i] = storage.Outpoint{TxID: in.TxID, Vout: in.Vout}
	}

	if err := s.store.ReserveOutpoints(t.ID, outpoints); err != nil {
		s.fail(t, err)
		return err
	}

	ref, err := s.broadcaster.BroadcastTransaction(ctx, signed.Hex())
	if err != nil {
		if relErr := s.store.ReleaseOutpoints(t.ID); relErr != nil {
			s.log.Error("failed to release outpoints", "transfer", t.ID, "error", relErr)
		}
		s.fail(t, err)
		return err
	}

	if err := s.store.MarkBroadcast(t.ID, ref); err != nil {
		s.log.Error("failed to record broadcast", "transfer", t.ID, "error", err)
	}
	t.Status = storage.TransferStatusBroadcast
	t.BroadcastRef = ref
	s.log.Info("broadcast submitted", "txid", t.TxID, "ref", ref)
	s.emitTransfer(EventBroadcast, t)
	return nil
}

func (s *Service) fail(t *storage.Transfer, cause error) {
	if err := s.store.MarkFailed(t.ID, cause.Error()); err != nil {
		s.log.Error("failed to record failure", "transfer", t.ID, "error", err)
	}
	t.Status = storage.TransferStatusFailed
	t.FailureReason = cause.Error()
	s.log.Warn("broadcast failed", "txid", t.TxID, "error", cause)
	s.emitTransfer(EventFailed, t)
}

func (s *Service) journalEntry(sender string, req SendRequest, unsigned *txbuilder.UnsignedTx, signed *wallet.SignedTx) *storage.Transfer {
	params := s.builder.Params()

	var change uint64
	if out, ok := unsigned.Change(); ok {
		change = out.Amount
	}

	return &storage.Transfer{
		ID:         uuid.New().String(),
		Chain:      params.Symbol,
		Network:    string(params.Network),
		Sender:     sender,
		Recipient:  req.Recipient,
		Amount:     unsigned.Outputs[0].Amount,
		Fee:        unsigned.Fee,
		Change:     change,
		Memo:       req.Memo,
		InputCount: len(unsigned.Inputs),
		TxID:       signed.TxID(),
		RawTx:      signed.Hex(),
		Status:     storage.TransferStatusSigned,
		CreatedAt:  time.Now(),
	}
}

// lockAddress serializes sends from one address and returns the unlock func.
func (s *Service) lockAddress(address string) func() {
	s.addrMu.Lock()
	l, ok := s.addrLocks[address]
	if !ok {
		l = &sync.Mutex{}
		s.addrLocks[address] = l
	}
	s.addrMu.Unlock()

	l.Lock()
	return l.Unlock
}

// Get returns a journaled transfer.
func (s *Service) Get(id string) (*storage.Transfer, error) {
	return s.store.GetTransfer(id)
}

// History returns the most recent transfers first.
func (s *Service) History(limit int) ([]*storage.Transfer, error) {
	return s.store.ListTransfers(limit)
}
