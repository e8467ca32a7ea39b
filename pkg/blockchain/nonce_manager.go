package blockchain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/logger"
)

// DefaultSyncInterval is how long a locally tracked nonce is trusted before re-reading the chain.
const DefaultSyncInterval = 5 * time.Minute

// NonceSource reads the pending nonce of an account.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// TransactionStatus represents the status of a transaction
type TransactionStatus int

const (
	// TxPending indicates transaction is pending
	TxPending TransactionStatus = iota
	// TxMined indicates transaction was included, whatever its receipt status
	TxMined
	// TxDropped indicates the transaction never made it into a block
	TxDropped
)

// TransactionRecord tracks details about a transaction
type TransactionRecord struct {
	Hash      common.Hash
	Nonce     uint64
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    TransactionStatus
}

// NonceManager hands out sequential nonces for one signing account and tracks in-flight transactions.
type NonceManager struct {
	source       NonceSource
	account      common.Address
	syncInterval time.Duration
	logger       logger.Logger

	mu           sync.Mutex
	currentNonce uint64
	pendingTxs   map[uint64]*TransactionRecord
	lastSync     time.Time
	now          func() time.Time
}

// NewNonceManager creates a new nonce manager
func NewNonceManager(source NonceSource, account common.Address, log logger.Logger) *NonceManager {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &NonceManager{
		source:       source,
		account:      account,
		syncInterval: DefaultSyncInterval,
		logger:       log,
		pendingTxs:   make(map[uint64]*TransactionRecord),
		now:          time.Now,
	}
}

// GetNonce reserves and returns the next available nonce
func (nm *NonceManager) GetNonce(ctx context.Context) (uint64, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.lastSync.IsZero() || nm.now().Sub(nm.lastSync) > nm.syncInterval {
		if err := nm.syncLocked(ctx); err != nil {
			return 0, err
		}
	}

	nonce := nm.currentNonce
	nm.currentNonce++
	return nonce, nil
}

// ReleaseNonce returns a reserved nonce that was never broadcast. Only the most recent reservation can be released.
func (nm *NonceManager) ReleaseNonce(nonce uint64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.currentNonce == nonce+1 {
		nm.currentNonce = nonce
		nm.logger.Debug("Released unused nonce %d", nonce)
		return
	}
	// a later nonce is already out; force a resync before the next reservation
	nm.lastSync = time.Time{}
}

// TrackTransaction records a new transaction
func (nm *NonceManager) TrackTransaction(txHash common.Hash, nonce uint64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	now := nm.now()
	nm.pendingTxs[nonce] = &TransactionRecord{
		Hash:      txHash,
		Nonce:     nonce,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    TxPending,
	}
	nm.logger.Debug("Tracking transaction with nonce %d: %s", nonce, txHash.Hex())
}

// MarkTransactionMined removes a transaction that was included in a block, reverted or not.
func (nm *NonceManager) MarkTransactionMined(nonce uint64) bool {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	tx, exists := nm.pendingTxs[nonce]
	if !exists {
		nm.logger.Notice("No pending transaction found for nonce %d", nonce)
		return false
	}
	tx.Status = TxMined
	tx.UpdatedAt = nm.now()
	delete(nm.pendingTxs, nonce)
	return true
}

// MarkTransactionDropped handles a transaction whose inclusion could not be confirmed.
// The chain is re-read before the next nonce is handed out.
func (nm *NonceManager) MarkTransactionDropped(nonce uint64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if tx, exists := nm.pendingTxs[nonce]; exists {
		tx.Status = TxDropped
		nm.logger.Notice("Transaction with nonce %d not confirmed: %s", nonce, tx.Hash.Hex())
		delete(nm.pendingTxs, nonce)
	}
	nm.lastSync = time.Time{}
}

// SyncWithBlockchain synchronizes nonce state with the blockchain
func (nm *NonceManager) SyncWithBlockchain(ctx context.Context) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	return nm.syncLocked(ctx)
}

func (nm *NonceManager) syncLocked(ctx context.Context) error {
	nonce, err := nm.source.PendingNonceAt(ctx, nm.account)
	if err != nil {
		return fmt.Errorf("failed to get pending nonce: %w", err)
	}

	if nonce != nm.currentNonce {
		nm.logger.Debug("Updating nonce for %s: %d -> %d", nm.account.Hex(), nm.currentNonce, nonce)
	}
	// the node's pending nonce is authoritative when nothing of ours is in flight
	if nonce > nm.currentNonce || len(nm.pendingTxs) == 0 {
		nm.currentNonce = nonce
	}
	nm.lastSync = nm.now()
	return nil
}

// GetPendingTransactionsCount returns the number of in-flight transactions
func (nm *NonceManager) GetPendingTransactionsCount() int {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	return len(nm.pendingTxs)
}
