// Package memledger is an in-memory ledger node implementing the
// transport primitives plus the vault program's authoritative semantics.
// It exists so the full client → pipeline → program loop can be tested
// hermetically; the program logic here is the same guard and override
// code the client mirrors, which keeps both copies in lockstep.
package memledger

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"

	"github.com/vaultguard-labs/vaultguard-go/pkg/address"
	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/ledger"
	"github.com/vaultguard-labs/vaultguard-go/pkg/override"
	"github.com/vaultguard-labs/vaultguard-go/pkg/vault"
)

// DefaultProgramVersion is what the program-config account reports.
const DefaultProgramVersion = "1.3.0"

// TipValidity is how long a fetched chain tip anchors new transactions.
const TipValidity = 30 * time.Second

type vaultEntry struct {
	state *vault.State
	funds contracts.Address
}

// Ledger is the in-memory node. Safe for concurrent use; the internal
// mutex is the single point of serialization, exactly as the real
// program's runtime would be.
type Ledger struct {
	mu    sync.Mutex
	clock func() time.Time

	height    uint64
	vaults    map[contracts.Address]*vaultEntry
	balances  map[contracts.Address]uint64
	overrides *override.Manager
	treasury  contracts.Address
	version   string

	confirmations map[contracts.TxID]ledger.Confirmation
	// pendingPolls delays finalization by N confirm polls per tx.
	pendingPolls map[contracts.TxID]int
	confirmDelay int
	executedSigs map[contracts.TxID]struct{}

	subs map[contracts.Address][]chan ledger.AccountEvent

	// Fault injection for pipeline tests.
	failSubmits   int
	failWith      error
	ambiguousNext bool
}

// New creates an empty ledger.
func New() *Ledger {
	treasury, _, _ := address.FeeTreasury()
	l := &Ledger{
		clock:         time.Now,
		vaults:        make(map[contracts.Address]*vaultEntry),
		balances:      make(map[contracts.Address]uint64),
		treasury:      treasury,
		version:       DefaultProgramVersion,
		confirmations: make(map[contracts.TxID]ledger.Confirmation),
		pendingPolls:  make(map[contracts.TxID]int),
		executedSigs:  make(map[contracts.TxID]struct{}),
		subs:          make(map[contracts.Address][]chan ledger.AccountEvent),
	}
	l.overrides = override.NewManager().WithClock(func() time.Time { return l.clock() })
	return l
}

// WithClock overrides the node clock for deterministic tests.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
	return l
}

// SetConfirmDelay makes confirmations stay PENDING for n polls.
func (l *Ledger) SetConfirmDelay(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.confirmDelay = n
}

// FailNextSubmits makes the next n submissions fail with err before any
// execution. The transaction does not land.
func (l *Ledger) FailNextSubmits(n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failSubmits = n
	l.failWith = err
}

// AmbiguousNextSubmit executes the next submission but reports a
// transport failure, leaving the caller unsure whether it landed.
func (l *Ledger) AmbiguousNextSubmit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ambiguousNext = true
}

// SetProgramVersion overrides the version string served from the
// program config account.
func (l *Ledger) SetProgramVersion(v string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.version = v
}

// Fund credits a plain account. Test setup helper.
func (l *Ledger) Fund(addr contracts.Address, amt uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] += amt
}

// Balance reads a balance directly. Test assertion helper.
func (l *Ledger) Balance(addr contracts.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[addr]
}

// Overrides exposes the program's override registry for assertions.
func (l *Ledger) Overrides() *override.Manager {
	return l.overrides
}

// FetchChainTip implements ledger.Transport.
func (l *Ledger) FetchChainTip(ctx context.Context) (ledger.ChainTip, error) {
	if err := ctx.Err(); err != nil {
		return ledger.ChainTip{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.height++
	var h [32]byte
	binary.LittleEndian.PutUint64(h[:], l.height)
	sum := sha256.Sum256(h[:])
	return ledger.ChainTip{
		Hash:       sum,
		Height:     l.height,
		ValidUntil: l.clock().Add(TipValidity),
	}, nil
}

// FetchAccount implements ledger.Transport. Vault accounts return their
// encoded layout; the derived program-config account reports the program
// version; everything else is a plain balance account.
func (l *Ledger) FetchAccount(ctx context.Context, addr contracts.Address) (*ledger.AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if cfg, _, err := address.Derive("program-config"); err == nil && cfg == addr {
		return &ledger.AccountInfo{Address: addr, Data: []byte(l.version)}, nil
	}

	if entry, ok := l.vaults[addr]; ok {
		data, err := vault.Encode(entry.state)
		if err != nil {
			return nil, err
		}
		return &ledger.AccountInfo{Address: addr, Data: data, Balance: l.balances[addr]}, nil
	}
	return &ledger.AccountInfo{Address: addr, Balance: l.balances[addr]}, nil
}

// ConfirmSignature implements ledger.Transport.
func (l *Ledger) ConfirmSignature(ctx context.Context, id contracts.TxID) (ledger.Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Confirmation{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.confirmations[id]
	if !ok {
		return ledger.Confirmation{State: ledger.ConfirmationUnknown}, nil
	}
	if left := l.pendingPolls[id]; left > 0 {
		l.pendingPolls[id] = left - 1
		return ledger.Confirmation{State: ledger.ConfirmationPending}, nil
	}
	return c, nil
}

// SubmitTransaction implements ledger.Transport. Execution is atomic
// under the node lock. Resubmitting an identical signed transaction is
// idempotent: the node recognizes the signature and does not re-execute.
func (l *Ledger) SubmitTransaction(ctx context.Context, tx *ledger.SignedTx) (contracts.TxID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failSubmits > 0 {
		l.failSubmits--
		return "", l.failWith
	}

	id := tx.ID()
	if _, seen := l.executedSigs[id]; seen {
		return id, nil
	}

	now := l.clock()
	if !tx.Tx.Tip.Valid(now) {
		return "", &ledger.RPCError{Code: ledger.RPCCodeNodeBehind, Msg: "chain tip expired"}
	}
	if !ed25519.Verify(tx.Tx.Signer[:], tx.Tx.Payload(), tx.Signature) {
		return "", &ledger.ProgramFailure{Code: ledger.CodeUnauthorizedSigner}
	}

	err := l.apply(tx.Tx.Signer, tx.Tx.Instruction, now)
	l.executedSigs[id] = struct{}{}
	l.height++

	if err != nil {
		l.confirmations[id] = ledger.Confirmation{State: ledger.ConfirmationFailed, Err: err, Height: l.height}
		if l.ambiguousNext {
			l.ambiguousNext = false
			return "", &ledger.AmbiguousError{TxID: id, Err: &ledger.RPCError{Code: ledger.RPCCodeUnavailable, Msg: "connection reset"}}
		}
		return id, err
	}

	l.confirmations[id] = ledger.Confirmation{State: ledger.ConfirmationFinalized, Height: l.height}
	if l.confirmDelay > 0 {
		l.pendingPolls[id] = l.confirmDelay
	}
	l.notify(tx.Tx.Instruction.Vault)

	if l.ambiguousNext {
		l.ambiguousNext = false
		return "", &ledger.AmbiguousError{TxID: id, Err: &ledger.RPCError{Code: ledger.RPCCodeUnavailable, Msg: "connection reset"}}
	}
	return id, nil
}

// Subscribe implements ledger.Subscriber. Best effort: slow consumers
// lose events.
func (l *Ledger) Subscribe(ctx context.Context, addr contracts.Address) (<-chan ledger.AccountEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	ch := make(chan ledger.AccountEvent, 8)
	l.mu.Lock()
	l.subs[addr] = append(l.subs[addr], ch)
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		chans := l.subs[addr]
		for i, c := range chans {
			if c == ch {
				l.subs[addr] = append(chans[:i], chans[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel, nil
}

func (l *Ledger) notify(addr contracts.Address) {
	for _, ch := range l.subs[addr] {
		select {
		case ch <- ledger.AccountEvent{Address: addr, Height: l.height}:
		default:
		}
	}
}
