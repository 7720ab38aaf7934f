package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
	"github.com/vaultguard-labs/vaultguard-go/pkg/keyring"
)

// Transaction anchors one instruction to a chain tip under one signer.
type Transaction struct {
	Tip         ChainTip
	Signer      contracts.Address
	Instruction *Instruction
}

// Payload is the byte string the signer signs: tipHash(32) ‖ tipHeight(8)
// ‖ signer(32) ‖ encoded instruction.
func (t *Transaction) Payload() []byte {
	ins := t.Instruction.Encode()
	out := make([]byte, 32+8+32+len(ins))
	copy(out, t.Tip.Hash[:])
	binary.LittleEndian.PutUint64(out[32:], t.Tip.Height)
	copy(out[40:], t.Signer[:])
	copy(out[72:], ins)
	return out
}

// SignedTx is a transaction with its ed25519 signature attached.
type SignedTx struct {
	Tx        *Transaction
	Signature []byte
}

// Sign produces the signed transaction. The keyring's address must match
// the transaction's declared signer.
func Sign(tx *Transaction, k *keyring.Keyring) (*SignedTx, error) {
	if k.Address() != tx.Signer {
		return nil, errs.Validation("keyring address %s does not match transaction signer %s",
			k.Address().Short(), tx.Signer.Short())
	}
	sig, err := k.Sign(tx.Payload())
	if err != nil {
		return nil, errs.Internal(err, "signing failed")
	}
	return &SignedTx{Tx: tx, Signature: sig}, nil
}

// ID derives the ledger identifier of a signed transaction: the hex
// SHA-256 of its signature. Deterministic, so re-deriving the ID of an
// already-submitted transaction always matches what the node reported.
func (s *SignedTx) ID() contracts.TxID {
	sum := sha256.Sum256(s.Signature)
	return contracts.TxID(hex.EncodeToString(sum[:]))
}
