package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
	"github.com/vaultguard-labs/vaultguard-go/pkg/vault"
)

// OpCode identifies one program operation.
type OpCode uint8

const (
	OpInitializeVault OpCode = iota
	OpExecuteTransfer
	OpUpdatePolicy
	OpAddWhitelist
	OpRemoveWhitelist
	OpPause
	OpResume
	OpCreateOverride
	OpApproveOverride
	OpExecuteOverride
	OpCancelOverride
)

func (op OpCode) String() string {
	switch op {
	case OpInitializeVault:
		return "initialize-vault"
	case OpExecuteTransfer:
		return "execute-transfer"
	case OpUpdatePolicy:
		return "update-policy"
	case OpAddWhitelist:
		return "add-whitelist"
	case OpRemoveWhitelist:
		return "remove-whitelist"
	case OpPause:
		return "pause"
	case OpResume:
		return "resume"
	case OpCreateOverride:
		return "create-override"
	case OpApproveOverride:
		return "approve-override"
	case OpExecuteOverride:
		return "execute-override"
	case OpCancelOverride:
		return "cancel-override"
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Instruction is one program invocation: opcode, target vault and
// little-endian packed arguments.
type Instruction struct {
	Op    OpCode
	Vault contracts.Address
	Args  []byte
}

// Encode packs the instruction for the wire: op(1) ‖ vault(32) ‖ args.
func (in *Instruction) Encode() []byte {
	out := make([]byte, 1+32+len(in.Args))
	out[0] = uint8(in.Op)
	copy(out[1:], in.Vault[:])
	copy(out[33:], in.Args)
	return out
}

// DecodeInstruction parses a wire-encoded instruction.
func DecodeInstruction(data []byte) (*Instruction, error) {
	if len(data) < 33 {
		return nil, errs.Validation("instruction too short: %d bytes", len(data))
	}
	in := &Instruction{Op: OpCode(data[0])}
	copy(in.Vault[:], data[1:33])
	in.Args = append([]byte(nil), data[33:]...)
	return in, nil
}

// InitializeVaultArgs creates a vault under the signing authority.
type InitializeVaultArgs struct {
	AgentSigner    contracts.Address
	DailyLimit     uint64
	FeeBasisPoints uint16
	VaultNonce     uint64
	Name           string
}

// NewInitializeVault builds the instruction. The vault address must be
// the derived address for (authority, vaultNonce).
func NewInitializeVault(vaultAddr contracts.Address, a InitializeVaultArgs) (*Instruction, error) {
	if err := vault.ValidateName(a.Name); err != nil {
		return nil, err
	}
	args := make([]byte, 32+8+2+8+1+len(a.Name))
	off := 0
	copy(args[off:], a.AgentSigner[:])
	off += 32
	binary.LittleEndian.PutUint64(args[off:], a.DailyLimit)
	off += 8
	binary.LittleEndian.PutUint16(args[off:], a.FeeBasisPoints)
	off += 2
	binary.LittleEndian.PutUint64(args[off:], a.VaultNonce)
	off += 8
	args[off] = uint8(len(a.Name))
	off++
	copy(args[off:], a.Name)
	return &Instruction{Op: OpInitializeVault, Vault: vaultAddr, Args: args}, nil
}

// DecodeInitializeVault unpacks OpInitializeVault args.
func DecodeInitializeVault(args []byte) (InitializeVaultArgs, error) {
	var a InitializeVaultArgs
	if len(args) < 32+8+2+8+1 {
		return a, errs.Validation("initialize-vault args too short")
	}
	off := 0
	copy(a.AgentSigner[:], args[off:])
	off += 32
	a.DailyLimit = binary.LittleEndian.Uint64(args[off:])
	off += 8
	a.FeeBasisPoints = binary.LittleEndian.Uint16(args[off:])
	off += 2
	a.VaultNonce = binary.LittleEndian.Uint64(args[off:])
	off += 8
	nameLen := int(args[off])
	off++
	if len(args) != off+nameLen {
		return a, errs.Validation("initialize-vault name length mismatch")
	}
	a.Name = string(args[off : off+nameLen])
	return a, nil
}

// TransferArgs moves funds from the vault to a destination under policy.
type TransferArgs struct {
	Destination contracts.Address
	Amount      uint64
	Role        contracts.SignerRole
}

// NewExecuteTransfer builds the guarded/agent transfer instruction. Both
// signer roles share one operation; the role selects which vault identity
// the transaction signer must match.
func NewExecuteTransfer(vaultAddr contracts.Address, a TransferArgs) (*Instruction, error) {
	if a.Amount == 0 {
		return nil, errs.Validation("transfer amount must be at least 1 base unit")
	}
	roleByte := uint8(0)
	switch a.Role {
	case contracts.RoleOwner:
	case contracts.RoleAgent:
		roleByte = 1
	default:
		return nil, errs.Validation("unknown signer role %q", a.Role)
	}
	args := make([]byte, 32+8+1)
	copy(args, a.Destination[:])
	binary.LittleEndian.PutUint64(args[32:], a.Amount)
	args[40] = roleByte
	return &Instruction{Op: OpExecuteTransfer, Vault: vaultAddr, Args: args}, nil
}

// DecodeTransfer unpacks OpExecuteTransfer args.
func DecodeTransfer(args []byte) (TransferArgs, error) {
	var a TransferArgs
	if len(args) != 32+8+1 {
		return a, errs.Validation("transfer args must be 41 bytes")
	}
	copy(a.Destination[:], args)
	a.Amount = binary.LittleEndian.Uint64(args[32:])
	switch args[40] {
	case 0:
		a.Role = contracts.RoleOwner
	case 1:
		a.Role = contracts.RoleAgent
	default:
		return a, errs.Validation("unknown signer role byte %d", args[40])
	}
	return a, nil
}

// PolicyArgs updates the vault's spending policy. Owner-signed only.
type PolicyArgs struct {
	DailyLimit     uint64
	FeeBasisPoints uint16
}

// NewUpdatePolicy builds the policy update instruction.
func NewUpdatePolicy(vaultAddr contracts.Address, a PolicyArgs) *Instruction {
	args := make([]byte, 8+2)
	binary.LittleEndian.PutUint64(args, a.DailyLimit)
	binary.LittleEndian.PutUint16(args[8:], a.FeeBasisPoints)
	return &Instruction{Op: OpUpdatePolicy, Vault: vaultAddr, Args: args}
}

// DecodePolicy unpacks OpUpdatePolicy args.
func DecodePolicy(args []byte) (PolicyArgs, error) {
	var a PolicyArgs
	if len(args) != 10 {
		return a, errs.Validation("policy args must be 10 bytes")
	}
	a.DailyLimit = binary.LittleEndian.Uint64(args)
	a.FeeBasisPoints = binary.LittleEndian.Uint16(args[8:])
	return a, nil
}

// NewWhitelistChange builds an add- or remove-whitelist instruction.
func NewWhitelistChange(vaultAddr contracts.Address, op OpCode, dest contracts.Address) (*Instruction, error) {
	if op != OpAddWhitelist && op != OpRemoveWhitelist {
		return nil, errs.Validation("opcode %s is not a whitelist change", op)
	}
	if dest.IsZero() {
		return nil, errs.Validation("whitelist destination must not be the zero address")
	}
	args := make([]byte, 32)
	copy(args, dest[:])
	return &Instruction{Op: op, Vault: vaultAddr, Args: args}, nil
}

// DecodeWhitelistChange unpacks the destination argument.
func DecodeWhitelistChange(args []byte) (contracts.Address, error) {
	if len(args) != 32 {
		return contracts.ZeroAddress, errs.Validation("whitelist args must be 32 bytes")
	}
	var dest contracts.Address
	copy(dest[:], args)
	return dest, nil
}

// NewPause and NewResume toggle the vault's pause flag. Owner-signed.
func NewPause(vaultAddr contracts.Address) *Instruction {
	return &Instruction{Op: OpPause, Vault: vaultAddr}
}

// NewResume clears the pause flag.
func NewResume(vaultAddr contracts.Address) *Instruction {
	return &Instruction{Op: OpResume, Vault: vaultAddr}
}

// CreateOverrideArgs escalates a blocked transfer.
type CreateOverrideArgs struct {
	Destination contracts.Address
	Amount      uint64
	Reason      contracts.BlockReason
}

var reasonCodes = map[contracts.BlockReason]uint8{
	contracts.BlockNotWhitelisted:     1,
	contracts.BlockDailyLimitExceeded: 2,
	contracts.BlockInsufficientFunds:  3,
}

// NewCreateOverride builds the override request instruction.
func NewCreateOverride(vaultAddr contracts.Address, a CreateOverrideArgs) (*Instruction, error) {
	code, ok := reasonCodes[a.Reason]
	if !ok {
		return nil, errs.Validation("block reason %s cannot be escalated", a.Reason)
	}
	if a.Amount == 0 {
		return nil, errs.Validation("override amount must be at least 1 base unit")
	}
	args := make([]byte, 32+8+1)
	copy(args, a.Destination[:])
	binary.LittleEndian.PutUint64(args[32:], a.Amount)
	args[40] = code
	return &Instruction{Op: OpCreateOverride, Vault: vaultAddr, Args: args}, nil
}

// DecodeCreateOverride unpacks OpCreateOverride args.
func DecodeCreateOverride(args []byte) (CreateOverrideArgs, error) {
	var a CreateOverrideArgs
	if len(args) != 32+8+1 {
		return a, errs.Validation("create-override args must be 41 bytes")
	}
	copy(a.Destination[:], args)
	a.Amount = binary.LittleEndian.Uint64(args[32:])
	for reason, code := range reasonCodes {
		if code == args[40] {
			a.Reason = reason
			return a, nil
		}
	}
	return a, errs.Validation("unknown block reason code %d", args[40])
}

// NewOverrideAction builds an approve-, execute- or cancel-override
// instruction for the override identified by nonce.
func NewOverrideAction(vaultAddr contracts.Address, op OpCode, nonce uint64) (*Instruction, error) {
	if op != OpApproveOverride && op != OpExecuteOverride && op != OpCancelOverride {
		return nil, errs.Validation("opcode %s is not an override action", op)
	}
	args := make([]byte, 8)
	binary.LittleEndian.PutUint64(args, nonce)
	return &Instruction{Op: op, Vault: vaultAddr, Args: args}, nil
}

// DecodeOverrideAction unpacks the nonce argument.
func DecodeOverrideAction(args []byte) (uint64, error) {
	if len(args) != 8 {
		return 0, errs.Validation("override action args must be 8 bytes")
	}
	return binary.LittleEndian.Uint64(args), nil
}
