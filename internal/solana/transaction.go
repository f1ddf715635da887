package solana

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
)

// advanceNonceProgramID is the well-known System Program address; the
// AdvanceNonceAccount instruction is instruction index 4 within it.
var advanceNonceProgramID = PubKey{0} // System Program: all-zero address

const advanceNonceInstructionIndex = 4
const transferInstructionIndex = 2
const createAccountInstructionIndex = 0
const initializeNonceInstructionIndex = 6
const withdrawNonceInstructionIndex = 5

// Instruction is a single Solana transaction instruction: which program
// it targets, which accounts it touches, and its opaque data.
type Instruction struct {
	ProgramID PubKey
	Accounts  []PubKey
	Data      []byte
}

// Transaction is an unsigned (or partially signed) Solana transaction:
// a fee payer, a frozen blockhash (here, a durable nonce value), and an
// ordered instruction list whose first element is always AdvanceNonce
// for durable-nonce transactions.
type Transaction struct {
	FeePayer        PubKey
	RecentBlockhash [32]byte
	Instructions    []Instruction
}

// AdvanceNonceInstruction builds the instruction that must be the first
// in any durable-nonce transaction: it both advances the nonce (so the
// value this transaction was built against becomes single-use) and
// authorizes the transaction with the current nonce value standing in
// for recent_blockhash.
func AdvanceNonceInstruction(nonceAccount, authority PubKey) Instruction {
	return Instruction{
		ProgramID: advanceNonceProgramID,
		Accounts:  []PubKey{nonceAccount, authority},
		Data:      []byte{advanceNonceInstructionIndex},
	}
}

// CreateAccountInstruction builds the instruction that funds a brand new
// account owned by the system program: funder pays lamports into
// newAccount, which must co-sign since it is being created.
func CreateAccountInstruction(funder, newAccount PubKey, lamports uint64) Instruction {
	data := make([]byte, 1+8)
	data[0] = createAccountInstructionIndex
	binary.LittleEndian.PutUint64(data[1:], lamports)
	return Instruction{
		ProgramID: advanceNonceProgramID,
		Accounts:  []PubKey{funder, newAccount},
		Data:      data,
	}
}

// InitializeNonceInstruction builds the instruction that turns a freshly
// created account into a durable-nonce account under authority's control.
func InitializeNonceInstruction(nonceAccount, authority PubKey) Instruction {
	return Instruction{
		ProgramID: advanceNonceProgramID,
		Accounts:  []PubKey{nonceAccount, authority},
		Data:      []byte{initializeNonceInstructionIndex},
	}
}

// WithdrawNonceInstruction builds the instruction that closes nonceAccount,
// sending its entire rent-exempt balance to to; authority must sign.
func WithdrawNonceInstruction(nonceAccount, to, authority PubKey) Instruction {
	return Instruction{
		ProgramID: advanceNonceProgramID,
		Accounts:  []PubKey{nonceAccount, to, authority},
		Data:      []byte{withdrawNonceInstructionIndex},
	}
}

// TransferInstruction builds a simple system-program lamport transfer.
func TransferInstruction(from, to PubKey, lamports uint64, memo string) Instruction {
	data := make([]byte, 1+8)
	data[0] = transferInstructionIndex
	binary.LittleEndian.PutUint64(data[1:], lamports)
	if memo != "" {
		data = append(data, []byte(memo)...)
	}
	return Instruction{
		ProgramID: advanceNonceProgramID,
		Accounts:  []PubKey{from, to},
		Data:      data,
	}
}

// BuildDurableTransferRequest is the input to BuildDurableTransfer.
type BuildDurableTransferRequest struct {
	From         PubKey
	To           PubKey
	Lamports     uint64
	Memo         string
	NonceAccount PubKey
	Authority    PubKey
	NonceValue   [32]byte
}

// BuildDurableTransfer constructs an unsigned durable-nonce transfer
// transaction: AdvanceNonce first, then the user's transfer instruction,
// with recent_blockhash frozen to the supplied nonce value.
func BuildDurableTransfer(req BuildDurableTransferRequest) *Transaction {
	return &Transaction{
		FeePayer:        req.From,
		RecentBlockhash: req.NonceValue,
		Instructions: []Instruction{
			AdvanceNonceInstruction(req.NonceAccount, req.Authority),
			TransferInstruction(req.From, req.To, req.Lamports, req.Memo),
		},
	}
}

// message serializes the parts of the transaction that get signed:
// fee payer, blockhash, then each instruction's program id, account
// count + accounts, and data length + data.
func (tx *Transaction) message() []byte {
	var buf []byte
	buf = append(buf, tx.FeePayer[:]...)
	buf = append(buf, tx.RecentBlockhash[:]...)
	buf = append(buf, byte(len(tx.Instructions)))
	for _, ix := range tx.Instructions {
		buf = append(buf, ix.ProgramID[:]...)
		buf = append(buf, byte(len(ix.Accounts)))
		for _, a := range ix.Accounts {
			buf = append(buf, a[:]...)
		}
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(ix.Data)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, ix.Data...)
	}
	return buf
}

// SignedEnvelope is a signed transaction ready for RPC submission:
// [64B signature][message bytes].
type SignedEnvelope []byte

var ErrEnvelopeTooShort = errors.New("solana: envelope shorter than a signature")

// Sign produces a SignedEnvelope: the fee payer (acting as the nonce
// authority) signs the transaction message with their Ed25519 key.
func Sign(tx *Transaction, authority ed25519.PrivateKey) SignedEnvelope {
	msg := tx.message()
	sig := ed25519.Sign(authority, msg)
	env := make(SignedEnvelope, ed25519.SignatureSize+len(msg))
	copy(env, sig)
	copy(env[ed25519.SignatureSize:], msg)
	return env
}

// Verify checks a SignedEnvelope's signature against the claimed signer.
func Verify(env SignedEnvelope, signer ed25519.PublicKey) bool {
	if len(env) < ed25519.SignatureSize {
		return false
	}
	sig := env[:ed25519.SignatureSize]
	msg := env[ed25519.SignatureSize:]
	return ed25519.Verify(signer, msg, sig)
}

// SignMulti produces a SignedEnvelope for transactions that require more
// than one signer, such as CreateAccount (funder and new account both
// sign). Layout is [1B signer count][count * 64B signature][message
// bytes], signatures in the same order as signers.
func SignMulti(tx *Transaction, signers ...ed25519.PrivateKey) SignedEnvelope {
	msg := tx.message()
	env := make(SignedEnvelope, 1+len(signers)*ed25519.SignatureSize+len(msg))
	env[0] = byte(len(signers))
	for i, signer := range signers {
		sig := ed25519.Sign(signer, msg)
		copy(env[1+i*ed25519.SignatureSize:], sig)
	}
	copy(env[1+len(signers)*ed25519.SignatureSize:], msg)
	return env
}
