package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dverbin/mediavault/internal/common"
	"github.com/dverbin/mediavault/internal/wallet"
)

// RPCLedger submits wallet-signed contract calls to a chain fullnode over
// JSON-RPC 2.0.
type RPCLedger struct {
	url    string
	pkg    string
	signer *wallet.Signer
	client *http.Client
	reqID  atomic.Int64
}

func NewRPCLedger(url, contractPackage string, signer *wallet.Signer) *RPCLedger {
	return &RPCLedger{
		url:    url,
		pkg:    contractPackage,
		signer: signer,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type executePayload struct {
	Package  string `json:"package"`
	Function string `json:"function"`
	Args     []any  `json:"args"`
	Sender   string `json:"sender"`
	Payment  uint64 `json:"payment"`
}

type signedPayload struct {
	executePayload
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
}

type txResponse struct {
	Digest        string `json:"digest"`
	ObjectChanges []struct {
		Type       string `json:"type"`
		ObjectType string `json:"objectType"`
		ObjectID   string `json:"objectId"`
	} `json:"objectChanges"`
	Events []struct {
		Type       string         `json:"type"`
		ParsedJSON map[string]any `json:"parsedJson"`
	} `json:"events"`
	Effects struct {
		Created []struct {
			ObjectID string `json:"objectId"`
		} `json:"created"`
		Mutated []struct {
			ObjectID string `json:"objectId"`
		} `json:"mutated"`
	} `json:"effects"`
}

// ExecuteCall signs the call payload and submits it. Any ledger-side
// rejection (wallet decline relayed by the node, or a contract abort) is
// surfaced verbatim wrapped in common.ErrTransactionRejected; the caller
// never retries these.
func (l *RPCLedger) ExecuteCall(ctx context.Context, call Call) (*TxResult, error) {
	payload := executePayload{
		Package:  l.pkg,
		Function: call.Function,
		Args:     call.Args,
		Sender:   l.signer.Address(),
		Payment:  call.Payment,
	}

	msg, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	signed := signedPayload{
		executePayload: payload,
		Signature:      l.signer.Sign(msg),
		PublicKey:      l.signer.PublicKey(),
	}

	var tx txResponse
	if err := l.callRPC(ctx, "vault_executeCall", []any{signed}, &tx); err != nil {
		var rerr *rpcError
		if errors.As(err, &rerr) {
			return nil, fmt.Errorf("%s: %w", rerr.Message, common.ErrTransactionRejected)
		}
		return nil, err
	}

	return toTxResult(&tx), nil
}

// FindIntent looks up an existing registration intent for a blob id.
func (l *RPCLedger) FindIntent(ctx context.Context, blobID string) (string, error) {
	var out struct {
		ObjectID string `json:"objectId"`
	}
	if err := l.callRPC(ctx, "vault_findIntent", []any{blobID}, &out); err != nil {
		var rerr *rpcError
		if errors.As(err, &rerr) && rerr.Code == codeNotFound {
			return "", fmt.Errorf("intent for blob %s: %w", blobID, common.ErrorNotFound)
		}
		return "", err
	}
	return out.ObjectID, nil
}

// ObjectType fetches the on-ledger type tag of an object.
func (l *RPCLedger) ObjectType(ctx context.Context, objectID string) (string, error) {
	var out struct {
		Type string `json:"type"`
	}
	if err := l.callRPC(ctx, "vault_getObject", []any{objectID}, &out); err != nil {
		return "", err
	}
	return out.Type, nil
}

const codeNotFound = -32004

func (l *RPCLedger) callRPC(ctx context.Context, method string, params []any, out any) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      l.reqID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("ledger rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger rpc %s: unexpected status %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("ledger rpc %s: decoding response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("ledger rpc %s: %w", method, rpcResp.Error)
	}

	return json.Unmarshal(rpcResp.Result, out)
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func toTxResult(tx *txResponse) *TxResult {
	res := &TxResult{Digest: tx.Digest}
	for _, ch := range tx.ObjectChanges {
		res.ObjectChanges = append(res.ObjectChanges, ObjectChange{
			Kind:       ch.Type,
			ObjectType: ch.ObjectType,
			ObjectID:   ch.ObjectID,
		})
	}
	for _, ev := range tx.Events {
		res.Events = append(res.Events, Event{Type: ev.Type, ParsedJSON: ev.ParsedJSON})
	}
	for _, c := range tx.Effects.Created {
		res.Created = append(res.Created, c.ObjectID)
	}
	for _, m := range tx.Effects.Mutated {
		res.Mutated = append(res.Mutated, m.ObjectID)
	}
	return res
}
