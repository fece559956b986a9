package chain

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// The typed wrappers below cover the RPC surface the poker engine consumes.
// Amounts are CHIPS as JSON numbers with 8 decimals of precision.

// ErrTxNotFound is returned when a transaction lookup misses.
var ErrTxNotFound = errors.New("chain: transaction not found")

// Identity is the subset of a getidentity result the engine reads.
type Identity struct {
	Identity struct {
		Name            string                     `json:"name"`
		IdentityAddress string                     `json:"identityaddress"`
		Parent          string                     `json:"parent"`
		ContentMultiMap map[string]json.RawMessage `json:"contentmultimap"`
	} `json:"identity"`
	CanSignFor bool  `json:"cansignfor"`
	Status     string `json:"status"`
}

// TxOutput is one vout of a verbose raw transaction.
type TxOutput struct {
	Value        float64 `json:"value"`
	N            int     `json:"n"`
	ScriptPubKey struct {
		Addresses []string `json:"addresses"`
	} `json:"scriptPubKey"`
}

// RawTransaction is the subset of a verbose getrawtransaction result used for
// payin validation and settlement checks.
type RawTransaction struct {
	Txid          string     `json:"txid"`
	Height        int64      `json:"height"`
	Confirmations int64      `json:"confirmations"`
	Vout          []TxOutput `json:"vout"`
}

// Unspent is one listunspent entry.
type Unspent struct {
	Txid          string  `json:"txid"`
	Vout          int     `json:"vout"`
	Address       string  `json:"address"`
	Amount        float64 `json:"amount"`
	Confirmations int64   `json:"confirmations"`
	Spendable     bool    `json:"spendable"`
}

// OperationStatus is one z_getoperationstatus entry.
type OperationStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result struct {
		Txid string `json:"txid"`
	} `json:"result"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GetBlockCount returns the current chain height.
func (c *Client) GetBlockCount() (int64, error) {
	var height int64
	err := c.Call("getblockcount", nil, &height)
	return height, err
}

// GetBlockHash returns the hash of the block at the given height.
func (c *Client) GetBlockHash(height int64) (string, error) {
	var hash string
	err := c.Call("getblockhash", []interface{}{height}, &hash)
	return hash, err
}

// GetIdentity fetches an identity at the tip (height -1).
func (c *Client) GetIdentity(name string) (*Identity, error) {
	var id Identity
	if err := c.Call("getidentity", []interface{}{name, -1}, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// IdentityExists reports whether the named identity resolves.
func (c *Client) IdentityExists(name string) bool {
	_, err := c.GetIdentity(name)
	return err == nil
}

// CanSignFor reports whether this wallet holds signing authority for the
// identity.
func (c *Client) CanSignFor(name string) (bool, error) {
	id, err := c.GetIdentity(name)
	if err != nil {
		return false, err
	}
	return id.CanSignFor, nil
}

// GetIdentityContent returns the combined content multimap of all identity
// updates in [heightStart, tip], including mempool entries. Every in-hand
// reader passes the table's start_block so prior hands stay invisible.
func (c *Client) GetIdentityContent(name string, heightStart int64) (map[string][]string, error) {
	var result struct {
		Identity struct {
			ContentMultiMap map[string]json.RawMessage `json:"contentmultimap"`
		} `json:"identity"`
		ContentMultiMap map[string]json.RawMessage `json:"contentmultimap"`
	}
	err := c.Call("getidentitycontent", []interface{}{name, heightStart, -1}, &result)
	if err != nil {
		return nil, err
	}
	raw := result.ContentMultiMap
	if raw == nil {
		raw = result.Identity.ContentMultiMap
	}

	cmm := make(map[string][]string, len(raw))
	for key, entries := range raw {
		var list []string
		if err := json.Unmarshal(entries, &list); err != nil {
			// Single-entry keys may be returned unwrapped.
			var one string
			if err := json.Unmarshal(entries, &one); err != nil {
				continue
			}
			list = []string{one}
		}
		cmm[key] = list
	}
	return cmm, nil
}

// UpdateIdentity appends the given content multimap to the identity. The
// chain merges per-key entry lists additively. Retried per the write policy.
func (c *Client) UpdateIdentity(name, parent string, cmm map[string][]string) (string, error) {
	idInfo := map[string]interface{}{
		"name":            name,
		"parent":          parent,
		"contentmultimap": cmm,
	}
	return c.callWithRetry("updateidentity", []interface{}{idInfo})
}

// SendCurrency sends CHIPS from source to a single destination, optionally
// attaching a hex-encoded JSON data output. Returns the operation id.
func (c *Client) SendCurrency(source, dest string, amount float64, data interface{}) (string, error) {
	out := map[string]interface{}{
		"currency": "chips",
		"amount":   amount,
		"address":  dest,
	}
	if data != nil {
		blob, err := json.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("chain: sendcurrency: marshal data: %w", err)
		}
		out["memo"] = hex.EncodeToString(blob)
	}
	return c.callWithRetry("sendcurrency", []interface{}{source, []interface{}{out}, 1, 0.0001})
}

// callWithRetry retries chain writes up to 3 times with an intervening
// block-wait, then surfaces the last error.
func (c *Client) callWithRetry(method string, params []interface{}) (string, error) {
	const retries = 3
	var lastErr error
	for i := 0; i < retries; i++ {
		var txid string
		lastErr = c.Call(method, params, &txid)
		if lastErr == nil && txid != "" {
			return txid, nil
		}
		if c.log != nil {
			c.log.Warnf("Retrying %s: %v", method, lastErr)
		}
		c.WaitForBlockTime()
	}
	if lastErr == nil {
		lastErr = ErrEmptyResult
	}
	return "", fmt.Errorf("chain: %s failed after %d attempts: %w", method, retries, lastErr)
}

// GetOperationStatus fetches the status of async wallet operations.
func (c *Client) GetOperationStatus(opid string) ([]OperationStatus, error) {
	var ops []OperationStatus
	err := c.Call("z_getoperationstatus", []interface{}{[]string{opid}}, &ops)
	return ops, err
}

// WaitForOperation polls an operation id until it leaves the executing state
// and returns the resulting txid.
func (c *Client) WaitForOperation(opid string) (string, error) {
	for {
		ops, err := c.GetOperationStatus(opid)
		if err != nil {
			return "", err
		}
		if len(ops) == 0 {
			return "", fmt.Errorf("chain: operation %s not found", opid)
		}
		switch ops[0].Status {
		case "executing", "queued":
			time.Sleep(time.Second)
		case "success":
			return ops[0].Result.Txid, nil
		default:
			return "", fmt.Errorf("chain: operation %s failed: %s", opid, ops[0].Error.Message)
		}
	}
}

// GetRawTransaction fetches a verbose transaction.
func (c *Client) GetRawTransaction(txid string) (*RawTransaction, error) {
	var tx RawTransaction
	if err := c.Call("getrawtransaction", []interface{}{txid, 1}, &tx); err != nil {
		var rpcErr *RPCError
		if errors.Is(err, ErrEmptyResult) || (errors.As(err, &rpcErr) && rpcErr.Code == -5) {
			return nil, ErrTxNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// TxExists reports whether the txid is known to the daemon (mempool or chain).
func (c *Client) TxExists(txid string) bool {
	_, err := c.GetRawTransaction(txid)
	return err == nil
}

// TxOutUnspent reports whether the given output is still unspent. A null
// gettxout result means the output has been spent.
func (c *Client) TxOutUnspent(txid string, vout int) (bool, error) {
	var result json.RawMessage
	err := c.Call("gettxout", []interface{}{txid, vout}, &result)
	if err != nil {
		if errors.Is(err, ErrEmptyResult) {
			return false, nil
		}
		return false, err
	}
	return len(result) > 0 && string(result) != "null", nil
}

// GetAddressTxids returns all txids touching the address from start onwards.
// end <= 0 means the tip.
func (c *Client) GetAddressTxids(address string, start, end int64) ([]string, error) {
	arg := map[string]interface{}{
		"addresses": []string{address},
		"start":     start,
	}
	if end > 0 {
		arg["end"] = end
	}
	var txids []string
	err := c.Call("getaddresstxids", []interface{}{arg}, &txids)
	return txids, err
}

// GetVdxfID resolves a hierarchical key name to its vdxf id.
func (c *Client) GetVdxfID(keyName string) (string, error) {
	var result struct {
		VdxfID string `json:"vdxfid"`
	}
	if err := c.Call("getvdxfid", []interface{}{keyName}, &result); err != nil {
		return "", err
	}
	return result.VdxfID, nil
}

// ListUnspent returns the wallet's spendable outputs.
func (c *Client) ListUnspent() ([]Unspent, error) {
	var utxos []Unspent
	err := c.Call("listunspent", nil, &utxos)
	return utxos, err
}

// Balance sums the wallet's spendable outputs.
func (c *Client) Balance() (float64, error) {
	utxos, err := c.ListUnspent()
	if err != nil {
		return 0, err
	}
	var total float64
	for _, u := range utxos {
		if u.Spendable {
			total += u.Amount
		}
	}
	return total, nil
}

// WaitForBlockTime sleeps roughly one block interval. Used between write
// retries so a pending identity update can confirm.
func (c *Client) WaitForBlockTime() {
	time.Sleep(5 * time.Second)
}

// WaitForBlocks blocks until the chain has advanced n blocks past the height
// observed at entry, or the timeout elapses.
func (c *Client) WaitForBlocks(n int64, timeout time.Duration) error {
	start, err := c.GetBlockCount()
	if err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		height, err := c.GetBlockCount()
		if err != nil {
			return err
		}
		if height >= start+n {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("chain: timed out waiting for %d blocks", n)
		}
		time.Sleep(2 * time.Second)
	}
}
