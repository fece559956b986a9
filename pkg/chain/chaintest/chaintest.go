// Package chaintest provides an in-memory CHIPS/Verus daemon speaking the
// JSON-RPC subset the engine consumes, for exercising the roles against a
// controlled chain in tests.
package chaintest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/sg777/pangea/pkg/chain"
)

// Entry is one CMM entry with the height it was published at.
type Entry struct {
	Hex    string
	Height int64
}

// Identity is one on-chain identity with its content multimap.
type Identity struct {
	Name    string
	Address string
	CanSign bool
	CMM     map[string][]Entry
}

// TxOut is one transaction output.
type TxOut struct {
	Value     float64
	N         int
	Addresses []string
	Spent     bool
}

// Tx is one transaction.
type Tx struct {
	Txid   string
	Height int64
	Vout   []TxOut
}

// SendRecord captures a sendcurrency call.
type SendRecord struct {
	Source string
	Dest   string
	Amount float64
	Txid   string
}

// Daemon is the fake chain. All exported mutators are safe for concurrent
// use with the HTTP handler.
type Daemon struct {
	mu         sync.Mutex
	height     int64
	parentFQN  string
	identities map[string]*Identity
	txs        map[string]*Tx
	addrTxids  map[string][]string
	sends      []SendRecord
	txCounter  int

	srv *httptest.Server
}

// New starts a fake daemon namespacing short identity names under parentFQN.
func New(parentFQN string) *Daemon {
	d := &Daemon{
		height:     100,
		parentFQN:  parentFQN,
		identities: make(map[string]*Identity),
		txs:        make(map[string]*Tx),
		addrTxids:  make(map[string][]string),
	}
	d.srv = httptest.NewServer(http.HandlerFunc(d.handle))
	return d
}

// Close shuts the daemon down.
func (d *Daemon) Close() { d.srv.Close() }

// Client returns a chain client pointed at this daemon.
func (d *Daemon) Client() *chain.Client {
	return chain.NewClient(chain.Config{URL: d.srv.URL, UseREST: true}, nil)
}

// normalize strips the parent suffix so short and fully-qualified names hit
// the same identity.
func (d *Daemon) normalize(name string) string {
	return strings.TrimSuffix(name, "."+d.parentFQN)
}

// AddIdentity registers an identity.
func (d *Daemon) AddIdentity(name, address string, canSign bool) *Identity {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := &Identity{Name: name, Address: address, CanSign: canSign, CMM: make(map[string][]Entry)}
	d.identities[name] = id
	return id
}

// AppendEntry appends a JSON value under a key id on an identity at the
// current height.
func (d *Daemon) AppendEntry(name, keyID string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	d.AppendRaw(name, keyID, data)
}

// AppendRaw appends raw bytes under a key id at the current height.
func (d *Daemon) AppendRaw(name, keyID string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.identities[d.normalize(name)]
	if id == nil {
		panic("chaintest: unknown identity " + name)
	}
	id.CMM[keyID] = append(id.CMM[keyID], Entry{Hex: hex.EncodeToString(data), Height: d.height})
}

// Height returns the current chain height.
func (d *Daemon) Height() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.height
}

// MineBlocks advances the chain height.
func (d *Daemon) MineBlocks(n int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.height += n
}

// AddTx registers a transaction paying the given addresses.
func (d *Daemon) AddTx(txid string, height int64, outs []TxOut) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txs[txid] = &Tx{Txid: txid, Height: height, Vout: outs}
	for _, out := range outs {
		for _, addr := range out.Addresses {
			d.addrTxids[addr] = append(d.addrTxids[addr], txid)
		}
	}
}

// SpendTx marks every output of a transaction spent.
func (d *Daemon) SpendTx(txid string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tx := d.txs[txid]; tx != nil {
		for i := range tx.Vout {
			tx.Vout[i].Spent = true
		}
	}
}

// Sends returns the recorded sendcurrency calls.
func (d *Daemon) Sends() []SendRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]SendRecord(nil), d.sends...)
}

// VdxfID returns the deterministic id the fake daemon derives for a key
// name; tests use it to seed CMM entries.
func VdxfID(keyName string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(keyName)))
	return "i" + hex.EncodeToString(sum[:])[:33]
}

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (d *Daemon) handle(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, rpcErr := d.dispatch(&req)
	resp := map[string]interface{}{"result": result, "error": nil, "id": 1}
	if rpcErr != nil {
		resp["result"] = nil
		resp["error"] = map[string]interface{}{"code": -5, "message": rpcErr.Error()}
	}
	json.NewEncoder(w).Encode(resp)
}

func (d *Daemon) dispatch(req *rpcRequest) (interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch req.Method {
	case "getblockcount":
		return d.height, nil

	case "getvdxfid":
		var name string
		json.Unmarshal(req.Params[0], &name)
		return map[string]string{"vdxfid": VdxfID(name)}, nil

	case "getidentity":
		var name string
		json.Unmarshal(req.Params[0], &name)
		id := d.identities[d.normalize(name)]
		if id == nil {
			return nil, fmt.Errorf("identity not found")
		}
		return map[string]interface{}{
			"identity": map[string]interface{}{
				"name":            id.Name,
				"identityaddress": id.Address,
				"contentmultimap": d.cmmView(id, 0),
			},
			"cansignfor": id.CanSign,
			"status":     "active",
		}, nil

	case "getidentitycontent":
		var name string
		var heightStart int64
		json.Unmarshal(req.Params[0], &name)
		if len(req.Params) > 1 {
			json.Unmarshal(req.Params[1], &heightStart)
		}
		id := d.identities[d.normalize(name)]
		if id == nil {
			return nil, fmt.Errorf("identity not found")
		}
		return map[string]interface{}{
			"identity": map[string]interface{}{
				"contentmultimap": d.cmmView(id, heightStart),
			},
		}, nil

	case "updateidentity":
		var arg struct {
			Name            string              `json:"name"`
			ContentMultiMap map[string][]string `json:"contentmultimap"`
		}
		json.Unmarshal(req.Params[0], &arg)
		id := d.identities[d.normalize(arg.Name)]
		if id == nil {
			return nil, fmt.Errorf("identity not found")
		}
		if !id.CanSign {
			return nil, fmt.Errorf("no signing authority for %s", arg.Name)
		}
		for key, entries := range arg.ContentMultiMap {
			for _, e := range entries {
				id.CMM[key] = append(id.CMM[key], Entry{Hex: e, Height: d.height})
			}
		}
		d.txCounter++
		return fmt.Sprintf("txid%06d", d.txCounter), nil

	case "sendcurrency":
		var source string
		var outputs []struct {
			Amount  float64 `json:"amount"`
			Address string  `json:"address"`
		}
		json.Unmarshal(req.Params[0], &source)
		json.Unmarshal(req.Params[1], &outputs)
		d.txCounter++
		txid := fmt.Sprintf("sendtx%06d", d.txCounter)
		for _, out := range outputs {
			d.sends = append(d.sends, SendRecord{
				Source: source, Dest: out.Address, Amount: out.Amount, Txid: txid,
			})
			dest := d.identities[d.normalize(out.Address)]
			addr := out.Address
			if dest != nil {
				addr = dest.Address
			}
			tx := &Tx{Txid: txid, Height: d.height,
				Vout: []TxOut{{Value: out.Amount, N: 0, Addresses: []string{addr}}}}
			d.txs[txid] = tx
			d.addrTxids[addr] = append(d.addrTxids[addr], txid)
		}
		return "opid-" + txid, nil

	case "z_getoperationstatus":
		var opids []string
		json.Unmarshal(req.Params[0], &opids)
		var ops []map[string]interface{}
		for _, opid := range opids {
			ops = append(ops, map[string]interface{}{
				"id":     opid,
				"status": "success",
				"result": map[string]string{"txid": strings.TrimPrefix(opid, "opid-")},
			})
		}
		return ops, nil

	case "getrawtransaction":
		var txid string
		json.Unmarshal(req.Params[0], &txid)
		tx := d.txs[txid]
		if tx == nil {
			return nil, fmt.Errorf("no such transaction")
		}
		vouts := make([]map[string]interface{}, len(tx.Vout))
		for i, out := range tx.Vout {
			vouts[i] = map[string]interface{}{
				"value": out.Value,
				"n":     out.N,
				"scriptPubKey": map[string]interface{}{
					"addresses": out.Addresses,
				},
			}
		}
		return map[string]interface{}{
			"txid":   tx.Txid,
			"height": tx.Height,
			"vout":   vouts,
		}, nil

	case "gettxout":
		var txid string
		var n int
		json.Unmarshal(req.Params[0], &txid)
		json.Unmarshal(req.Params[1], &n)
		tx := d.txs[txid]
		if tx == nil || n >= len(tx.Vout) || tx.Vout[n].Spent {
			return nil, nil // null result: spent or unknown
		}
		return map[string]interface{}{"value": tx.Vout[n].Value}, nil

	case "getaddresstxids":
		var arg struct {
			Addresses []string `json:"addresses"`
			Start     int64    `json:"start"`
		}
		json.Unmarshal(req.Params[0], &arg)
		var txids []string
		for _, addr := range arg.Addresses {
			for _, txid := range d.addrTxids[addr] {
				if tx := d.txs[txid]; tx != nil && tx.Height >= arg.Start {
					txids = append(txids, txid)
				}
			}
		}
		return txids, nil

	case "listunspent":
		var utxos []map[string]interface{}
		for _, tx := range d.txs {
			for _, out := range tx.Vout {
				if out.Spent {
					continue
				}
				utxos = append(utxos, map[string]interface{}{
					"txid": tx.Txid, "vout": out.N, "amount": out.Value,
					"spendable": true, "confirmations": d.height - tx.Height,
				})
			}
		}
		return utxos, nil
	}
	return nil, fmt.Errorf("unhandled method %s", req.Method)
}

// cmmView renders an identity's multimap filtered from heightStart.
func (d *Daemon) cmmView(id *Identity, heightStart int64) map[string][]string {
	out := make(map[string][]string)
	for key, entries := range id.CMM {
		for _, e := range entries {
			if e.Height >= heightStart {
				out[key] = append(out[key], e.Hex)
			}
		}
	}
	return out
}
