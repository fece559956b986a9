package vdxf

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/decred/slog"
	"github.com/sg777/pangea/pkg/chain"
)

var (
	// ErrKeyNotFound means the identity carries no entry for the key within
	// the filtered height window.
	ErrKeyNotFound = errors.New("vdxf: key not found in content multimap")
	// ErrUpdateTooLarge means a single entry would exceed the chain's
	// per-transaction identity update limit.
	ErrUpdateTooLarge = errors.New("vdxf: update payload exceeds identity update limit")
)

// MaxEntryBytes bounds a single CMM entry. A 14-card deck entry, share
// commitments included, fits under this; a 52-card deck needs chunked
// updates, which are not supported.
const MaxEntryBytes = 16384

// Chain is the part of the chain client the CMM layer needs.
type Chain interface {
	GetIdentity(name string) (*chain.Identity, error)
	GetIdentityContent(name string, heightStart int64) (map[string][]string, error)
	UpdateIdentity(name, parent string, cmm map[string][]string) (string, error)
	GetVdxfID(keyName string) (string, error)
}

// Client reads and appends identity content-multimap entries. Appending never
// rewrites prior entries; readers reconstruct a value by taking the last
// entry for a key within [heightStart, tip].
type Client struct {
	chain     Chain
	prefix    string
	parentFQN string // e.g. "poker.sg777z.chips.vrsc@"
	log       slog.Logger

	mu    sync.Mutex
	cache map[string]string // full key name -> vdxfid
}

// New creates a CMM client. parentFQN is the fully-qualified parent identity
// all short names are namespaced under.
func New(c Chain, prefix, parentFQN string, log slog.Logger) *Client {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Client{
		chain:     c,
		prefix:    prefix,
		parentFQN: parentFQN,
		log:       log,
		cache:     make(map[string]string),
	}
}

// FQN qualifies a short identity name under the poker parent. Names already
// containing a dot are passed through.
func (c *Client) FQN(id string) string {
	if strings.Contains(id, ".") {
		return id
	}
	return id + "." + c.parentFQN
}

// ParentFQN returns the configured parent identity.
func (c *Client) ParentFQN() string { return c.parentFQN }

// KeyID resolves a logical key name to its vdxf id, caching results; the
// daemon derives the id from a hash of the full key name, so it never changes.
func (c *Client) KeyID(keyName string) (string, error) {
	full := c.prefix + keyName
	c.mu.Lock()
	if id, ok := c.cache[full]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	id, err := c.chain.GetVdxfID(full)
	if err != nil {
		return "", fmt.Errorf("vdxf: resolve %s: %w", full, err)
	}
	c.mu.Lock()
	c.cache[full] = id
	c.mu.Unlock()
	return id, nil
}

// DataKeyID resolves the composite key "<keyName>.<suffix>"; the suffix is
// the game id for per-hand keys, or "<game_id>.<player_id>" for dispute
// results.
func (c *Client) DataKeyID(keyName, suffix string) (string, error) {
	return c.KeyID(keyName + "." + suffix)
}

// GetLatest returns the newest entry for the key on the identity, decoded
// from its hex byte-vector form. heightStart filters out earlier hands.
func (c *Client) GetLatest(id, keyID string, heightStart int64) ([]byte, error) {
	cmm, err := c.chain.GetIdentityContent(c.FQN(id), heightStart)
	if err != nil {
		return nil, err
	}
	entries := cmm[keyID]
	if len(entries) == 0 {
		return nil, ErrKeyNotFound
	}
	data, err := hex.DecodeString(entries[len(entries)-1])
	if err != nil {
		return nil, fmt.Errorf("vdxf: entry for %s is not hex: %w", keyID, err)
	}
	return data, nil
}

// GetLatestJSON unmarshals the newest entry for the key into v.
func (c *Client) GetLatestJSON(id, keyID string, heightStart int64, v interface{}) error {
	data, err := c.GetLatest(id, keyID, heightStart)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("vdxf: entry for %s is not valid JSON: %w", keyID, err)
	}
	return nil
}

// GetLatestString returns the newest entry for the key as a string.
func (c *Client) GetLatestString(id, keyID string, heightStart int64) (string, error) {
	data, err := c.GetLatest(id, keyID, heightStart)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Append appends one raw entry under the key. The chain merges content
// multimaps additively, so prior entries survive.
func (c *Client) Append(id, keyID string, payload []byte) error {
	if len(payload) > MaxEntryBytes {
		return fmt.Errorf("%w: %d bytes", ErrUpdateTooLarge, len(payload))
	}
	cmm := map[string][]string{keyID: {hex.EncodeToString(payload)}}
	txid, err := c.chain.UpdateIdentity(id, c.parentFQN, cmm)
	if err != nil {
		return err
	}
	if c.log != nil {
		c.log.Debugf("updateidentity %s key=%s tx=%s (%d bytes)", id, keyID, txid, len(payload))
	}
	return nil
}

// AppendJSON appends one JSON-serialized entry under the key.
func (c *Client) AppendJSON(id, keyID string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("vdxf: marshal entry for %s: %w", keyID, err)
	}
	return c.Append(id, keyID, payload)
}

// AppendString appends one string entry under the key.
func (c *Client) AppendString(id, keyID, s string) error {
	return c.Append(id, keyID, []byte(s))
}

// HasKey reports whether any entry exists for the key in the window.
func (c *Client) HasKey(id, keyID string, heightStart int64) bool {
	_, err := c.GetLatest(id, keyID, heightStart)
	return err == nil
}

// RawEntries exposes the identity's full filtered multimap; the dispute
// poller scans it for request keys without knowing game ids in advance.
func (c *Client) RawEntries(id string, heightStart int64) (map[string][]string, error) {
	return c.chain.GetIdentityContent(c.FQN(id), heightStart)
}
