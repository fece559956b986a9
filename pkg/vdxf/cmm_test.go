package vdxf

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sg777/pangea/pkg/chain"
)

// fakeChain is an in-memory vdxf.Chain with height-tagged entries.
type fakeChain struct {
	entries     map[string]map[string][]fakeEntry // id -> keyID -> entries
	vdxfCalls   int
	lastUpdated string
}

type fakeEntry struct {
	hex    string
	height int64
}

func newFakeChain() *fakeChain {
	return &fakeChain{entries: make(map[string]map[string][]fakeEntry)}
}

func (f *fakeChain) GetIdentity(name string) (*chain.Identity, error) {
	return &chain.Identity{}, nil
}

func (f *fakeChain) GetIdentityContent(name string, heightStart int64) (map[string][]string, error) {
	out := make(map[string][]string)
	for keyID, entries := range f.entries[name] {
		for _, e := range entries {
			if e.height >= heightStart {
				out[keyID] = append(out[keyID], e.hex)
			}
		}
	}
	return out, nil
}

func (f *fakeChain) UpdateIdentity(name, parent string, cmm map[string][]string) (string, error) {
	f.lastUpdated = name
	// Like the daemon, a short name is namespaced under the parent.
	if parent != "" && !strings.Contains(name, ".") {
		name = name + "." + parent
	}
	id := f.entries[name]
	if id == nil {
		id = make(map[string][]fakeEntry)
		f.entries[name] = id
	}
	for keyID, list := range cmm {
		for _, e := range list {
			id[keyID] = append(id[keyID], fakeEntry{hex: e, height: 100})
		}
	}
	return "txid1", nil
}

func (f *fakeChain) GetVdxfID(keyName string) (string, error) {
	f.vdxfCalls++
	return "i" + keyName, nil
}

func newTestClient(f *fakeChain) *Client {
	return New(f, "", "poker.sg777z.chips.vrsc@", nil)
}

func TestFQN(t *testing.T) {
	c := newTestClient(newFakeChain())
	require.Equal(t, "p1.poker.sg777z.chips.vrsc@", c.FQN("p1"))
	require.Equal(t, "p1.poker.sg777z.chips.vrsc@", c.FQN("p1.poker.sg777z.chips.vrsc@"))
}

func TestKeyIDCaching(t *testing.T) {
	f := newFakeChain()
	c := newTestClient(f)

	id1, err := c.KeyID(KeyTGameID)
	require.NoError(t, err)
	id2, err := c.KeyID(KeyTGameID)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Equal(t, 1, f.vdxfCalls, "vdxfid resolved once then cached")
	require.Equal(t, "i"+DefaultKeyPrefix+KeyTGameID, id1)
}

func TestAppendAndReadLatest(t *testing.T) {
	f := newFakeChain()
	c := newTestClient(f)

	keyID, err := c.DataKeyID(KeyTGameInfo, "gid1")
	require.NoError(t, err)

	type record struct {
		State int `json:"state"`
	}
	require.NoError(t, c.AppendJSON("table", keyID, record{State: 1}))
	require.NoError(t, c.AppendJSON("table", keyID, record{State: 2}))

	// Reads reconstruct the value from the LAST entry; earlier entries are
	// never rewritten.
	var got record
	require.NoError(t, c.GetLatestJSON("table.poker.sg777z.chips.vrsc@", keyID, 0, &got))
	require.Equal(t, 2, got.State)
	require.Len(t, f.entries["table.poker.sg777z.chips.vrsc@"][keyID], 2)
}

func TestHeightStartFiltersOldHands(t *testing.T) {
	f := newFakeChain()
	c := newTestClient(f)

	old := hex.EncodeToString([]byte(`"old"`))
	f.entries["table.poker.sg777z.chips.vrsc@"] = map[string][]fakeEntry{
		"ikey": {{hex: old, height: 50}},
	}

	var got string
	err := c.GetLatestJSON("table", "ikey", 60, &got)
	require.ErrorIs(t, err, ErrKeyNotFound, "entries below height_start are invisible")

	require.NoError(t, c.GetLatestJSON("table", "ikey", 40, &got))
	require.Equal(t, "old", got)
}

func TestAppendRejectsOversizedPayload(t *testing.T) {
	c := newTestClient(newFakeChain())
	big := make([]byte, MaxEntryBytes+1)
	err := c.Append("table", "ikey", big)
	require.ErrorIs(t, err, ErrUpdateTooLarge)
}

func TestGetLatestStringRoundTrip(t *testing.T) {
	f := newFakeChain()
	c := newTestClient(f)
	keyID, _ := c.KeyID(KeyTGameID)

	require.NoError(t, c.AppendString("table", keyID, "deadbeef"))
	got, err := c.GetLatestString("table.poker.sg777z.chips.vrsc@", keyID, 0)
	require.NoError(t, err)
	require.Equal(t, "deadbeef", got)
}

func TestSlotKeys(t *testing.T) {
	require.Equal(t, "t_d_p1_deck", DealerDeckKey(0))
	require.Equal(t, "t_d_p9_deck", DealerDeckKey(8))
	require.Equal(t, "t_b_p3_deck", BlinderDeckKey(2))
}
