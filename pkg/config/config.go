package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/sg777/pangea/pkg/poker"
)

// Default identity namespace. Short names resolve under the parent FQN.
const (
	DefaultParentFQN  = "poker.sg777z.chips.vrsc@"
	DefaultCashiersID = "cashier"
	DefaultDealersID  = "dealers"
)

// Default GUI WebSocket ports per role.
const (
	DefaultDealerWSPort  = 9000
	DefaultPlayerWSPort  = 9001
	DefaultCashierWSPort = 9002
)

// ErrConfig wraps malformed or incomplete configuration, fatal at startup.
var ErrConfig = errors.New("config: invalid configuration")

// RPC is the chain access configuration shared by all roles. When URL is
// empty, the role shells out to the CLI command.
type RPC struct {
	CLI      string
	URL      string
	User     string
	Password string
}

// UseREST reports whether the REST endpoint is configured.
func (r *RPC) UseREST() bool { return r.URL != "" }

// Keys is the identity/key namespace configuration.
type Keys struct {
	ParentFQN  string
	CashiersID string
	DealersID  string
	KeyPrefix  string
}

// Dealer is the dealer role configuration.
type Dealer struct {
	MaxPlayers int
	BigBlind   float64
	MinStake   float64
	MaxStake   float64
	DealerID   string
	CashierID  string
	TableID    string
	GuiWSPort  int
	RPC        RPC
	Keys       Keys
	DataDir    string
	DebugLevel string
}

// Player is the player role configuration.
type Player struct {
	DealerID      string
	TableID       string
	WalletAddr    string
	VerusPID      string
	WSPort        int
	MaxCommission float64
	RPC           RPC
	Keys          Keys
	DataDir       string
	DebugLevel    string
}

// CashierPeer is one peer cashier node in the registry.
type CashierPeer struct {
	IP     string
	Pubkey string
}

// Cashier is the cashier role configuration.
type Cashier struct {
	CashierID  string
	Peers      []CashierPeer
	GuiWSPort  int
	RPC        RPC
	Keys       Keys
	DataDir    string
	DebugLevel string
}

// DefaultDataDir returns ~/.pangea.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".pangea")
}

// EnsureDataDir creates the datadir and its logs subdirectory.
func EnsureDataDir(datadir string) error {
	if err := os.MkdirAll(datadir, 0700); err != nil {
		return fmt.Errorf("failed to create datadir %s: %v", datadir, err)
	}
	if err := os.MkdirAll(filepath.Join(datadir, "logs"), 0700); err != nil {
		return fmt.Errorf("failed to create logs directory: %v", err)
	}
	return nil
}

func loadRPC(f *ini.File) RPC {
	sec := f.Section("rpc")
	r := RPC{
		CLI:      sec.Key("blockchain_cli").MustString("verus"),
		URL:      sec.Key("url").String(),
		User:     sec.Key("user").String(),
		Password: sec.Key("password").String(),
	}
	return r
}

func loadKeys(f *ini.File) Keys {
	sec := f.Section("identities")
	return Keys{
		ParentFQN:  sec.Key("parent_id").MustString(DefaultParentFQN),
		CashiersID: sec.Key("cashier_id").MustString(DefaultCashiersID),
		DealersID:  sec.Key("dealers_id").MustString(DefaultDealersID),
		KeyPrefix:  f.Section("keys").Key("key_prefix").String(),
	}
}

func loadCommon(f *ini.File) (string, string) {
	sec := f.Section("node")
	return sec.Key("datadir").MustString(DefaultDataDir()),
		sec.Key("debuglevel").MustString("info")
}

// LoadDealer parses the dealer ini file.
func LoadDealer(path string) (*Dealer, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	sec := f.Section("verus")
	cfg := &Dealer{
		MaxPlayers: sec.Key("max_players").MustInt(2),
		BigBlind:   sec.Key("big_blind").MustFloat64(poker.DefaultBigBlind),
		MinStake:   sec.Key("min_stake").MustFloat64(poker.DefaultMinStake),
		MaxStake:   sec.Key("max_stake").MustFloat64(poker.DefaultMaxStake),
		DealerID:   sec.Key("dealer_id").String(),
		CashierID:  sec.Key("cashier_id").MustString(DefaultCashiersID),
		TableID:    sec.Key("table_id").String(),
		GuiWSPort:  sec.Key("gui_ws_port").MustInt(DefaultDealerWSPort),
		RPC:        loadRPC(f),
		Keys:       loadKeys(f),
	}
	cfg.DataDir, cfg.DebugLevel = loadCommon(f)
	if cfg.DealerID == "" || cfg.TableID == "" {
		return nil, fmt.Errorf("%w: dealer_id and table_id are required", ErrConfig)
	}
	return cfg, nil
}

// LoadPlayer parses the player ini file.
func LoadPlayer(path string) (*Player, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	sec := f.Section("verus")
	cfg := &Player{
		DealerID:      sec.Key("dealer_id").String(),
		TableID:       sec.Key("table_id").String(),
		WalletAddr:    sec.Key("wallet_addr").String(),
		VerusPID:      sec.Key("player_id").String(),
		WSPort:        sec.Key("ws_port").MustInt(DefaultPlayerWSPort),
		MaxCommission: sec.Key("max_allowed_dcv_commission").MustFloat64(0),
		RPC:           loadRPC(f),
		Keys:          loadKeys(f),
	}
	cfg.DataDir, cfg.DebugLevel = loadCommon(f)
	if cfg.VerusPID == "" {
		return nil, fmt.Errorf("%w: player_id is required", ErrConfig)
	}
	return cfg, nil
}

// LoadCashier parses the cashier ini file. Peer nodes are listed as
// "ip,pubkey" pairs under [cashiers].
func LoadCashier(path string) (*Cashier, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	sec := f.Section("verus")
	cfg := &Cashier{
		CashierID: sec.Key("cashier_id").MustString(DefaultCashiersID),
		GuiWSPort: sec.Key("gui_ws_port").MustInt(DefaultCashierWSPort),
		RPC:       loadRPC(f),
		Keys:      loadKeys(f),
	}
	cfg.DataDir, cfg.DebugLevel = loadCommon(f)

	for _, key := range f.Section("cashiers").Keys() {
		parts := strings.SplitN(key.Value(), ",", 2)
		peer := CashierPeer{IP: strings.TrimSpace(parts[0])}
		if len(parts) == 2 {
			peer.Pubkey = strings.TrimSpace(parts[1])
		}
		cfg.Peers = append(cfg.Peers, peer)
	}
	return cfg, nil
}
