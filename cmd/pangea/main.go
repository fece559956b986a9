// Command pangea runs the decentralized poker roles and their supporting
// wallet and inspection verbs against a CHIPS/Verus daemon.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/davecgh/go-spew/spew"

	"github.com/sg777/pangea/pkg/chain"
	"github.com/sg777/pangea/pkg/config"
	"github.com/sg777/pangea/pkg/logging"
	"github.com/sg777/pangea/pkg/poker"
	"github.com/sg777/pangea/pkg/storage"
	"github.com/sg777/pangea/pkg/vdxf"
)

func main() {
	var (
		configPath string
		dbPath     string
		debugLevel string
		mode       string
	)
	flag.StringVar(&configPath, "config", "", "Path to the role ini file")
	flag.StringVar(&dbPath, "db", "", "Path to the local SQLite cache")
	flag.StringVar(&debugLevel, "debuglevel", "", "Logging level: trace, debug, info, warn, error")
	flag.StringVar(&mode, "mode", "auto", "Player betting mode: auto or gui")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printHelp()
		return
	}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "dealer":
		err = runDealer(configPath, dbPath, debugLevel)
	case "player":
		err = runPlayer(configPath, dbPath, debugLevel, mode)
	case "cashier":
		err = runCashier(configPath, dbPath, debugLevel)
	case "add_dealer":
		err = withEnv(configPath, debugLevel, func(e *env) error {
			if len(rest) != 1 {
				return errors.New("usage: pangea add_dealer <dealer_id>")
			}
			return addDealer(e, rest[0])
		})
	case "list_dealers":
		err = withEnv(configPath, debugLevel, listDealers)
	case "list_tables":
		err = withEnv(configPath, debugLevel, listTables)
	case "withdraw":
		err = withEnv(configPath, debugLevel, func(e *env) error {
			if len(rest) != 2 {
				return errors.New("usage: pangea withdraw <amount|all> <address>")
			}
			return withdraw(e, rest[0], rest[1])
		})
	case "spendable":
		err = withEnv(configPath, debugLevel, spendable)
	case "scan":
		err = withEnv(configPath, debugLevel, func(e *env) error {
			return scanGames(e, dbPath)
		})
	case "extract_tx_data":
		err = withEnv(configPath, debugLevel, func(e *env) error {
			if len(rest) != 1 {
				return errors.New("usage: pangea extract_tx_data <txid>")
			}
			return extractTxData(e, rest[0])
		})
	case "print":
		err = withEnv(configPath, debugLevel, func(e *env) error {
			if len(rest) != 2 {
				return errors.New("usage: pangea print <id> <key>")
			}
			return printKey(e, rest[0], rest[1])
		})
	case "reset_id":
		err = withEnv(configPath, debugLevel, func(e *env) error {
			if len(rest) != 1 {
				return errors.New("usage: pangea reset_id <id>")
			}
			return resetID(e, rest[0])
		})
	case "help", "h", "-h", "--help":
		printHelp()
	default:
		printHelp()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "pangea: %v\n", err)
		os.Exit(-1)
	}
}

func printHelp() {
	fmt.Print(`usage: pangea [flags] <command> [args]

Roles:
  dealer                     host a table and orchestrate the hand
  player                     join a table and play
  cashier                    custody funds, blind decks, settle and resolve disputes

Registry:
  add_dealer <id>            add a dealer to the dealers registry
  list_dealers               list registered dealers
  list_tables                list hosted tables

Wallet:
  withdraw <amount|all> <addr>  send wallet funds to an address
  spendable                  list spendable outputs

Inspection:
  scan                       scan registered tables into the local cache
  extract_tx_data <txid>     dump a transaction
  print <id> <key>           print an identity's latest entry for a poker key
  reset_id <id>              start a fresh hand namespace on an identity
  help                       show this help

Flags:
  -config <path>       role ini file
  -db <path>           local SQLite cache (default ~/.pangea/db/pangea.db)
  -debuglevel <level>  trace, debug, info, warn, error
  -mode <auto|gui>     player betting input mode
`)
}

// env is the shared wiring for the non-role subcommands: chain access plus
// the CMM layer under the default namespace.
type env struct {
	cfg   config.RPC
	keys  config.Keys
	chain *chain.Client
	cmm   *vdxf.Client
	log   *logging.LogBackend
}

func withEnv(configPath, debugLevel string, fn func(*env) error) error {
	rpc := config.RPC{CLI: "verus"}
	keys := config.Keys{
		ParentFQN:  config.DefaultParentFQN,
		CashiersID: config.DefaultCashiersID,
		DealersID:  config.DefaultDealersID,
	}
	if configPath != "" {
		// Any role file carries the shared [rpc] and [identities] sections.
		if cfg, err := config.LoadCashier(configPath); err == nil {
			rpc, keys = cfg.RPC, cfg.Keys
		}
	}
	if debugLevel == "" {
		debugLevel = "info"
	}
	logBackend, err := logging.NewLogBackend(logging.LogConfig{DebugLevel: debugLevel})
	if err != nil {
		return err
	}
	defer logBackend.Close()

	log := logBackend.Logger("CLI")
	c := chain.NewClient(chain.Config{
		URL:      rpc.URL,
		User:     rpc.User,
		Password: rpc.Password,
		UseREST:  rpc.UseREST(),
		CLI:      rpc.CLI,
	}, log)
	e := &env{
		cfg:   rpc,
		keys:  keys,
		chain: c,
		cmm:   vdxf.New(c, keys.KeyPrefix, keys.ParentFQN, log),
		log:   logBackend,
	}
	return fn(e)
}

func addDealer(e *env, dealerID string) error {
	if !e.chain.IdentityExists(e.cmm.FQN(dealerID)) {
		return fmt.Errorf("identity %s not found", dealerID)
	}
	ok, err := e.chain.CanSignFor(e.cmm.FQN(e.keys.DealersID))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cannot sign for the dealers registry %s", e.keys.DealersID)
	}

	keyID, err := e.cmm.KeyID(vdxf.KeyDealers)
	if err != nil {
		return err
	}
	var reg poker.DealerRegistry
	if err := e.cmm.GetLatestJSON(e.keys.DealersID, keyID, 0, &reg); err != nil &&
		!errors.Is(err, vdxf.ErrKeyNotFound) {
		return err
	}
	for _, id := range reg.Dealers {
		if id == dealerID {
			fmt.Printf("dealer %s already registered\n", dealerID)
			return nil
		}
	}
	reg.Dealers = append(reg.Dealers, dealerID)
	if err := e.cmm.AppendJSON(e.keys.DealersID, keyID, &reg); err != nil {
		return err
	}
	fmt.Printf("dealer %s registered\n", dealerID)
	return nil
}

func loadDealers(e *env) (*poker.DealerRegistry, error) {
	keyID, err := e.cmm.KeyID(vdxf.KeyDealers)
	if err != nil {
		return nil, err
	}
	var reg poker.DealerRegistry
	if err := e.cmm.GetLatestJSON(e.keys.DealersID, keyID, 0, &reg); err != nil {
		if errors.Is(err, vdxf.ErrKeyNotFound) {
			return &poker.DealerRegistry{}, nil
		}
		return nil, err
	}
	return &reg, nil
}

func listDealers(e *env) error {
	reg, err := loadDealers(e)
	if err != nil {
		return err
	}
	if len(reg.Dealers) == 0 {
		fmt.Println("no dealers registered")
		return nil
	}
	for _, id := range reg.Dealers {
		fmt.Println(id)
	}
	return nil
}

func hostedTables(e *env) (map[string]*poker.Table, error) {
	reg, err := loadDealers(e)
	if err != nil {
		return nil, err
	}
	tblKey, err := e.cmm.KeyID(vdxf.KeyTTableInfo)
	if err != nil {
		return nil, err
	}
	tables := make(map[string]*poker.Table)
	for _, dealerID := range reg.Dealers {
		var t poker.Table
		if err := e.cmm.GetLatestJSON(dealerID, tblKey, 0, &t); err == nil && t.TableID != "" {
			tables[dealerID] = &t
		}
	}
	return tables, nil
}

func listTables(e *env) error {
	tables, err := hostedTables(e)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		fmt.Println("no tables hosted")
		return nil
	}
	for dealerID, t := range tables {
		view := poker.NewView(e.cmm, t.TableID, t.StartBlock)
		state, _ := view.State()
		players, perr := view.PlayerInfo()
		seats := 0
		if perr == nil {
			seats = players.NumPlayers
		}
		fmt.Printf("%s (dealer %s): players %d/%d, blinds %.4f/%.4f, stake %.4f-%.4f, state: %v\n",
			t.TableID, dealerID, seats, t.MaxPlayers,
			t.BigBlind/2, t.BigBlind, t.MinStake, t.MaxStake, state)
	}
	return nil
}

func withdraw(e *env, amountArg, addr string) error {
	var amount float64
	if amountArg == "all" {
		balance, err := e.chain.Balance()
		if err != nil {
			return err
		}
		amount = poker.SubChips(balance, poker.DefaultTxFee)
	} else {
		var err error
		amount, err = strconv.ParseFloat(amountArg, 64)
		if err != nil {
			return fmt.Errorf("bad amount %q: %v", amountArg, err)
		}
	}
	if amount <= 0 {
		return errors.New("nothing to withdraw")
	}
	opid, err := e.chain.SendCurrency("*", addr, amount, nil)
	if err != nil {
		return err
	}
	txid, err := e.chain.WaitForOperation(opid)
	if err != nil {
		return err
	}
	fmt.Printf("withdrew %.8f CHIPS to %s: %s\n", amount, addr, txid)
	return nil
}

func spendable(e *env) error {
	utxos, err := e.chain.ListUnspent()
	if err != nil {
		return err
	}
	var total float64
	for _, u := range utxos {
		if !u.Spendable {
			continue
		}
		fmt.Printf("%s:%d  %.8f  (%d confs)  %s\n", u.Txid, u.Vout, u.Amount, u.Confirmations, u.Address)
		total += u.Amount
	}
	fmt.Printf("total spendable: %.8f CHIPS\n", total)
	return nil
}

func scanGames(e *env, dbPath string) error {
	if dbPath == "" {
		dbPath = storage.DefaultPath()
	}
	db, err := storage.NewDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	tables, err := hostedTables(e)
	if err != nil {
		return err
	}
	for _, t := range tables {
		view := poker.NewView(e.cmm, t.TableID, t.StartBlock)
		gid, err := view.GameID()
		if err != nil {
			continue
		}
		state, _ := view.State()
		if err := db.MarkGameScanned(gid, t.TableID, int(state), t.StartBlock); err != nil {
			return err
		}
		fmt.Printf("game %s on %s: %v\n", gid, t.TableID, state)
	}
	return nil
}

func extractTxData(e *env, txid string) error {
	tx, err := e.chain.GetRawTransaction(txid)
	if err != nil {
		return err
	}
	spew.Dump(tx)
	return nil
}

func printKey(e *env, id, key string) error {
	keyID, err := e.cmm.KeyID(key)
	if err != nil {
		return err
	}
	data, err := e.cmm.GetLatest(id, keyID, 0)
	if err != nil {
		return err
	}
	fmt.Printf("%s[%s] (%d bytes):\n%s\n", id, key, len(data), data)
	return nil
}

// resetID starts a fresh hand namespace: a new game id makes every prior
// hand's per-game entries invisible to readers (entries are never deleted).
func resetID(e *env, id string) error {
	ok, err := e.chain.CanSignFor(e.cmm.FQN(id))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cannot sign for identity %s", id)
	}
	keyID, err := e.cmm.KeyID(vdxf.KeyTGameID)
	if err != nil {
		return err
	}
	gameID := freshGameID()
	if err := e.cmm.AppendString(id, keyID, gameID); err != nil {
		return err
	}
	fmt.Printf("identity %s reset with game id %s\n", id, gameID)
	return nil
}
