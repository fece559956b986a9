package main

import (
	"path/filepath"

	"github.com/decred/slog"

	"github.com/sg777/pangea/pkg/cards"
	"github.com/sg777/pangea/pkg/cashier"
	"github.com/sg777/pangea/pkg/chain"
	"github.com/sg777/pangea/pkg/config"
	"github.com/sg777/pangea/pkg/dealer"
	"github.com/sg777/pangea/pkg/gui"
	"github.com/sg777/pangea/pkg/logging"
	"github.com/sg777/pangea/pkg/player"
	"github.com/sg777/pangea/pkg/storage"
	"github.com/sg777/pangea/pkg/vdxf"
)

func freshGameID() string {
	return cards.Rand256(false).String()
}

// roleWiring is the common plumbing every role shares.
type roleWiring struct {
	logBackend *logging.LogBackend
	log        slog.Logger
	chain      *chain.Client
	cmm        *vdxf.Client
	db         *storage.DB
}

func wireRole(name string, rpc config.RPC, keys config.Keys, datadir, dbPath, debugLevel string) (*roleWiring, error) {
	if err := config.EnsureDataDir(datadir); err != nil {
		return nil, err
	}
	logBackend, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:    filepath.Join(datadir, "logs", name+".log"),
		DebugLevel: debugLevel,
	})
	if err != nil {
		return nil, err
	}
	log := logBackend.Logger(name)

	c := chain.NewClient(chain.Config{
		URL:      rpc.URL,
		User:     rpc.User,
		Password: rpc.Password,
		UseREST:  rpc.UseREST(),
		CLI:      rpc.CLI,
	}, logBackend.Logger("CHNS"))

	if dbPath == "" {
		dbPath = filepath.Join(datadir, "db", "pangea.db")
	}
	db, err := storage.NewDB(dbPath)
	if err != nil {
		logBackend.Close()
		return nil, err
	}

	return &roleWiring{
		logBackend: logBackend,
		log:        log,
		chain:      c,
		cmm:        vdxf.New(c, keys.KeyPrefix, keys.ParentFQN, logBackend.Logger("VDXF")),
		db:         db,
	}, nil
}

func (w *roleWiring) close() {
	w.db.Close()
	w.logBackend.Close()
}

func runDealer(configPath, dbPath, debugLevel string) error {
	cfg, err := config.LoadDealer(configPath)
	if err != nil {
		return err
	}
	if debugLevel == "" {
		debugLevel = cfg.DebugLevel
	}
	w, err := wireRole("DLR", cfg.RPC, cfg.Keys, cfg.DataDir, dbPath, debugLevel)
	if err != nil {
		return err
	}
	defer w.close()

	guiSrv := gui.NewServer(cfg.GuiWSPort, w.logBackend.Logger("GUI"))
	if err := guiSrv.Start(); err != nil {
		return err
	}
	defer guiSrv.Stop()

	return dealer.New(cfg, w.chain, w.cmm, w.db, guiSrv, w.log).Run()
}

func runPlayer(configPath, dbPath, debugLevel, mode string) error {
	cfg, err := config.LoadPlayer(configPath)
	if err != nil {
		return err
	}
	if debugLevel == "" {
		debugLevel = cfg.DebugLevel
	}
	w, err := wireRole("PLYR", cfg.RPC, cfg.Keys, cfg.DataDir, dbPath, debugLevel)
	if err != nil {
		return err
	}
	defer w.close()

	guiSrv := gui.NewServer(cfg.WSPort, w.logBackend.Logger("GUI"))
	if err := guiSrv.Start(); err != nil {
		return err
	}
	defer guiSrv.Stop()

	p := player.New(cfg, w.chain, w.cmm, w.db, guiSrv, w.log)
	if mode == "gui" {
		p.SetMode(player.ModeGUI)
	}
	return p.Run()
}

func runCashier(configPath, dbPath, debugLevel string) error {
	cfg, err := config.LoadCashier(configPath)
	if err != nil {
		return err
	}
	if debugLevel == "" {
		debugLevel = cfg.DebugLevel
	}
	w, err := wireRole("CSHR", cfg.RPC, cfg.Keys, cfg.DataDir, dbPath, debugLevel)
	if err != nil {
		return err
	}
	defer w.close()

	guiSrv := gui.NewServer(cfg.GuiWSPort, w.logBackend.Logger("GUI"))
	if err := guiSrv.Start(); err != nil {
		return err
	}
	defer guiSrv.Stop()

	return cashier.New(cfg, w.chain, w.cmm, w.db, guiSrv, w.log).Run()
}
