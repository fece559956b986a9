package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the node-local cache. It holds what is either too large for the CMM
// (deck private vectors) or must survive restarts (rejoin state). All writes
// are idempotent INSERT OR REPLACE; an empty cache only costs the ability to
// resume unfinished hands.
type DB struct {
	*sql.DB
}

// DefaultPath returns the conventional cache location under the user's home.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".pangea", "db", "pangea.db")
}

// NewDB opens (creating if missing) the cache at dbPath.
func NewDB(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("storage: create db directory: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS player_deck_info (
			game_id TEXT PRIMARY KEY,
			table_id TEXT NOT NULL,
			player_id INTEGER NOT NULL,
			player_priv TEXT NOT NULL,
			player_deck_priv TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS player_local_state (
			game_id TEXT PRIMARY KEY,
			table_id TEXT NOT NULL,
			payin_tx TEXT NOT NULL DEFAULT '',
			player_id INTEGER NOT NULL,
			decoded_cards TEXT NOT NULL DEFAULT '',
			cards_decoded_count INTEGER NOT NULL DEFAULT 0,
			last_card_id INTEGER NOT NULL DEFAULT -1,
			last_game_state INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS dealer_deck_info (
			game_id TEXT PRIMARY KEY,
			perm TEXT NOT NULL,
			dealer_deck_priv TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cashier_deck_info (
			game_id TEXT NOT NULL,
			player_id INTEGER NOT NULL,
			perm TEXT NOT NULL,
			cashier_deck_priv TEXT NOT NULL,
			PRIMARY KEY (game_id, player_id)
		)`,
		`CREATE TABLE IF NOT EXISTS dispute_history (
			game_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			payin_tx TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			payout_tx TEXT NOT NULL DEFAULT '',
			resolved_block INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (game_id, player_id)
		)`,
		`CREATE TABLE IF NOT EXISTS scanned_games (
			game_id TEXT PRIMARY KEY,
			table_id TEXT NOT NULL,
			last_state INTEGER NOT NULL DEFAULT 0,
			start_block INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("storage: create tables: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// PlayerDeckInfo is the persisted player deck: identity key plus per-card
// private scalars, hex encoded.
type PlayerDeckInfo struct {
	GameID         string
	TableID        string
	PlayerID       int
	PlayerPriv     string   // hex of the player keypair private scalar
	PlayerDeckPriv []string // hex per-card private scalars, in order
}

// SavePlayerDeckInfo persists the player's deck for rejoin.
func (db *DB) SavePlayerDeckInfo(info *PlayerDeckInfo) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO player_deck_info (
			game_id, table_id, player_id, player_priv, player_deck_priv
		) VALUES (?, ?, ?, ?, ?)
	`, info.GameID, info.TableID, info.PlayerID, info.PlayerPriv,
		strings.Join(info.PlayerDeckPriv, ","))
	return err
}

// LoadPlayerDeckInfo returns the saved deck for the hand, or sql.ErrNoRows.
func (db *DB) LoadPlayerDeckInfo(gameID string) (*PlayerDeckInfo, error) {
	var info PlayerDeckInfo
	var deckPriv string
	err := db.QueryRow(`
		SELECT game_id, table_id, player_id, player_priv, player_deck_priv
		FROM player_deck_info WHERE game_id = ?
	`, gameID).Scan(&info.GameID, &info.TableID, &info.PlayerID, &info.PlayerPriv, &deckPriv)
	if err != nil {
		return nil, err
	}
	if deckPriv != "" {
		info.PlayerDeckPriv = strings.Split(deckPriv, ",")
	}
	return &info, nil
}

// PlayerLocalState is the player's per-hand progress, persisted so a restart
// can resume mid-hand.
type PlayerLocalState struct {
	GameID            string
	TableID           string
	PayinTx           string
	PlayerID          int
	DecodedCards      []int // -1 = not decoded, indexed by hand position
	CardsDecodedCount int
	LastCardID        int
	LastGameState     int
}

// SavePlayerLocalState persists the player's progress.
func (db *DB) SavePlayerLocalState(state *PlayerLocalState) error {
	cards := make([]string, len(state.DecodedCards))
	for i, c := range state.DecodedCards {
		cards[i] = strconv.Itoa(c)
	}
	_, err := db.Exec(`
		INSERT OR REPLACE INTO player_local_state (
			game_id, table_id, payin_tx, player_id, decoded_cards,
			cards_decoded_count, last_card_id, last_game_state
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, state.GameID, state.TableID, state.PayinTx, state.PlayerID,
		strings.Join(cards, ","), state.CardsDecodedCount,
		state.LastCardID, state.LastGameState)
	return err
}

// LoadPlayerLocalState returns the saved progress, or sql.ErrNoRows.
func (db *DB) LoadPlayerLocalState(gameID string) (*PlayerLocalState, error) {
	var state PlayerLocalState
	var cards string
	err := db.QueryRow(`
		SELECT game_id, table_id, payin_tx, player_id, decoded_cards,
		       cards_decoded_count, last_card_id, last_game_state
		FROM player_local_state WHERE game_id = ?
	`, gameID).Scan(&state.GameID, &state.TableID, &state.PayinTx, &state.PlayerID,
		&cards, &state.CardsDecodedCount, &state.LastCardID, &state.LastGameState)
	if err != nil {
		return nil, err
	}
	if cards != "" {
		for _, c := range strings.Split(cards, ",") {
			v, err := strconv.Atoi(c)
			if err != nil {
				return nil, fmt.Errorf("storage: corrupt decoded_cards: %w", err)
			}
			state.DecodedCards = append(state.DecodedCards, v)
		}
	}
	return &state, nil
}

// DealerDeckInfo is the dealer's persisted permutation and per-card scalars.
type DealerDeckInfo struct {
	GameID         string
	Perm           []int
	DealerDeckPriv []string
}

// SaveDealerDeckInfo persists the dealer deck for resume.
func (db *DB) SaveDealerDeckInfo(info *DealerDeckInfo) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO dealer_deck_info (game_id, perm, dealer_deck_priv)
		VALUES (?, ?, ?)
	`, info.GameID, joinInts(info.Perm), strings.Join(info.DealerDeckPriv, ","))
	return err
}

// LoadDealerDeckInfo returns the saved dealer deck, or sql.ErrNoRows.
func (db *DB) LoadDealerDeckInfo(gameID string) (*DealerDeckInfo, error) {
	var info DealerDeckInfo
	var perm, priv string
	err := db.QueryRow(`
		SELECT game_id, perm, dealer_deck_priv FROM dealer_deck_info WHERE game_id = ?
	`, gameID).Scan(&info.GameID, &perm, &priv)
	if err != nil {
		return nil, err
	}
	info.Perm, err = splitInts(perm)
	if err != nil {
		return nil, err
	}
	if priv != "" {
		info.DealerDeckPriv = strings.Split(priv, ",")
	}
	return &info, nil
}

// CashierDeckInfo is the cashier's persisted permutation and per-player
// blinding scalars.
type CashierDeckInfo struct {
	GameID          string
	PlayerID        int
	Perm            []int
	CashierDeckPriv []string
}

// SaveCashierDeckInfo persists one player's blinding vector.
func (db *DB) SaveCashierDeckInfo(info *CashierDeckInfo) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO cashier_deck_info (game_id, player_id, perm, cashier_deck_priv)
		VALUES (?, ?, ?, ?)
	`, info.GameID, info.PlayerID, joinInts(info.Perm), strings.Join(info.CashierDeckPriv, ","))
	return err
}

// LoadCashierDeckInfo returns one player's saved blinding vector, or
// sql.ErrNoRows.
func (db *DB) LoadCashierDeckInfo(gameID string, playerID int) (*CashierDeckInfo, error) {
	var info CashierDeckInfo
	var perm, priv string
	err := db.QueryRow(`
		SELECT game_id, player_id, perm, cashier_deck_priv
		FROM cashier_deck_info WHERE game_id = ? AND player_id = ?
	`, gameID, playerID).Scan(&info.GameID, &info.PlayerID, &perm, &priv)
	if err != nil {
		return nil, err
	}
	info.Perm, err = splitInts(perm)
	if err != nil {
		return nil, err
	}
	if priv != "" {
		info.CashierDeckPriv = strings.Split(priv, ",")
	}
	return &info, nil
}

// DisputeRecord is a resolved dispute kept for the history tooling.
type DisputeRecord struct {
	GameID        string
	PlayerID      string
	PayinTx       string
	Status        string
	Reason        string
	PayoutTx      string
	ResolvedBlock int64
}

// SaveDispute records a dispute verdict.
func (db *DB) SaveDispute(rec *DisputeRecord) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO dispute_history (
			game_id, player_id, payin_tx, status, reason, payout_tx, resolved_block
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.GameID, rec.PlayerID, rec.PayinTx, rec.Status, rec.Reason,
		rec.PayoutTx, rec.ResolvedBlock)
	return err
}

// ListDisputes returns all recorded dispute verdicts.
func (db *DB) ListDisputes() ([]*DisputeRecord, error) {
	rows, err := db.Query(`
		SELECT game_id, player_id, payin_tx, status, reason, payout_tx, resolved_block
		FROM dispute_history
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*DisputeRecord
	for rows.Next() {
		var rec DisputeRecord
		if err := rows.Scan(&rec.GameID, &rec.PlayerID, &rec.PayinTx, &rec.Status,
			&rec.Reason, &rec.PayoutTx, &rec.ResolvedBlock); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// MarkGameScanned records a hand seen by the scan tooling.
func (db *DB) MarkGameScanned(gameID, tableID string, lastState int, startBlock int64) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO scanned_games (game_id, table_id, last_state, start_block)
		VALUES (?, ?, ?, ?)
	`, gameID, tableID, lastState, startBlock)
	return err
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	vals := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("storage: corrupt int list: %w", err)
		}
		vals[i] = v
	}
	return vals, nil
}
