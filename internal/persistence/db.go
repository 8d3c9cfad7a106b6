// Package persistence provides SQLite-based city state storage. The
// engine never touches the database; callers export an engine.State,
// hand it here, and restore from the loaded copy on startup.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/Harishik/SkyLand/internal/catalog"
	"github.com/Harishik/SkyLand/internal/engine"
	"github.com/Harishik/SkyLand/internal/grid"
)

// ErrNoState is returned by LoadState when the database holds no saved
// city, i.e. on first boot.
var ErrNoState = errors.New("no saved city")

// DB wraps a SQLite connection for city state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS city (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		grid_size INTEGER NOT NULL,
		money REAL NOT NULL,
		population REAL NOT NULL,
		day INTEGER NOT NULL,
		tax_rate REAL NOT NULL,
		growth_rate REAL NOT NULL,
		goal_json TEXT,
		token_json TEXT NOT NULL,
		proposal_json TEXT
	);

	CREATE TABLE IF NOT EXISTS tiles (
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		building TEXT NOT NULL,
		level INTEGER NOT NULL,
		PRIMARY KEY (x, y)
	);

	CREATE TABLE IF NOT EXISTS news (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payload TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payload TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stats_history (
		day INTEGER PRIMARY KEY,
		money REAL NOT NULL,
		population REAL NOT NULL,
		housing_cap REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS city_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveState writes the whole city to the database in one transaction
// (full replace). Only occupied tiles are stored; empty cells are
// implied by grid_size.
func (db *DB) SaveState(st engine.State) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"city", "tiles", "news", "ledger"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	var goalJSON any
	if st.Goal != nil {
		b, _ := json.Marshal(st.Goal)
		goalJSON = string(b)
	}
	var proposalJSON any
	if st.Proposal != nil {
		b, _ := json.Marshal(st.Proposal)
		proposalJSON = string(b)
	}
	tokenJSON, _ := json.Marshal(st.Token)

	_, err = tx.Exec(`INSERT INTO city
		(id, grid_size, money, population, day, tax_rate, growth_rate,
		 goal_json, token_json, proposal_json)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.GridSize, st.Stats.Money, st.Stats.Population, st.Stats.Day,
		st.Modifiers.TaxRate, st.Modifiers.GrowthRate,
		goalJSON, string(tokenJSON), proposalJSON,
	)
	if err != nil {
		return fmt.Errorf("insert city: %w", err)
	}

	stmt, err := tx.Preparex("INSERT INTO tiles (x, y, building, level) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	built := 0
	for i, t := range st.Tiles {
		if !t.Occupied() {
			continue
		}
		x, y := i%st.GridSize, i/st.GridSize
		if _, err := stmt.Exec(x, y, t.Type.String(), t.Level); err != nil {
			return fmt.Errorf("insert tile (%d,%d): %w", x, y, err)
		}
		built++
	}

	for i, n := range st.News {
		payload, _ := json.Marshal(n)
		if _, err := tx.Exec("INSERT INTO news (payload) VALUES (?)", string(payload)); err != nil {
			return fmt.Errorf("insert news %d: %w", i, err)
		}
	}
	for i, t := range st.Ledger {
		payload, _ := json.Marshal(t)
		if _, err := tx.Exec("INSERT INTO ledger (payload) VALUES (?)", string(payload)); err != nil {
			return fmt.Errorf("insert ledger entry %d: %w", i, err)
		}
	}

	_, err = tx.Exec("INSERT OR REPLACE INTO city_meta (key, value) VALUES (?, ?)",
		"saved_at", time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("city saved", "day", st.Stats.Day, "buildings", built)
	return nil
}

type cityRow struct {
	GridSize   int            `db:"grid_size"`
	Money      float64        `db:"money"`
	Population float64        `db:"population"`
	Day        int            `db:"day"`
	TaxRate    float64        `db:"tax_rate"`
	GrowthRate float64        `db:"growth_rate"`
	Goal       sql.NullString `db:"goal_json"`
	Token      string         `db:"token_json"`
	Proposal   sql.NullString `db:"proposal_json"`
}

type tileRow struct {
	X        int    `db:"x"`
	Y        int    `db:"y"`
	Building string `db:"building"`
	Level    int    `db:"level"`
}

// LoadState reads the saved city back. Returns ErrNoState when the
// database is empty.
func (db *DB) LoadState() (engine.State, error) {
	var row cityRow
	err := db.conn.Get(&row, `SELECT grid_size, money, population, day,
		tax_rate, growth_rate, goal_json, token_json, proposal_json
		FROM city WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.State{}, ErrNoState
	}
	if err != nil {
		return engine.State{}, fmt.Errorf("load city: %w", err)
	}

	st := engine.State{
		GridSize:  row.GridSize,
		Stats:     engine.Stats{Money: row.Money, Population: row.Population, Day: row.Day},
		Modifiers: engine.Modifiers{TaxRate: row.TaxRate, GrowthRate: row.GrowthRate},
	}
	if err := json.Unmarshal([]byte(row.Token), &st.Token); err != nil {
		return engine.State{}, fmt.Errorf("decode token: %w", err)
	}
	if row.Goal.Valid {
		st.Goal = &engine.Goal{}
		if err := json.Unmarshal([]byte(row.Goal.String), st.Goal); err != nil {
			return engine.State{}, fmt.Errorf("decode goal: %w", err)
		}
	}
	if row.Proposal.Valid {
		st.Proposal = &engine.Proposal{}
		if err := json.Unmarshal([]byte(row.Proposal.String), st.Proposal); err != nil {
			return engine.State{}, fmt.Errorf("decode proposal: %w", err)
		}
	}

	var tileRows []tileRow
	if err := db.conn.Select(&tileRows, "SELECT x, y, building, level FROM tiles"); err != nil {
		return engine.State{}, fmt.Errorf("load tiles: %w", err)
	}
	st.Tiles = make([]grid.Tile, row.GridSize*row.GridSize)
	for i := range st.Tiles {
		st.Tiles[i] = grid.Tile{Type: catalog.None, Level: 1}
	}
	for _, tr := range tileRows {
		t, ok := catalog.ParseBuildingType(tr.Building)
		if !ok {
			return engine.State{}, fmt.Errorf("tile (%d,%d) has unknown building %q", tr.X, tr.Y, tr.Building)
		}
		if tr.X < 0 || tr.X >= row.GridSize || tr.Y < 0 || tr.Y >= row.GridSize {
			return engine.State{}, fmt.Errorf("tile (%d,%d) outside %dx%d grid", tr.X, tr.Y, row.GridSize, row.GridSize)
		}
		st.Tiles[tr.Y*row.GridSize+tr.X] = grid.Tile{Type: t, Level: tr.Level}
	}

	st.News, err = loadJSONRows[engine.News](db, "news")
	if err != nil {
		return engine.State{}, err
	}
	st.Ledger, err = loadJSONRows[engine.Transaction](db, "ledger")
	if err != nil {
		return engine.State{}, err
	}
	return st, nil
}

// loadJSONRows reads a payload-per-row table back in insertion order.
func loadJSONRows[T any](db *DB, table string) ([]T, error) {
	var payloads []string
	if err := db.conn.Select(&payloads, "SELECT payload FROM "+table+" ORDER BY id ASC"); err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	out := make([]T, 0, len(payloads))
	for i, p := range payloads {
		var v T
		if err := json.Unmarshal([]byte(p), &v); err != nil {
			return nil, fmt.Errorf("decode %s row %d: %w", table, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// SaveMeta stores a key-value pair in city metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO city_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. Missing keys return "" without
// error.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM city_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// StatsRow is one day's headline numbers, kept outside the live state so
// history survives full-replace saves.
type StatsRow struct {
	Day        int     `db:"day" json:"day"`
	Money      float64 `db:"money" json:"money"`
	Population float64 `db:"population" json:"population"`
	HousingCap float64 `db:"housing_cap" json:"housing_cap"`
}

// AppendStats records one day in the history, overwriting a previous
// row for the same day after a resume.
func (db *DB) AppendStats(row StatsRow) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO stats_history (day, money, population, housing_cap) VALUES (?, ?, ?, ?)",
		row.Day, row.Money, row.Population, row.HousingCap,
	)
	return err
}

// LoadStatsHistory returns rows with fromDay <= day <= toDay, oldest
// first. When the window holds more than limit rows, the newest ones win;
// trend consumers want the recent end, not the city's first week.
// toDay <= 0 means no upper bound; limit <= 0 falls back to 500.
func (db *DB) LoadStatsHistory(fromDay, toDay, limit int) ([]StatsRow, error) {
	if toDay <= 0 {
		toDay = math.MaxInt32
	}
	if limit <= 0 {
		limit = 500
	}
	var rows []StatsRow
	err := db.conn.Select(&rows,
		`SELECT day, money, population, housing_cap FROM (
			SELECT day, money, population, housing_cap FROM stats_history
			WHERE day >= ? AND day <= ? ORDER BY day DESC LIMIT ?
		) ORDER BY day ASC`,
		fromDay, toDay, limit,
	)
	return rows, err
}
