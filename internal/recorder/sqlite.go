package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"ValuationSentinel/internal/model"
)

// SQLiteRecorder persists historical data to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
	now func() time.Time
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so external readers do not block the daemon's writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{
		db:  db,
		log: log.With().Str("component", "recorder").Logger(),
		now: time.Now,
	}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS evaluations (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			run_id      TEXT NOT NULL,
			trigger_type TEXT,
			code        TEXT NOT NULL,
			data_date   TEXT,
			pe          REAL,
			percentile  REAL,
			avg_3y      REAL,
			avg_5y      REAL,
			deviation   REAL,
			signal      TEXT NOT NULL,
			decision    TEXT,
			units_held  REAL,
			total_cost  REAL,
			pl_pct      REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_code_ts ON evaluations(code, timestamp)`,

		`CREATE TABLE IF NOT EXISTS ledger_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			code        TEXT NOT NULL,
			action      TEXT NOT NULL,
			tx_id       INTEGER,
			tx_type     TEXT,
			unit        REAL,
			price       REAL,
			units_after REAL,
			cost_after  REAL,
			note        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_events_code_ts ON ledger_events(code, timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordEvaluation(evt *Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dataDate any
	if !evt.DataDate.IsZero() {
		dataDate = evt.DataDate.Format(model.DateLayout)
	}
	_, err := r.db.Exec(`INSERT INTO evaluations
		(timestamp, run_id, trigger_type, code, data_date, pe, percentile, avg_3y, avg_5y,
		 deviation, signal, decision, units_held, total_cost, pl_pct)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.now().Unix(), evt.RunID, string(evt.Trigger), evt.Code, dataDate,
		nullable(evt.PE), nullable(evt.Percentile), nullable(evt.Avg3Y), nullable(evt.Avg5Y),
		nullable(evt.Deviation), string(evt.Signal), strings.Join(evt.Log, "\n"),
		evt.UnitsHeld, evt.TotalCost, nullable(evt.PLPct),
	)
	return err
}

func (r *SQLiteRecorder) RecordLedgerEvent(evt *LedgerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO ledger_events
		(timestamp, code, action, tx_id, tx_type, unit, price, units_after, cost_after, note)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		r.now().Unix(), evt.Code, string(evt.Action), evt.TxID, string(evt.Type),
		evt.Unit, evt.Price, evt.UnitsAfter, evt.CostAfter, evt.Note,
	)
	return err
}

func (r *SQLiteRecorder) LastSignal(code string, trigger model.TriggerType) (model.Signal, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s string
	err := r.db.QueryRow(`SELECT signal FROM evaluations
		WHERE code = ? AND (? = '' OR trigger_type = ?)
		ORDER BY timestamp DESC, id DESC LIMIT 1`, code, string(trigger), string(trigger)).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return model.Signal(s), true, nil
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

// nullable maps an unavailable metric to SQL NULL.
func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
