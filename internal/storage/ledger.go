package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/skalibog/bsig/pkg/models"
	_ "modernc.org/sqlite"
)

// RunRecord результат прогона одной стратегии
type RunRecord struct {
	RunID    string
	Strategy string
	Metrics  []models.Metrics
	Err      error
	At       time.Time
}

// LedgerRow строка журнала: метрики одной пары или ошибка стратегии
type LedgerRow struct {
	RunID    string
	Strategy string
	Metrics  models.Metrics
	Error    string
	At       time.Time
}

// Ledger журнал прогонов в SQLite
type Ledger struct {
	db *sql.DB
}

// OpenLedger открывает (или создает) журнал по пути
func OpenLedger(path string) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("путь к журналу не может быть пустым")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, ddl := range []string{`
		CREATE TABLE IF NOT EXISTS runs (
			run_id       TEXT    NOT NULL,
			strategy     TEXT    NOT NULL,
			pair         TEXT    NOT NULL DEFAULT '',
			total_return REAL,
			sharpe       REAL,
			max_drawdown REAL,
			win_rate     REAL,
			expectancy   REAL,
			exposure     REAL,
			trades       INTEGER NOT NULL DEFAULT 0,
			error        TEXT    NOT NULL DEFAULT '',
			created_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id)`,
	} {
		if _, err := db.Exec(ddl); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ошибка создания схемы журнала: %w", err)
		}
	}
	return &Ledger{db: db}, nil
}

// Close закрывает базу
func (l *Ledger) Close() error {
	return l.db.Close()
}

// SaveRun записывает метрики прогона; неудачный прогон записывается одной строкой с ошибкой
func (l *Ledger) SaveRun(ctx context.Context, rec RunRecord) error {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	errText := ""
	if rec.Err != nil {
		errText = rec.Err.Error()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO runs (run_id, strategy, pair, total_return, sharpe, max_drawdown,
		                  win_rate, expectancy, exposure, trades, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	rows := rec.Metrics
	if len(rows) == 0 {
		rows = []models.Metrics{{}}
	}
	for _, m := range rows {
		if _, err := stmt.ExecContext(ctx,
			rec.RunID, rec.Strategy, string(m.Pair),
			nullable(m.TotalReturn), nullable(m.SharpeRatio), nullable(m.MaxDrawdown),
			nullable(m.WinRate), nullable(m.Expectancy), nullable(m.ExposureTime),
			m.Trades, errText, rec.At.UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("ошибка записи прогона %s: %w", rec.Strategy, err)
		}
	}
	return tx.Commit()
}

// Runs возвращает строки журнала прогона в порядке записи
func (l *Ledger) Runs(ctx context.Context, runID string) ([]LedgerRow, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, strategy, pair, total_return, sharpe, max_drawdown,
		       win_rate, expectancy, exposure, trades, error, created_at
		FROM runs WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerRow
	for rows.Next() {
		var (
			r                                 LedgerRow
			pair                              string
			ret, sharpe, dd, win, exp, expose sql.NullFloat64
			at                                int64
		)
		if err := rows.Scan(&r.RunID, &r.Strategy, &pair, &ret, &sharpe, &dd,
			&win, &exp, &expose, &r.Metrics.Trades, &r.Error, &at); err != nil {
			return nil, err
		}
		r.Metrics.Pair = models.Pair(pair)
		r.Metrics.TotalReturn = orNaN(ret)
		r.Metrics.SharpeRatio = orNaN(sharpe)
		r.Metrics.MaxDrawdown = orNaN(dd)
		r.Metrics.WinRate = orNaN(win)
		r.Metrics.Expectancy = orNaN(exp)
		r.Metrics.ExposureTime = orNaN(expose)
		r.At = time.UnixMilli(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SQLite не хранит NaN
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
