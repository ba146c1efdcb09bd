// internal/eventlog/journal.go
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/rovshanmuradov/fairlaunch/internal/domain"
	"github.com/rovshanmuradov/fairlaunch/internal/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	launch_id TEXT NOT NULL,
	trader TEXT NOT NULL,
	is_buy INTEGER NOT NULL,
	token_amount TEXT NOT NULL,
	currency_amount TEXT NOT NULL,
	price TEXT NOT NULL,
	current_supply TEXT NOT NULL,
	total_raised TEXT NOT NULL,
	executed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_launch ON trades(launch_id, id);
`

// Entry is one journaled trade.
type Entry struct {
	LaunchID       string
	Trader         domain.Account
	IsBuy          bool
	TokenAmount    *uint256.Int
	CurrencyAmount *uint256.Int
	Price          *uint256.Int
	CurrentSupply  *uint256.Int
	TotalRaised    *uint256.Int
	ExecutedAt     time.Time
}

// Journal persists the trade stream to sqlite so history survives restarts.
// Amounts are stored as decimal strings; 256-bit values do not fit sqlite
// integers.
type Journal struct {
	db     *sql.DB
	logger *zap.Logger
	sub    events.Subscription
}

// Open opens (or creates) the journal database and runs migrations.
func Open(path string, logger *zap.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open database: %w", err)
	}
	// modernc sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: migrate schema: %w", err)
	}
	return &Journal{db: db, logger: logger.Named("eventlog")}, nil
}

// Attach subscribes the journal to trade broadcasts on the bus.
func (j *Journal) Attach(bus *events.Bus) {
	j.sub = bus.SubscribeFunc(events.TradeExecutedType, func(ctx context.Context, ev events.Event) error {
		msg, ok := ev.(*events.TradeExecuted)
		if !ok {
			return nil
		}
		return j.Record(ctx, Entry{
			LaunchID:       msg.LaunchID,
			Trader:         msg.Trader,
			IsBuy:          msg.IsBuy,
			TokenAmount:    msg.TokenAmount,
			CurrencyAmount: msg.CurrencyAmount,
			Price:          msg.NewPrice,
			CurrentSupply:  msg.CurrentSupply,
			TotalRaised:    msg.TotalRaised,
			ExecutedAt:     msg.Timestamp(),
		})
	})
}

// Record appends one trade to the journal.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades (launch_id, trader, is_buy, token_amount, currency_amount, price, current_supply, total_raised, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.LaunchID,
		e.Trader.String(),
		boolToInt(e.IsBuy),
		decOrZero(e.TokenAmount),
		decOrZero(e.CurrencyAmount),
		decOrZero(e.Price),
		decOrZero(e.CurrentSupply),
		decOrZero(e.TotalRaised),
		e.ExecutedAt.UnixMicro(),
	)
	if err != nil {
		j.logger.Error("Failed to journal trade",
			zap.String("launch_id", e.LaunchID),
			zap.Error(err))
		return fmt.Errorf("eventlog: record trade: %w", err)
	}
	return nil
}

// History returns up to limit journaled trades for a launch, newest first.
func (j *Journal) History(ctx context.Context, launchID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT launch_id, trader, is_buy, token_amount, currency_amount, price, current_supply, total_raised, executed_at
		FROM trades WHERE launch_id = ? ORDER BY id DESC LIMIT ?`,
		launchID, limit)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Recent returns the latest trades across all launches, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT launch_id, trader, is_buy, token_amount, currency_amount, price, current_supply, total_raised, executed_at
		FROM trades ORDER BY id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query recent: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Count returns the number of journaled trades for a launch.
func (j *Journal) Count(ctx context.Context, launchID string) (int64, error) {
	var n int64
	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE launch_id = ?`, launchID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("eventlog: count trades: %w", err)
	}
	return n, nil
}

// Close detaches from the bus and closes the database.
func (j *Journal) Close() error {
	if j.sub != nil {
		j.sub.Unsubscribe()
	}
	return j.db.Close()
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var (
			e                                       Entry
			trader                                  string
			isBuy                                   int
			tokenAmt, curAmt, price, supply, raised string
			executedAt                              int64
		)
		if err := rows.Scan(&e.LaunchID, &trader, &isBuy, &tokenAmt, &curAmt, &price, &supply, &raised, &executedAt); err != nil {
			return nil, fmt.Errorf("eventlog: scan trade: %w", err)
		}
		e.Trader = parseAccount(trader)
		e.IsBuy = isBuy != 0
		var err error
		if e.TokenAmount, err = parseDec(tokenAmt); err != nil {
			return nil, err
		}
		if e.CurrencyAmount, err = parseDec(curAmt); err != nil {
			return nil, err
		}
		if e.Price, err = parseDec(price); err != nil {
			return nil, err
		}
		if e.CurrentSupply, err = parseDec(supply); err != nil {
			return nil, err
		}
		if e.TotalRaised, err = parseDec(raised); err != nil {
			return nil, err
		}
		e.ExecutedAt = time.UnixMicro(executedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func parseDec(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("eventlog: corrupt amount %q: %w", s, err)
	}
	return v, nil
}

func parseAccount(s string) domain.Account {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return domain.Account{Chain: s[:i], Owner: s[i+1:]}
		}
	}
	return domain.Account{Owner: s}
}

func decOrZero(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
