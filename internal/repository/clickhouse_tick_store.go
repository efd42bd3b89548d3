package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"QuoteForge/internal/domain/models"
	"QuoteForge/internal/domain/repository"
)

// TickHistorySchema creates the tick history table. Passed to the ClickHouse
// client's InitSchema on startup.
func TickHistorySchema(table string) []string {
	return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts DateTime64(3),
		symbol LowCardinality(String),
		price Float64,
		bid Float64,
		ask Float64,
		mode LowCardinality(String),
		volatility Float64
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMMDD(ts)
	ORDER BY (symbol, ts)
	TTL toDateTime(ts) + INTERVAL 30 DAY`, table)}
}

// ClickHouseTickStore persists emitted ticks for history queries.
type ClickHouseTickStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseTickStore creates the tick history store.
func NewClickHouseTickStore(db *sql.DB, table string) repository.TickStore {
	return &ClickHouseTickStore{db: db, table: table}
}

func (s *ClickHouseTickStore) Init(ctx context.Context) error {
	for _, stmt := range TickHistorySchema(s.table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init tick schema: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseTickStore) Store(ctx context.Context, tick *models.PriceTick) error {
	return s.StoreBatch(ctx, []*models.PriceTick{tick})
}

func (s *ClickHouseTickStore) StoreBatch(ctx context.Context, ticks []*models.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}
	// Multi-row VALUES to keep round-trips down; 2000 rows per chunk.
	const chunkSize = 2000
	for start := 0; start < len(ticks); start += chunkSize {
		end := start + chunkSize
		if end > len(ticks) {
			end = len(ticks)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, t := range ticks[start:end] {
			if t == nil || t.Symbol == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				t.Timestamp,
				t.Symbol,
				t.Price,
				t.Bid,
				t.Ask,
				string(t.Mode),
				t.Volatility,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, bid, ask, mode, volatility) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseTickStore) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.PriceTick, error) {
	q := fmt.Sprintf("SELECT symbol, ts, price, bid, ask, mode, volatility FROM %s WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []*models.PriceTick
	for rows.Next() {
		var t models.PriceTick
		var mode string
		if err := rows.Scan(&t.Symbol, &t.Timestamp, &t.Price, &t.Bid, &t.Ask, &mode, &t.Volatility); err != nil {
			return nil, err
		}
		t.Mode = models.PriceMode(mode)
		ticks = append(ticks, &t)
	}
	return ticks, rows.Err()
}

func (s *ClickHouseTickStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseTickStore) Close() error {
	return nil // connection pool owned by pkg/clickhouse
}
