package sketch

import (
	"FlowLens/internal/config"
	"FlowLens/internal/engine/impl/sketch/statistic"
	"FlowLens/internal/model"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createHeavyHittersTableStatement = `
CREATE TABLE IF NOT EXISTS heavy_hitters (
    Timestamp   DateTime,
    TaskName    String,
    Flow        String,
    Value       UInt64,
    Type        UInt8
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (TaskName, Timestamp);
`

// ClickHouseWriter persists heavy-hitter snapshots to ClickHouse.
// Type 0 rows carry record counts, type 1 rows carry byte sizes.
type ClickHouseWriter struct {
	conn     driver.Conn
	interval time.Duration
}

// NewClickHouseWriter creates a new ClickHouse writer for heavy hitters.
func NewClickHouseWriter(cfg config.ClickHouseConfig, interval time.Duration) (model.Writer, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createHeavyHittersTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create heavy_hitters table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured heavy_hitters table exists.")

	return &ClickHouseWriter{conn: conn, interval: interval}, nil
}

func (w *ClickHouseWriter) GetInterval() time.Duration {
	return w.interval
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

func (w *ClickHouseWriter) Write(payload interface{}, timestamp, name string, fields []string, decodeFlowFunc func(flow []byte, fields []string) string) error {
	heavyHitters, ok := payload.(statistic.HeavyRecord)
	if !ok {
		return fmt.Errorf("invalid payload type for ClickHouse Writer: expected statistic.HeavyRecord, got %T", payload)
	}

	total := len(heavyHitters.Size) + len(heavyHitters.Count)
	if total == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO heavy_hitters")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	snapshotTime, _ := time.Parse("2006-01-02_15-04-05", timestamp)

	for _, hitter := range heavyHitters.Size {
		flow := decodeFlowFunc(hitter.Flow, fields)
		if err := batch.Append(snapshotTime, name, flow, hitter.Size, uint8(1)); err != nil {
			return fmt.Errorf("failed to append heavy hitter to batch: %w", err)
		}
	}

	for _, hitter := range heavyHitters.Count {
		flow := decodeFlowFunc(hitter.Flow, fields)
		if err := batch.Append(snapshotTime, name, flow, uint64(hitter.Count), uint8(0)); err != nil {
			return fmt.Errorf("failed to append heavy hitter to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Printf("Wrote %d heavy hitters to ClickHouse", total)
	return nil
}
