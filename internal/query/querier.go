package query

import (
	"FlowLens/internal/config"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// FlowFilter narrows flow queries. Zero-valued fields are ignored.
type FlowFilter struct {
	TaskName  string
	SrcIP     string
	DstIP     string
	Protocol  string
	Direction string
	Action    string
	Rule      string
	Start     time.Time
	End       time.Time
	Limit     int
}

// FlowRow is the latest known state of one aggregated flow.
type FlowRow struct {
	TaskName  string    `json:"task_name"`
	SrcIP     string    `json:"src_ip,omitempty"`
	DstIP     string    `json:"dst_ip,omitempty"`
	SrcPort   uint16    `json:"src_port,omitempty"`
	DstPort   uint16    `json:"dst_port,omitempty"`
	Protocol  string    `json:"protocol,omitempty"`
	Direction string    `json:"direction,omitempty"`
	Action    string    `json:"action,omitempty"`
	Rule      string    `json:"rule,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Bytes     uint64    `json:"bytes"`
	Packets   uint64    `json:"packets"`
	Records   uint64    `json:"records"`
}

// TaskSummary carries per-task totals across all flows.
type TaskSummary struct {
	TaskName     string `json:"task_name"`
	TotalBytes   uint64 `json:"total_bytes"`
	TotalPackets uint64 `json:"total_packets"`
	TotalRecords uint64 `json:"total_records"`
	FlowCount    uint64 `json:"flow_count"`
}

// FlowLifecycle describes one flow's full observed lifetime.
type FlowLifecycle struct {
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	TotalBytes   uint64    `json:"total_bytes"`
	TotalPackets uint64    `json:"total_packets"`
}

// HeavyHitterRow is one stored heavy-hitter observation.
type HeavyHitterRow struct {
	Timestamp time.Time `json:"timestamp"`
	TaskName  string    `json:"task_name"`
	Flow      string    `json:"flow"`
	Value     uint64    `json:"value"`
	Kind      string    `json:"kind"` // "count" or "size"
}

// Querier defines the interface for querying stored flow data.
type Querier interface {
	ListFlows(ctx context.Context, filter FlowFilter) ([]FlowRow, error)
	AggregateFlows(ctx context.Context, filter FlowFilter) ([]TaskSummary, error)
	TraceFlow(ctx context.Context, taskName string, flowKeys map[string]string, end time.Time) (*FlowLifecycle, error)
	ListHeavyHitters(ctx context.Context, taskName string, since time.Time, limit int) ([]HeavyHitterRow, error)
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn clickhouse.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (clickhouse.Conn, error) {
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

// flowKeyColumns is the grouping key snapshots are deduplicated on. It
// must cover every key column the exact writer stores.
const flowKeyColumns = "TaskName, SrcIP, DstIP, SrcPort, DstPort, Protocol, Direction, Action, Rule"

// buildWhere translates a filter into WHERE clauses plus bind arguments.
func buildWhere(filter FlowFilter) ([]string, []interface{}) {
	var clauses []string
	var args []interface{}

	add := func(clause string, value interface{}) {
		clauses = append(clauses, clause)
		args = append(args, value)
	}

	if filter.TaskName != "" {
		add("TaskName = ?", filter.TaskName)
	}
	if filter.SrcIP != "" {
		add("SrcIP = ?", filter.SrcIP)
	}
	if filter.DstIP != "" {
		add("DstIP = ?", filter.DstIP)
	}
	if filter.Protocol != "" {
		add("Protocol = ?", filter.Protocol)
	}
	if filter.Direction != "" {
		add("Direction = ?", filter.Direction)
	}
	if filter.Action != "" {
		add("Action = ?", filter.Action)
	}
	if filter.Rule != "" {
		add("Rule = ?", filter.Rule)
	}
	if !filter.Start.IsZero() {
		add("Timestamp >= ?", filter.Start)
	}
	if !filter.End.IsZero() {
		add("Timestamp <= ?", filter.End)
	}

	return clauses, args
}

// ListFlows returns the latest state of each flow matching the filter,
// largest flows first.
func (q *clickhouseQuerier) ListFlows(ctx context.Context, filter FlowFilter) ([]FlowRow, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			TaskName, SrcIP, DstIP, SrcPort, DstPort, Protocol, Direction, Action, Rule,
			min(StartTime) AS FirstSeen,
			max(EndTime) AS LastSeen,
			argMax(ByteCount, Timestamp) AS Bytes,
			argMax(PacketCount, Timestamp) AS Packets,
			argMax(RecordCount, Timestamp) AS Records
		FROM flow_metrics
	`)

	whereClauses, args := buildWhere(filter)
	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}

	queryBuilder.WriteString(" GROUP BY " + flowKeyColumns)
	queryBuilder.WriteString(" ORDER BY Bytes DESC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	queryBuilder.WriteString(" LIMIT ?")
	args = append(args, limit)

	rows, err := q.conn.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute flow query: %w", err)
	}
	defer rows.Close()

	var result []FlowRow
	for rows.Next() {
		var row FlowRow
		var srcIP, dstIP, protocol, direction, action, rule *string
		var srcPort, dstPort *uint16

		if err := rows.Scan(&row.TaskName, &srcIP, &dstIP, &srcPort, &dstPort,
			&protocol, &direction, &action, &rule,
			&row.FirstSeen, &row.LastSeen, &row.Bytes, &row.Packets, &row.Records); err != nil {
			return nil, fmt.Errorf("failed to scan flow row: %w", err)
		}

		row.SrcIP = strVal(srcIP)
		row.DstIP = strVal(dstIP)
		row.SrcPort = portVal(srcPort)
		row.DstPort = portVal(dstPort)
		row.Protocol = strVal(protocol)
		row.Direction = strVal(direction)
		row.Action = strVal(action)
		row.Rule = strVal(rule)

		result = append(result, row)
	}

	return result, rows.Err()
}

// AggregateFlows builds and executes a dynamic aggregation query, returning
// per-task totals over the latest snapshot of each flow.
func (q *clickhouseQuerier) AggregateFlows(ctx context.Context, filter FlowFilter) ([]TaskSummary, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			TaskName,
			SUM(LatestByteCount) AS TotalBytes,
			SUM(LatestPacketCount) AS TotalPackets,
			SUM(LatestRecordCount) AS TotalRecords,
			COUNT(*) AS FlowCount
		FROM (
			SELECT
				TaskName,
				argMax(ByteCount, Timestamp) AS LatestByteCount,
				argMax(PacketCount, Timestamp) AS LatestPacketCount,
				argMax(RecordCount, Timestamp) AS LatestRecordCount
			FROM flow_metrics
	`)

	whereClauses, args := buildWhere(filter)
	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}

	queryBuilder.WriteString(`
			GROUP BY ` + flowKeyColumns + `
		)
		GROUP BY TaskName
	`)

	rows, err := q.conn.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var summaries []TaskSummary
	for rows.Next() {
		var summary TaskSummary
		if err := rows.Scan(&summary.TaskName, &summary.TotalBytes, &summary.TotalPackets, &summary.TotalRecords, &summary.FlowCount); err != nil {
			return nil, fmt.Errorf("failed to scan aggregation result: %w", err)
		}
		summaries = append(summaries, summary)
	}

	return summaries, rows.Err()
}

// TraceFlow executes a query to trace the lifecycle of a single flow.
func (q *clickhouseQuerier) TraceFlow(ctx context.Context, taskName string, flowKeys map[string]string, end time.Time) (*FlowLifecycle, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			min(StartTime) AS FirstSeen,
			max(EndTime) AS LastSeen,
			max(ByteCount) AS TotalBytes,
			max(PacketCount) AS TotalPackets
		FROM flow_metrics
	`)

	whereClauses := []string{"TaskName = ?"}
	args := []interface{}{taskName}

	for key, value := range flowKeys {
		// Basic validation to prevent arbitrary column injection
		switch key {
		case "SrcIP", "DstIP", "SrcPort", "DstPort", "Protocol", "Direction", "Action", "Rule":
			whereClauses = append(whereClauses, fmt.Sprintf("%s = ?", key))
			args = append(args, value)
		default:
			return nil, fmt.Errorf("unsupported flow key: %s", key)
		}
	}

	if !end.IsZero() {
		whereClauses = append(whereClauses, "Timestamp <= ?")
		args = append(args, end)
	}

	queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))

	var result FlowLifecycle
	row := q.conn.QueryRow(ctx, queryBuilder.String(), args...)
	if err := row.Scan(&result.FirstSeen, &result.LastSeen, &result.TotalBytes, &result.TotalPackets); err != nil {
		return nil, fmt.Errorf("failed to scan flow lifecycle result: %w", err)
	}

	return &result, nil
}

// ListHeavyHitters returns stored heavy-hitter observations, newest and
// largest first.
func (q *clickhouseQuerier) ListHeavyHitters(ctx context.Context, taskName string, since time.Time, limit int) ([]HeavyHitterRow, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT Timestamp, TaskName, Flow, Value, Type
		FROM heavy_hitters
	`)

	var whereClauses []string
	var args []interface{}

	if taskName != "" {
		whereClauses = append(whereClauses, "TaskName = ?")
		args = append(args, taskName)
	}
	if !since.IsZero() {
		whereClauses = append(whereClauses, "Timestamp >= ?")
		args = append(args, since)
	}
	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}

	if limit <= 0 {
		limit = 100
	}
	queryBuilder.WriteString(" ORDER BY Timestamp DESC, Value DESC LIMIT ?")
	args = append(args, limit)

	rows, err := q.conn.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute heavy-hitter query: %w", err)
	}
	defer rows.Close()

	var result []HeavyHitterRow
	for rows.Next() {
		var row HeavyHitterRow
		var kind uint8
		if err := rows.Scan(&row.Timestamp, &row.TaskName, &row.Flow, &row.Value, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan heavy-hitter row: %w", err)
		}
		if kind == 1 {
			row.Kind = "size"
		} else {
			row.Kind = "count"
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func portVal(p *uint16) uint16 {
	if p == nil {
		return 0
	}
	return *p
}
