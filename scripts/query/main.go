package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

func main() {
	// Define command-line flags
	mode := flag.String("mode", "http", "Query mode: 'http' to query via the REST API, 'direct' to query ClickHouse directly.")
	taskName := flag.String("task", "", "The name of the task to query (optional).")
	apiBase := flag.String("api", "http://localhost:8080", "Base URL of the REST API (http mode).")
	ip := flag.String("ip", "", "Inspect a single IP address instead of flow summaries (http mode).")

	addr := flag.String("addr", "localhost:9000", "ClickHouse address (direct mode).")
	database := flag.String("database", "default", "ClickHouse database (direct mode).")
	username := flag.String("username", "default", "ClickHouse username (direct mode).")
	password := flag.String("password", "", "ClickHouse password (direct mode).")

	defaultEnd := time.Now().UTC().Format(time.RFC3339)
	endTimeStr := flag.String("end", defaultEnd, "End time in RFC3339 format (e.g., 2026-08-23T15:10:00Z).")

	flag.Parse()

	log.Printf("Running in '%s' mode.", *mode)

	switch *mode {
	case "http":
		if *ip != "" {
			queryIPViaAPI(*apiBase, *ip)
		} else {
			querySummaryViaAPI(*apiBase, *taskName, *endTimeStr)
		}
	case "direct":
		directQueryClickHouse(*addr, *database, *username, *password, *taskName, *endTimeStr)
	default:
		log.Fatalf("Invalid mode: %s. Use 'http' or 'direct'.", *mode)
	}
}

// --- API Query Logic ---

func querySummaryViaAPI(apiBase, taskName, endTime string) {
	params := url.Values{}
	if taskName != "" {
		params.Set("task", taskName)
	}
	if endTime != "" {
		params.Set("end", endTime)
	}

	apiURL := apiBase + "/api/v1/flows/summary"
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}
	fetchAndPrint(apiURL)
}

func queryIPViaAPI(apiBase, ip string) {
	fetchAndPrint(apiBase + "/api/v1/ip/" + url.PathEscape(ip))
}

func fetchAndPrint(apiURL string) {
	log.Printf("Sending request to %s", apiURL)

	resp, err := http.Get(apiURL)
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("API returned non-200 status code: %d\nResponse: %s", resp.StatusCode, string(respBody))
	}

	var prettyJSON bytes.Buffer
	err = json.Indent(&prettyJSON, respBody, "", "  ")
	if err != nil {
		log.Printf("Could not prettify JSON, printing raw response:")
		fmt.Println(string(respBody))
		return
	}

	log.Println("---")
	fmt.Println(prettyJSON.String())
}

// --- Direct ClickHouse Query Logic ---

func directQueryClickHouse(addr, database, username, password, taskName, endTimeStr string) {
	connOpts := clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	}

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

	var whereClauses []string
	args := []interface{}{}

	endTime, err := time.Parse(time.RFC3339, endTimeStr)
	if err != nil {
		log.Fatalf("Invalid end time format: %v", err)
	}
	whereClauses = append(whereClauses, "Timestamp <= ?")
	args = append(args, endTime)

	if taskName != "" {
		whereClauses = append(whereClauses, "TaskName = ?")
		args = append(args, taskName)
	}

	queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))

	// The inner GROUP BY must cover every stored key column so distinct
	// flows never collapse into one.
	queryBuilder.WriteString(`
			GROUP BY TaskName, SrcIP, DstIP, SrcPort, DstPort, Protocol, Direction, Action, Rule
		)
		GROUP BY TaskName
`)

	conn, err := clickhouse.Open(&connOpts)
	if err != nil {
		log.Fatalf("Error connecting to ClickHouse: %v", err)
	}
	defer conn.Close()

	log.Println("Successfully connected to ClickHouse.")

	rows, err := conn.Query(context.Background(), queryBuilder.String(), args...)
	if err != nil {
		log.Fatalf("Error executing query: %v", err)
	}
	defer rows.Close()

	log.Println("--- Aggregated Query Results (Direct) ---")

	var foundResult bool
	for rows.Next() {
		foundResult = true
		var (
			queriedTaskName string
			totalBytes      uint64
			totalPackets    uint64
			totalRecords    uint64
			flowCount       uint64
		)

		if err := rows.Scan(&queriedTaskName, &totalBytes, &totalPackets, &totalRecords, &flowCount); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}

		fmt.Printf("TaskName: %s\n", queriedTaskName)
		fmt.Printf("  TotalBytes: %d\n", totalBytes)
		fmt.Printf("  TotalPackets: %d\n", totalPackets)
		fmt.Printf("  TotalRecords: %d\n", totalRecords)
		fmt.Printf("  FlowCount: %d\n", flowCount)
		fmt.Println("---------------------")
	}

	if !foundResult {
		log.Println("No data found for the specified criteria.")
	}

	if err := rows.Err(); err != nil {
		log.Printf("An error occurred during row iteration: %v", err)
	}
}
