package main

import (
	"FlowLens/internal/config"
	"FlowLens/internal/ipfilter"
	"FlowLens/internal/ownership"
	"FlowLens/internal/query"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
)

func main() {
	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Find the first enabled ClickHouse writer config; the API reads the
	// same database the engine writes.
	chCfg := findClickHouseConfig(cfg)

	var querier query.Querier
	if chCfg != nil {
		querier, err = query.NewClickHouseQuerier(*chCfg)
		if err != nil {
			log.Fatalf("Failed to create querier: %v", err)
		}
	} else {
		log.Println("No enabled ClickHouse writer found in config; flow query endpoints will return 503.")
	}

	// The IP inspection endpoint reuses the engine's exclusion config.
	exclusions := ipfilter.NewExclusionSet(cfg.Exclusions.IPs, cfg.Exclusions.CIDRs)

	var resolver *ownership.Resolver
	var ownerCache *ownership.Cache
	if cfg.Ownership.ServiceTagsPath != "" {
		resolver, err = ownership.NewResolver(cfg.Ownership.ServiceTagsPath)
		if err != nil {
			log.Fatalf("Failed to load service tags: %v", err)
		}
		ttl, err := time.ParseDuration(cfg.Ownership.CacheTTL)
		if err != nil {
			log.Fatalf("Invalid ownership cache_ttl: %v", err)
		}
		ownerCache = ownership.NewCache(ttl)
		log.Printf("Ownership resolver loaded with %d service tags.", resolver.NumTags())
	}

	// Initialize router
	r := mux.NewRouter()

	// Create API handler with its dependencies
	apiHandler := &APIHandler{
		querier:    querier,
		exclusions: exclusions,
		resolver:   resolver,
		ownerCache: ownerCache,
	}

	// Define API routes
	r.HandleFunc("/api/v1/healthz", apiHandler.healthzHandler).Methods("GET")
	r.HandleFunc("/api/v1/flows", apiHandler.listFlowsHandler).Methods("GET")
	r.HandleFunc("/api/v1/flows/summary", apiHandler.summaryHandler).Methods("GET")
	r.HandleFunc("/api/v1/flows/trace", apiHandler.traceFlowHandler).Methods("POST")
	r.HandleFunc("/api/v1/heavyhitters", apiHandler.heavyHittersHandler).Methods("GET")
	r.HandleFunc("/api/v1/ip/{ip}", apiHandler.ipHandler).Methods("GET")

	// Start HTTP server
	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("API server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("API server exited.")
}

// findClickHouseConfig returns the first enabled ClickHouse writer config,
// checking the exact aggregator first and the sketch aggregator second.
func findClickHouseConfig(cfg *config.Config) *config.ClickHouseConfig {
	for _, writerDef := range cfg.Aggregator.Exact.Writers {
		if writerDef.Enabled && writerDef.Type == "clickhouse" {
			return &writerDef.ClickHouse
		}
	}
	for _, writerDef := range cfg.Aggregator.Sketch.Writers {
		if writerDef.Enabled && writerDef.Type == "clickhouse" {
			return &writerDef.ClickHouse
		}
	}
	return nil
}

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	querier    query.Querier
	exclusions *ipfilter.ExclusionSet
	resolver   *ownership.Resolver
	ownerCache *ownership.Cache
}

func (h *APIHandler) healthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// listFlowsHandler returns the latest state of flows matching the query
// parameters.
func (h *APIHandler) listFlowsHandler(w http.ResponseWriter, r *http.Request) {
	if h.querier == nil {
		http.Error(w, "flow storage is not configured", http.StatusServiceUnavailable)
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flows, err := h.querier.ListFlows(r.Context(), filter)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query flows: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"count": len(flows),
		"flows": flows,
	})
}

// summaryHandler returns per-task totals for flows matching the filter.
func (h *APIHandler) summaryHandler(w http.ResponseWriter, r *http.Request) {
	if h.querier == nil {
		http.Error(w, "flow storage is not configured", http.StatusServiceUnavailable)
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	summaries, err := h.querier.AggregateFlows(r.Context(), filter)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query flows: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{"summaries": summaries})
}

// traceFlowRequest is the body of a POST /api/v1/flows/trace call.
type traceFlowRequest struct {
	TaskName string            `json:"task_name"`
	FlowKeys map[string]string `json:"flow_keys"`
	EndTime  time.Time         `json:"end_time"`
}

// traceFlowHandler handles tracing a single flow's lifecycle.
func (h *APIHandler) traceFlowHandler(w http.ResponseWriter, r *http.Request) {
	if h.querier == nil {
		http.Error(w, "flow storage is not configured", http.StatusServiceUnavailable)
		return
	}

	var req traceFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
		return
	}
	if req.TaskName == "" {
		http.Error(w, "task_name is required", http.StatusBadRequest)
		return
	}

	lifecycle, err := h.querier.TraceFlow(r.Context(), req.TaskName, req.FlowKeys, req.EndTime)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to trace flow: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, lifecycle)
}

// heavyHittersHandler returns stored heavy-hitter observations.
func (h *APIHandler) heavyHittersHandler(w http.ResponseWriter, r *http.Request) {
	if h.querier == nil {
		http.Error(w, "flow storage is not configured", http.StatusServiceUnavailable)
		return
	}

	params := r.URL.Query()

	var since time.Time
	if s := params.Get("since"); s != "" {
		var err error
		since, err = time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid since: %v", err), http.StatusBadRequest)
			return
		}
	}

	limit := 0
	if s := params.Get("limit"); s != "" {
		var err error
		limit, err = strconv.Atoi(s)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid limit: %v", err), http.StatusBadRequest)
			return
		}
	}

	hitters, err := h.querier.ListHeavyHitters(r.Context(), params.Get("task"), since, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query heavy hitters: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"count":         len(hitters),
		"heavy_hitters": hitters,
	})
}

// ipInfo is the response shape of GET /api/v1/ip/{ip}.
type ipInfo struct {
	IP       string `json:"ip"`
	Private  bool   `json:"private"`
	Excluded bool   `json:"excluded"`
	Owner    string `json:"owner,omitempty"`
}

// ipHandler classifies one IP address: private or public, excluded by
// the configured filter, and owner attribution when a service-tag table
// is loaded.
func (h *APIHandler) ipHandler(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["ip"]
	if net.ParseIP(addr) == nil {
		http.Error(w, fmt.Sprintf("invalid IP address: %q", addr), http.StatusBadRequest)
		return
	}

	info := ipInfo{
		IP:       addr,
		Private:  ipfilter.IsPrivate(addr),
		Excluded: h.exclusions.Excluded(addr),
	}
	if h.resolver != nil {
		info.Owner = h.resolver.Resolve(addr, h.ownerCache)
	}

	writeJSON(w, info)
}

// filterFromQuery maps URL query parameters onto a flow filter.
func filterFromQuery(r *http.Request) (query.FlowFilter, error) {
	params := r.URL.Query()

	filter := query.FlowFilter{
		TaskName:  params.Get("task"),
		SrcIP:     params.Get("src_ip"),
		DstIP:     params.Get("dst_ip"),
		Protocol:  params.Get("protocol"),
		Direction: params.Get("direction"),
		Action:    params.Get("action"),
		Rule:      params.Get("rule"),
	}

	if s := params.Get("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return filter, fmt.Errorf("invalid start: %w", err)
		}
		filter.Start = t
	}
	if s := params.Get("end"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return filter, fmt.Errorf("invalid end: %w", err)
		}
		filter.End = t
	}
	if s := params.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return filter, fmt.Errorf("invalid limit: %w", err)
		}
		filter.Limit = n
	}

	return filter, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
