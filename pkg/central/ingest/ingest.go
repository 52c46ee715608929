// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ingest is the central brain's HTTP surface: batch ingestion from
// edge agents fanning out to the TSDB and event store, the alert cache
// query endpoints, and the PromQL pass-through.
//
// Ingestion is fire-and-forget from the edge's perspective once 2xx is
// returned. A failure in either downstream returns 5xx so the edge buffers
// and redelivers; partial success is reported as failure for the same
// reason.
package ingest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sidralabs/sidra/pkg/central/alertcache"
	"github.com/sidralabs/sidra/pkg/central/eventwriter"
	"github.com/sidralabs/sidra/pkg/central/tsdbwriter"
	"github.com/sidralabs/sidra/pkg/serializer"
	"github.com/sidralabs/sidra/pkg/telemetry"
)

// Route paths served by the API.
const (
	RouteIngestMetrics = "/api/v1/ingest/metrics"
	RouteIngestAlerts  = "/api/v1/ingest/alerts"
	RouteIngestLogs    = "/api/v1/ingest/logs"
	RouteIngestBatch   = "/api/v1/ingest/batch"
	RouteAlertsRecent  = "/api/v1/alerts/recent"
	RouteAlertsCrit    = "/api/v1/alerts/critical"
	RouteQuery         = "/api/v1/query"
	RouteSummary       = "/api/v1/summary"
)

// summaryQueries are the fixed PromQL expressions behind /api/v1/summary.
var summaryQueries = map[string]string{
	"hosts_up":        `count(sidra_agent_health == 1)`,
	"avg_cpu":         `avg(sidra_cpu_usage_percent)`,
	"avg_memory":      `avg(sidra_memory_usage_percent)`,
	"critical_alerts": `count(alerts{severity="critical"})`,
}

// API wires the ingest handlers to their downstreams.
type API struct {
	tsdb   *tsdbwriter.Writer
	events *eventwriter.Writer
	cache  *alertcache.Cache
}

// New creates the API over the given writers and cache.
func New(tsdb *tsdbwriter.Writer, events *eventwriter.Writer, cache *alertcache.Cache) *API {
	return &API{tsdb: tsdb, events: events, cache: cache}
}

// Handlers returns the route table for pkg/server's WithHandler option.
func (a *API) Handlers() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		RouteIngestMetrics: a.handleIngestMetrics,
		RouteIngestAlerts:  a.handleIngestAlerts,
		RouteIngestLogs:    a.handleIngestLogs,
		RouteIngestBatch:   a.handleIngestBatch,
		RouteAlertsRecent:  a.handleAlertsRecent,
		RouteAlertsCrit:    a.handleAlertsCritical,
		RouteQuery:         a.handleQuery,
		RouteSummary:       a.handleSummary,
	}
}

// batchPayload is the edge wire format. The singular Alert field is a
// legacy shape the alerts endpoint still accepts.
type batchPayload struct {
	Timestamp float64                 `json:"timestamp"`
	Host      string                  `json:"host"`
	Priority  string                  `json:"priority"`
	Metrics   []telemetry.MetricPoint `json:"metrics"`
	Alert     *telemetry.Alert        `json:"alert"`
	Alerts    []telemetry.Alert       `json:"alerts"`
	Logs      []telemetry.LogEntry    `json:"logs"`
}

// writeDetail emits the contract error shape: {"detail": "<message>"}.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	serializer.RespondJSON(w, status, map[string]string{"detail": detail})
}

func decodePayload(w http.ResponseWriter, r *http.Request) (*batchPayload, bool) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return nil, false
	}
	var p batchPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON payload: "+err.Error())
		return nil, false
	}
	return &p, true
}

func (a *API) handleIngestMetrics(w http.ResponseWriter, r *http.Request) {
	p, ok := decodePayload(w, r)
	if !ok {
		return
	}
	if len(p.Metrics) == 0 {
		serializer.RespondJSON(w, http.StatusOK, map[string]any{
			"status": "ok", "metrics_received": 0,
		})
		return
	}

	if err := a.tsdb.Write(r.Context(), p.Host, p.Metrics); err != nil {
		slog.Error("metrics fan-out failed", "host", p.Host, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to write metrics")
		return
	}

	serializer.RespondJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"metrics_received": len(p.Metrics),
	})
}

func (a *API) handleIngestAlerts(w http.ResponseWriter, r *http.Request) {
	p, ok := decodePayload(w, r)
	if !ok {
		return
	}

	alerts := p.Alerts
	if p.Alert != nil {
		alerts = append(alerts, *p.Alert)
	}
	if len(alerts) == 0 {
		serializer.RespondJSON(w, http.StatusOK, map[string]any{
			"status": "ok", "alerts_received": 0,
		})
		return
	}

	a.storeAlerts(p.Host, alerts)

	if err := a.events.WriteAlerts(r.Context(), p.Host, alerts); err != nil {
		slog.Error("alerts fan-out failed", "host", p.Host, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to write alerts")
		return
	}

	serializer.RespondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"alerts_received": len(alerts),
	})
}

// storeAlerts stamps missing hosts, pushes into the cache, and logs the
// severe ones.
func (a *API) storeAlerts(host string, alerts []telemetry.Alert) {
	for i := range alerts {
		if alerts[i].Host == "" {
			alerts[i].Host = host
		}
		a.cache.Add(alerts[i])

		switch alerts[i].Severity {
		case telemetry.SeverityCritical, telemetry.SeverityHigh:
			slog.Warn("alert received",
				"severity", alerts[i].Severity,
				"host", alerts[i].Host,
				"message", alerts[i].Message)
		}
	}
}

func (a *API) handleIngestLogs(w http.ResponseWriter, r *http.Request) {
	p, ok := decodePayload(w, r)
	if !ok {
		return
	}
	if len(p.Logs) == 0 {
		serializer.RespondJSON(w, http.StatusOK, map[string]any{
			"status": "ok", "logs_received": 0,
		})
		return
	}

	if err := a.events.WriteLogs(r.Context(), p.Host, p.Logs); err != nil {
		slog.Error("logs fan-out failed", "host", p.Host, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Failed to write logs")
		return
	}

	serializer.RespondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"logs_received": len(p.Logs),
	})
}

func (a *API) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	p, ok := decodePayload(w, r)
	if !ok {
		return
	}

	received := map[string]int{}

	if len(p.Metrics) > 0 {
		if err := a.tsdb.Write(r.Context(), p.Host, p.Metrics); err != nil {
			slog.Error("batch metrics fan-out failed", "host", p.Host, "error", err)
			writeDetail(w, http.StatusInternalServerError, "Failed to write metrics")
			return
		}
		received["metrics"] = len(p.Metrics)
	}

	if len(p.Alerts) > 0 {
		a.storeAlerts(p.Host, p.Alerts)
		if err := a.events.WriteAlerts(r.Context(), p.Host, p.Alerts); err != nil {
			slog.Error("batch alerts fan-out failed", "host", p.Host, "error", err)
			writeDetail(w, http.StatusInternalServerError, "Failed to write alerts")
			return
		}
		received["alerts"] = len(p.Alerts)
	}

	if len(p.Logs) > 0 {
		if err := a.events.WriteLogs(r.Context(), p.Host, p.Logs); err != nil {
			slog.Error("batch logs fan-out failed", "host", p.Host, "error", err)
			writeDetail(w, http.StatusInternalServerError, "Failed to write logs")
			return
		}
		received["logs"] = len(p.Logs)
	}

	serializer.RespondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"received": received,
	})
}

func countParam(r *http.Request, fallback int) int {
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func (a *API) handleAlertsRecent(w http.ResponseWriter, r *http.Request) {
	alerts := a.cache.Recent(countParam(r, 100))
	serializer.RespondJSON(w, http.StatusOK, map[string]any{
		"count":  len(alerts),
		"alerts": emptyIfNil(alerts),
	})
}

func (a *API) handleAlertsCritical(w http.ResponseWriter, r *http.Request) {
	alerts := a.cache.BySeverity(telemetry.SeverityCritical, countParam(r, 50))
	serializer.RespondJSON(w, http.StatusOK, map[string]any{
		"count":  len(alerts),
		"alerts": emptyIfNil(alerts),
	})
}

func emptyIfNil(alerts []telemetry.Alert) []telemetry.Alert {
	if alerts == nil {
		return []telemetry.Alert{}
	}
	return alerts
}

func (a *API) handleQuery(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("q")
	if expr == "" {
		writeDetail(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	body, err := a.tsdb.Query(r.Context(), expr)
	if err != nil {
		slog.Error("query pass-through failed", "query", expr, "error", err)
		writeDetail(w, http.StatusInternalServerError, "query failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// queryResult is the slice of the TSDB query response summary reads.
type queryResult struct {
	Data struct {
		Result []struct {
			Value []any `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	results := map[string]any{}
	for name, expr := range summaryQueries {
		body, err := a.tsdb.Query(r.Context(), expr)
		if err != nil {
			results[name] = "N/A"
			continue
		}
		var parsed queryResult
		if err := json.Unmarshal(body, &parsed); err != nil ||
			len(parsed.Data.Result) == 0 || len(parsed.Data.Result[0].Value) < 2 {
			results[name] = "N/A"
			continue
		}
		results[name] = parsed.Data.Result[0].Value[1]
	}

	recent := a.cache.Recent(10)
	summaries := make([]map[string]any, 0, len(recent))
	for _, alert := range recent {
		summaries = append(summaries, map[string]any{
			"severity": alert.Severity,
			"host":     alert.Host,
			"message":  alert.Message,
		})
	}

	serializer.RespondJSON(w, http.StatusOK, map[string]any{
		"timestamp":     float64(time.Now().UnixNano()) / 1e9,
		"metrics":       results,
		"recent_alerts": summaries,
	})
}
