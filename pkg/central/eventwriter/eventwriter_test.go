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

package eventwriter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cnserrors "github.com/sidralabs/sidra/pkg/errors"
	"github.com/sidralabs/sidra/pkg/telemetry"
)

func TestWriteLogs(t *testing.T) {
	var gotPath string
	var gotEvents []LogEvent
	var gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEvents))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := New(srv.URL, "admin@sidra.local", "pw")
	err := w.WriteLogs(context.Background(), "h1", []telemetry.LogEntry{
		{Timestamp: 1700000000.5, Level: telemetry.LogLevelError, Message: "boom", Source: "/var/log/syslog"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/default/logs/_json", gotPath)
	assert.Equal(t, "admin@sidra.local", gotUser)
	assert.Equal(t, "pw", gotPass)

	require.Len(t, gotEvents, 1)
	assert.Equal(t, int64(1700000000500000), gotEvents[0].Timestamp)
	assert.Equal(t, "error", gotEvents[0].Level)
	assert.Equal(t, "boom", gotEvents[0].Message)
	assert.Equal(t, "h1", gotEvents[0].Host)
}

func TestWriteAlerts(t *testing.T) {
	var gotPath string
	var gotEvents []AlertEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEvents))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := New(srv.URL, "", "", WithOrg("sidra"))
	err := w.WriteAlerts(context.Background(), "fallback-host", []telemetry.Alert{
		{
			Metric:    "cpu_usage",
			Value:     97.5,
			Threshold: 95.0,
			Severity:  telemetry.SeverityCritical,
			Message:   "CPU usage at 97.5%",
			Timestamp: 100,
		},
		{
			Metric:    "service_failed",
			Value:     "nginx.service",
			Severity:  telemetry.SeverityCritical,
			Host:      "h2",
			Timestamp: 100,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/sidra/alerts/_json", gotPath)
	require.Len(t, gotEvents, 2)

	assert.Equal(t, int64(100000000), gotEvents[0].Timestamp)
	assert.Equal(t, "97.5", gotEvents[0].Value)
	assert.Equal(t, "95", gotEvents[0].Threshold)
	assert.Equal(t, "critical", gotEvents[0].Severity)
	// Alert without host gets the payload host; explicit host wins.
	assert.Equal(t, "fallback-host", gotEvents[0].Host)
	assert.Equal(t, "h2", gotEvents[1].Host)

	// String value passes through; nil threshold becomes empty.
	assert.Equal(t, "nginx.service", gotEvents[1].Value)
	assert.Equal(t, "", gotEvents[1].Threshold)
}

func TestWrite_EmptyIsNoop(t *testing.T) {
	w := New("http://127.0.0.1:1", "", "")
	assert.NoError(t, w.WriteLogs(context.Background(), "h1", nil))
	assert.NoError(t, w.WriteAlerts(context.Background(), "h1", nil))
}

func TestWrite_DownstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := New(srv.URL, "", "")
	err := w.WriteLogs(context.Background(), "h1", []telemetry.LogEntry{{Message: "x"}})
	require.Error(t, err)

	var structured *cnserrors.StructuredError
	require.True(t, errors.As(err, &structured))
	assert.Equal(t, cnserrors.ErrCodeDownstreamUnavailable, structured.Code)
}

func TestMicroseconds(t *testing.T) {
	assert.Equal(t, int64(1000000), Microseconds(1))
	assert.Equal(t, int64(1500000), Microseconds(1.5))
	assert.Equal(t, int64(2000001), Microseconds(2.000001))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", stringify(nil))
	assert.Equal(t, "abc", stringify("abc"))
	assert.Equal(t, "97.5", stringify(97.5))
	assert.Equal(t, "95", stringify(95.0))
	assert.Equal(t, "3", stringify(3))
}
