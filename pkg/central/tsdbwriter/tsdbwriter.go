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

// Package tsdbwriter pushes metrics into the downstream time-series store
// using its Prometheus-text import endpoint and proxies PromQL queries back
// out. The store is order-insensitive: every line carries an explicit
// millisecond timestamp.
package tsdbwriter

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	cnserrors "github.com/sidralabs/sidra/pkg/errors"
	"github.com/sidralabs/sidra/pkg/serializer"
	"github.com/sidralabs/sidra/pkg/telemetry"
)

const importPath = "/api/v1/import/prometheus"

// Option configures a Writer.
type Option func(*Writer)

// WithClient overrides the HTTP client (tests).
func WithClient(c *http.Client) Option {
	return func(w *Writer) { w.client = c }
}

// Writer sends metrics to the TSDB.
type Writer struct {
	baseURL string
	client  *http.Client
}

// New creates a Writer for the TSDB at baseURL.
func New(baseURL string, opts ...Option) *Writer {
	w := &Writer{
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.client == nil {
		w.client = serializer.NewHttpReader().Client
	}
	return w
}

// Write imports metrics, stamping the host label on any metric whose labels
// lack one. An empty slice is a no-op.
func (w *Writer) Write(ctx context.Context, host string, metrics []telemetry.MetricPoint) error {
	if len(metrics) == 0 {
		return nil
	}

	body := EncodeMetrics(host, metrics)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+importPath, strings.NewReader(body))
	if err != nil {
		return cnserrors.Wrap(cnserrors.ErrCodeInternal, "build tsdb request", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := w.client.Do(req)
	if err != nil {
		return cnserrors.Wrap(cnserrors.ErrCodeDownstreamUnavailable, "tsdb write", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return cnserrors.NewWithContext(cnserrors.ErrCodeDownstreamUnavailable,
			fmt.Sprintf("tsdb write returned %s", resp.Status),
			map[string]any{"status": resp.StatusCode})
	}
	return nil
}

// Query proxies a PromQL expression and returns the raw response body.
func (w *Writer) Query(ctx context.Context, expr string) ([]byte, error) {
	u := w.baseURL + "/api/v1/query?query=" + url.QueryEscape(expr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, cnserrors.Wrap(cnserrors.ErrCodeInternal, "build tsdb query", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, cnserrors.Wrap(cnserrors.ErrCodeDownstreamUnavailable, "tsdb query", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, cnserrors.Wrap(cnserrors.ErrCodeDownstreamUnavailable, "read tsdb response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, cnserrors.NewWithContext(cnserrors.ErrCodeDownstreamUnavailable,
			fmt.Sprintf("tsdb query returned %s", resp.Status),
			map[string]any{"status": resp.StatusCode})
	}
	return body, nil
}

// EncodeMetrics renders metrics in the Prometheus text import format, one
// line per metric: name{k="v",...} value timestamp_ms. Metrics lacking a
// host label get one stamped from host.
func EncodeMetrics(host string, metrics []telemetry.MetricPoint) string {
	var b strings.Builder
	for _, m := range metrics {
		labels := m.Labels
		if host != "" {
			if _, has := labels["host"]; !has {
				stamped := make(map[string]string, len(labels)+1)
				for k, v := range labels {
					stamped[k] = v
				}
				stamped["host"] = host
				labels = stamped
			}
		}
		b.WriteString(EncodeLine(m.Name, labels, m.Value, m.Timestamp))
		b.WriteByte('\n')
	}
	return b.String()
}

// EncodeLine renders a single import line. Labels are emitted in sorted
// order so output is deterministic; an empty label set produces the
// braceless form.
func EncodeLine(name string, labels map[string]string, value, timestamp float64) string {
	var b strings.Builder
	b.WriteString(name)

	if len(labels) > 0 {
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteString(`="`)
			b.WriteString(escapeLabelValue(labels[k]))
			b.WriteByte('"')
		}
		b.WriteByte('}')
	}

	b.WriteByte(' ')
	b.WriteString(strconv.FormatFloat(value, 'g', -1, 64))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(int64(math.Round(timestamp*1000)), 10))
	return b.String()
}

// escapeLabelValue backslash-escapes quotes and backslashes and strips
// newlines, which the text format cannot carry.
func escapeLabelValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	v = strings.ReplaceAll(v, "\n", " ")
	return v
}
