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

package sender

import (
	"time"

	"github.com/sidralabs/sidra/pkg/defaults"
)

// Attempt is the observable outcome of a single HTTP send.
type Attempt struct {
	// StatusCode is the HTTP status, or 0 when the request never completed.
	StatusCode int
	// Err is the transport error (connect, timeout), if any.
	Err error
	// RetryAfter is the parsed Retry-After duration of a 429 response; zero
	// when absent.
	RetryAfter time.Duration
}

// Action is what the send loop does next.
type Action int

const (
	// ActionOK ends the chain successfully.
	ActionOK Action = iota
	// ActionRetry sleeps Decision.Delay and tries again.
	ActionRetry
	// ActionBuffer ends the chain; the payload goes to the durable buffer.
	ActionBuffer
	// ActionFail ends the chain; the payload is poison and is NOT buffered.
	ActionFail
)

// Decision is the verdict for one attempt.
type Decision struct {
	Action Action
	Delay  time.Duration
}

// Decide is the pure retry policy the sender drives:
//
//   - 2xx: ok.
//   - 4xx other than 429: terminal failure; the payload is bad, do not
//     retry or buffer it.
//   - 429: wait for Retry-After (default 60s) and retry; consumes an attempt.
//   - 5xx, transport error, timeout: retry with exponential backoff
//     (baseDelay * 2^attempt).
//   - Retryable outcome on the final attempt: buffer.
//
// attempt is zero-based; maxAttempts bounds the chain (retry_count + 1).
func Decide(attempt, maxAttempts int, a Attempt, baseDelay time.Duration) Decision {
	if a.Err == nil && a.StatusCode >= 200 && a.StatusCode < 300 {
		return Decision{Action: ActionOK}
	}

	if a.Err == nil && a.StatusCode >= 400 && a.StatusCode < 500 && a.StatusCode != 429 {
		return Decision{Action: ActionFail}
	}

	if attempt >= maxAttempts-1 {
		return Decision{Action: ActionBuffer}
	}

	if a.StatusCode == 429 {
		delay := a.RetryAfter
		if delay <= 0 {
			delay = defaults.DefaultRateLimitRetryAfter
		}
		return Decision{Action: ActionRetry, Delay: delay}
	}

	return Decision{Action: ActionRetry, Delay: baseDelay << attempt}
}
