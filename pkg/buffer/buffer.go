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

// Package buffer is the on-disk priority queue for batches that could not
// be delivered to the central brain. It is built on go.etcd.io/bbolt: every
// Append and Delete is an fsync'd transaction before the call returns,
// making every write durable before the caller proceeds, without
// hand-rolling a log-structured file.
//
// Blocking bbolt I/O is kept off the scheduling hot path by routing every
// operation through a single worker goroutine fed by a request channel,
// mirroring pkg/aggregator's actor shape.
package buffer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.etcd.io/bbolt"

	"github.com/sidralabs/sidra/pkg/defaults"
	"github.com/sidralabs/sidra/pkg/telemetry"
)

var (
	bucketItems = []byte("items")
	bucketMeta  = []byte("meta")
	keyNextID   = []byte("next_id")
)

// ErrClosed is returned by any call made after Close.
var ErrClosed = errors.New("buffer: closed")

// Stats summarizes the buffer's current state.
type Stats struct {
	Count     int
	SizeBytes int64
}

// Option configures a Buffer at construction time.
type Option func(*Buffer)

// WithMaxSizeBytes overrides the retention trigger threshold.
func WithMaxSizeBytes(n int64) Option {
	return func(b *Buffer) { b.maxSizeBytes = n }
}

// WithRetentionAge overrides how long an item may sit in the buffer before
// the retention sweep discards it as stale.
func WithRetentionAge(d time.Duration) Option {
	return func(b *Buffer) { b.retentionAge = d }
}

// WithClock overrides the buffer's notion of "now", for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(b *Buffer) { b.now = now }
}

// Buffer is the durable on-disk priority queue of undeliverable batches.
type Buffer struct {
	db   *bbolt.DB
	path string

	maxSizeBytes int64
	retentionAge time.Duration
	now          func() time.Time

	nextID uint64

	reqs   chan request
	stopCh chan struct{}
	doneCh chan struct{}
}

type request struct {
	fn   func() (any, error)
	resp chan response
}

type response struct {
	val any
	err error
}

// Open opens (creating if absent) the bbolt-backed buffer at path.
func Open(path string, opts ...Option) (*Buffer, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("buffer: open %q: %w", path, err)
	}

	b := &Buffer{
		db:           db,
		path:         path,
		maxSizeBytes: 100 * 1024 * 1024,
		retentionAge: defaults.BufferRetentionAge,
		now:          time.Now,
		reqs:         make(chan request),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketItems); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("buffer: init buckets: %w", err)
	}

	if err := b.loadNextID(); err != nil {
		db.Close()
		return nil, err
	}

	go b.run()
	return b, nil
}

func (b *Buffer) loadNextID() error {
	return b.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(keyNextID); v != nil {
			b.nextID = decodeUint64(v)
			return nil
		}

		// Rebuild from the highest key in items when the meta record is
		// missing.
		items := tx.Bucket(bucketItems)
		c := items.Cursor()
		k, _ := c.Last()
		if k == nil {
			b.nextID = 1
			return nil
		}
		_, _, id := decodeItemKey(k)
		b.nextID = id + 1
		return nil
	})
}

// Close stops the worker goroutine and closes the underlying database.
func (b *Buffer) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.db.Close()
}

func (b *Buffer) run() {
	defer close(b.doneCh)
	for {
		select {
		case r := <-b.reqs:
			val, err := r.fn()
			r.resp <- response{val: val, err: err}
		case <-b.stopCh:
			return
		}
	}
}

func (b *Buffer) call(ctx context.Context, fn func() (any, error)) (any, error) {
	resp := make(chan response, 1)
	select {
	case b.reqs <- request{fn: fn, resp: resp}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.stopCh:
		return nil, ErrClosed
	}

	select {
	case r := <-resp:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Append durably persists item, assigning it a monotonically increasing ID,
// and returns that ID. It triggers the retention sweep if the buffer is
// now at or over its size limit.
func (b *Buffer) Append(ctx context.Context, item telemetry.BufferedItem) (uint64, error) {
	v, err := b.call(ctx, func() (any, error) {
		id := b.nextID
		b.nextID++

		createdAt := item.CreatedAt
		if createdAt == 0 {
			createdAt = floatTimestamp(b.now())
		}
		createdAtNanos := int64(createdAt * float64(time.Second))

		item.ID = id
		item.CreatedAt = createdAt
		body, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("buffer: marshal item: %w", err)
		}

		key := encodeItemKey(byte(item.Priority), createdAtNanos, id)
		err = b.db.Update(func(tx *bbolt.Tx) error {
			if err := tx.Bucket(bucketItems).Put(key, body); err != nil {
				return err
			}
			return tx.Bucket(bucketMeta).Put(keyNextID, encodeUint64(b.nextID))
		})
		if err != nil {
			return nil, fmt.Errorf("buffer: append: %w", err)
		}

		if err := b.enforceRetentionLocked(); err != nil {
			return nil, err
		}

		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

// PeekBatch returns up to limit items in (priority asc, created_at asc, id
// asc) order without removing them.
func (b *Buffer) PeekBatch(ctx context.Context, limit int) ([]telemetry.BufferedItem, error) {
	v, err := b.call(ctx, func() (any, error) {
		var items []telemetry.BufferedItem
		err := b.db.View(func(tx *bbolt.Tx) error {
			c := tx.Bucket(bucketItems).Cursor()
			for k, v := c.First(); k != nil && len(items) < limit; k, v = c.Next() {
				var item telemetry.BufferedItem
				if err := json.Unmarshal(v, &item); err != nil {
					return fmt.Errorf("buffer: unmarshal item: %w", err)
				}
				items = append(items, item)
			}
			return nil
		})
		return items, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]telemetry.BufferedItem), nil
}

// Delete removes the given item IDs durably.
func (b *Buffer) Delete(ctx context.Context, ids []uint64) error {
	_, err := b.call(ctx, func() (any, error) {
		return nil, b.deleteIDsLocked(ids)
	})
	return err
}

func (b *Buffer) deleteIDsLocked(ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketItems)
		c := bucket.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			_, _, id := decodeItemKey(k)
			if _, ok := want[id]; ok {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}
		for _, k := range toDelete {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkRetry increments the retry_count of item id and sets its last_retry
// to the current time, leaving it in place (it keeps its original position since priority and
// created_at are unchanged).
func (b *Buffer) MarkRetry(ctx context.Context, id uint64) error {
	_, err := b.call(ctx, func() (any, error) {
		return nil, b.db.Update(func(tx *bbolt.Tx) error {
			bucket := tx.Bucket(bucketItems)
			c := bucket.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				_, _, kid := decodeItemKey(k)
				if kid != id {
					continue
				}
				var item telemetry.BufferedItem
				if err := json.Unmarshal(v, &item); err != nil {
					return fmt.Errorf("buffer: unmarshal item: %w", err)
				}
				item.RetryCount++
				item.LastRetry = floatTimestamp(b.now())
				body, err := json.Marshal(item)
				if err != nil {
					return fmt.Errorf("buffer: marshal item: %w", err)
				}
				return bucket.Put(k, body)
			}
			return nil
		})
	})
	return err
}

// Count returns the number of items currently buffered.
func (b *Buffer) Count(ctx context.Context) (int, error) {
	v, err := b.call(ctx, func() (any, error) {
		return b.countLocked()
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (b *Buffer) countLocked() (int, error) {
	var n int
	err := b.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketItems).Stats().KeyN
		return nil
	})
	return n, err
}

// SizeBytes returns the on-disk size of the buffer file.
func (b *Buffer) SizeBytes(ctx context.Context) (int64, error) {
	v, err := b.call(ctx, func() (any, error) {
		return b.sizeBytesLocked()
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (b *Buffer) sizeBytesLocked() (int64, error) {
	info, err := os.Stat(b.path)
	if err != nil {
		return 0, fmt.Errorf("buffer: stat %q: %w", b.path, err)
	}
	return info.Size(), nil
}

// Stats returns a combined count + size snapshot.
func (b *Buffer) Stats(ctx context.Context) (Stats, error) {
	v, err := b.call(ctx, func() (any, error) {
		n, err := b.countLocked()
		if err != nil {
			return nil, err
		}
		size, err := b.sizeBytesLocked()
		if err != nil {
			return nil, err
		}
		return Stats{Count: n, SizeBytes: size}, nil
	})
	if err != nil {
		return Stats{}, err
	}
	return v.(Stats), nil
}

// Vacuum runs the same retention pass that Append runs after each insert:
// while the file is under its size budget it does nothing; otherwise it
// deletes stale items and then, if still over, low-priority items. It does
// not compact the backing file.
func (b *Buffer) Vacuum(ctx context.Context) error {
	_, err := b.call(ctx, func() (any, error) {
		return nil, b.enforceRetentionLocked()
	})
	return err
}

// enforceRetentionLocked applies the retention policy: first delete items
// older than retentionAge; if still over the size limit, delete up to
// 1,000 lowest-priority (priority >= NORMAL) items oldest-first.
func (b *Buffer) enforceRetentionLocked() error {
	size, err := b.sizeBytesLocked()
	if err != nil {
		return err
	}
	if size < b.maxSizeBytes {
		return nil
	}

	cutoff := floatTimestamp(b.now().Add(-b.retentionAge))
	var stale []uint64
	err = b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketItems).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var item telemetry.BufferedItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("buffer: unmarshal item: %w", err)
			}
			if item.CreatedAt < cutoff {
				stale = append(stale, item.ID)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(stale) > 0 {
		if err := b.deleteIDsLocked(stale); err != nil {
			return err
		}
	}

	size, err = b.sizeBytesLocked()
	if err != nil {
		return err
	}
	if size < b.maxSizeBytes {
		return nil
	}

	const bulkDeleteLimit = 1000
	var lowPriority []uint64
	err = b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketItems).Cursor()
		for k, v := c.First(); k != nil && len(lowPriority) < bulkDeleteLimit; k, v = c.Next() {
			priority, _, _ := decodeItemKey(k)
			if telemetry.Priority(priority) < telemetry.PriorityNormal {
				continue
			}
			var item telemetry.BufferedItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("buffer: unmarshal item: %w", err)
			}
			lowPriority = append(lowPriority, item.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(lowPriority) == 0 {
		return nil
	}
	return b.deleteIDsLocked(lowPriority)
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}

func decodeUint64(buf []byte) uint64 {
	var v uint64
	for _, b := range buf {
		v = v<<8 | uint64(b)
	}
	return v
}

func floatTimestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
