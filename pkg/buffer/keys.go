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

package buffer

import "encoding/binary"

// itemKeyLen is priority(1) + created_at_nanos(8) + id(8).
const itemKeyLen = 1 + 8 + 8

// encodeItemKey packs (priority, created_at_nanos, id) into a 17-byte key so
// that bbolt's natural byte-order key iteration produces exactly
// (priority asc, created_at asc, id asc), the order flushes drain in.
// The id suffix breaks ties between items created in the same nanosecond,
// keeping iteration deterministic.
func encodeItemKey(priority byte, createdAtNanos int64, id uint64) []byte {
	key := make([]byte, itemKeyLen)
	key[0] = priority
	binary.BigEndian.PutUint64(key[1:9], uint64(createdAtNanos))
	binary.BigEndian.PutUint64(key[9:17], id)
	return key
}

func decodeItemKey(key []byte) (priority byte, createdAtNanos int64, id uint64) {
	priority = key[0]
	createdAtNanos = int64(binary.BigEndian.Uint64(key[1:9]))
	id = binary.BigEndian.Uint64(key[9:17])
	return
}
