// Copyright (C) 2024 The obx Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package wal

import (
	"encoding/binary"

	"github.com/obxdb/obx/compr"
	"github.com/obxdb/obx/obxerr"
)

// Frame compression tags: the byte stored immediately ahead of
// encodePayload's uvarint-encoded record fields, inside the CRC32-covered
// payload. Compression is a per-writer, config-wide choice
// (obxconfig.Config.WAL.Compress), but the tag lets a reader replay a WAL
// directory containing a mix of compressed and uncompressed files (e.g.
// after the setting was flipped) without any separate side channel.
const (
	framePlain byte = 0
	frameS2    byte = 1
)

// encodeFramePayload wraps logical (encodePayload's output) with a
// one-byte compression tag, s2-compressing it when compress is set.
// Grounded on checkpoint/pipeline.go's table-descriptor s2 framing: a
// uvarint length prefix ahead of the s2 stream satisfies compr's
// pre-sized-destination Decompress contract, the same pattern
// storage/column's EncodeZstd/DecodeZstd use for segment compression.
func encodeFramePayload(logical []byte, compress bool) []byte {
	if !compress {
		return append([]byte{framePlain}, logical...)
	}
	hdr := make([]byte, 1, 1+binary.MaxVarintLen64)
	hdr[0] = frameS2
	hdr = binary.AppendUvarint(hdr, uint64(len(logical)))
	return compr.Compression("s2").Compress(logical, hdr)
}

// decodeFramePayload is the inverse of encodeFramePayload, recovering the
// bytes encodePayload produced so decodePayload can parse them. Called
// only after the caller's CRC32 check on the stored (possibly compressed)
// bytes has already passed.
func decodeFramePayload(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, obxerr.Corrupted("wal: empty frame payload")
	}
	tag, body := stored[0], stored[1:]
	switch tag {
	case framePlain:
		return body, nil
	case frameS2:
		n, sz := binary.Uvarint(body)
		if sz <= 0 {
			return nil, obxerr.Corrupted("wal: truncated s2 frame header")
		}
		dst := make([]byte, n)
		if err := compr.Decompression("s2").Decompress(body[sz:], dst); err != nil {
			return nil, obxerr.Corrupted("wal: decompressing s2 frame: %v", err)
		}
		return dst, nil
	default:
		return nil, obxerr.Corrupted("wal: unknown frame compression tag %d", tag)
	}
}
