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

package column

import (
	"fmt"
	"testing"
)

func checkRowsEqual(t *testing.T, got, want rows) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d rows, want %d", len(got), len(want))
	}
	for i := range want {
		if string(got[i]) != string(want[i]) {
			t.Errorf("row %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSelectCompressionConstant(t *testing.T) {
	rs := rows{[]byte("x"), []byte("x"), []byte("x")}
	kind, buf := SelectCompression(rs)
	if kind != CompressionConstant {
		t.Fatalf("kind = %s, want CONSTANT", kind)
	}
	got, err := DecodeRows(kind, buf, len(rs))
	if err != nil {
		t.Fatalf("DecodeRows: %v", err)
	}
	checkRowsEqual(t, got, rs)
}

func TestSelectCompressionDictionary(t *testing.T) {
	rs := rows{[]byte("a"), []byte("b"), []byte("a"), []byte("c"), []byte("b"), []byte("a")}
	kind, buf := SelectCompression(rs)
	if kind != CompressionDictionary && kind != CompressionRLE {
		t.Fatalf("kind = %s, want DICTIONARY or RLE", kind)
	}
	got, err := DecodeRows(kind, buf, len(rs))
	if err != nil {
		t.Fatalf("DecodeRows: %v", err)
	}
	checkRowsEqual(t, got, rs)
}

func TestEncodeDecodeZstdRoundTrip(t *testing.T) {
	rs := make(rows, 0, 200)
	for i := 0; i < 200; i++ {
		rs = append(rs, []byte(fmt.Sprintf("blob-value-number-%d-padding-padding", i)))
	}
	uncompressed := EncodeUncompressed(rs)
	buf := EncodeZstd(uncompressed)
	got, err := DecodeZstd(buf, len(rs))
	if err != nil {
		t.Fatalf("DecodeZstd: %v", err)
	}
	checkRowsEqual(t, got, rs)
}

// TestSelectCompressionPastDictionaryCap exercises the fallback path
// itself: once a segment holds more distinct values than
// maxDictionaryCardinality allows, SelectCompression must skip
// DICTIONARY (whose index table would dominate the encoding) and pick
// ZSTD instead of leaving the segment UNCOMPRESSED.
func TestSelectCompressionPastDictionaryCap(t *testing.T) {
	n := maxDictionaryCardinality + 1
	rs := make(rows, n)
	for i := range rs {
		rs[i] = []byte(fmt.Sprintf("row-%d", i))
	}
	kind, buf := SelectCompression(rs)
	if kind != CompressionZstd {
		t.Fatalf("kind = %s, want ZSTD", kind)
	}
	got, err := DecodeRows(kind, buf, len(rs))
	if err != nil {
		t.Fatalf("DecodeRows: %v", err)
	}
	checkRowsEqual(t, got, rs)
}
