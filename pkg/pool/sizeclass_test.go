// Copyright 2024 The arcbuf Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeCapacity(t *testing.T) {
	cases := []struct {
		size, alignment, want int
	}{
		{1, 0, 16},
		{15, 0, 16},
		{16, 0, 16},
		{17, 0, 32},
		{496, 0, 496},
		{500, 0, 512},
		{511, 0, 512},
		{512, 0, 512},
		{513, 0, 1024},
		{4096, 0, 4096},
		{4097, 0, 8192},
		{10, 64, 64},
		{100, 64, 128},
	}
	for _, c := range cases {
		require.Equal(t, c.want, normalizeCapacity(c.size, c.alignment),
			"size=%d alignment=%d", c.size, c.alignment)
	}
}

func TestTinyClassification(t *testing.T) {
	require.True(t, isTiny(16))
	require.True(t, isTiny(511))
	require.False(t, isTiny(512))

	require.Equal(t, 1, tinyIdx(16))
	require.Equal(t, 2, tinyIdx(32))
	require.Equal(t, numTinyPools-1, tinyIdx(496))
}

func TestSmallClassification(t *testing.T) {
	require.Equal(t, 0, smallIdx(512))
	require.Equal(t, 1, smallIdx(1024))
	require.Equal(t, 3, smallIdx(4096))

	// 8K pages leave four sub-page power-of-two classes
	require.Equal(t, 4, numSmallPools(pageShiftsOf(8192)))
	require.Equal(t, 3, numSmallPools(pageShiftsOf(4096)))
}

func TestLog2(t *testing.T) {
	require.Equal(t, 9, log2(512))
	require.Equal(t, 12, log2(4096))
	require.Equal(t, 13, pageShiftsOf(8192))
}
