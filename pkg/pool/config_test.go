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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcbuf/arcbuf/pkg/common/aberr"
	"github.com/arcbuf/arcbuf/pkg/memseg"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	require.Equal(t, memseg.HeapName, c.Manager)
	require.Equal(t, 8192, c.PageSize)
	require.Equal(t, 9, c.MaxOrder)
	require.Equal(t, 4*1024*1024, c.chunkSize())
}

func TestConfigValidate(t *testing.T) {
	c := DefaultConfig()
	c.Manager = "no-such-manager"
	require.True(t, aberr.IsCode(c.Validate(), aberr.ErrBadConfig))

	c = DefaultConfig()
	c.PageSize = 1024
	require.True(t, aberr.IsCode(c.Validate(), aberr.ErrBadConfig))

	c = DefaultConfig()
	c.PageSize = 8000
	require.True(t, aberr.IsCode(c.Validate(), aberr.ErrBadConfig))

	c = DefaultConfig()
	c.MaxOrder = 15
	require.True(t, aberr.IsCode(c.Validate(), aberr.ErrBadConfig))

	c = DefaultConfig()
	c.NumArenas = -1
	require.True(t, aberr.IsCode(c.Validate(), aberr.ErrBadConfig))

	c = DefaultConfig()
	c.Alignment = 48
	require.True(t, aberr.IsCode(c.Validate(), aberr.ErrBadConfig))

	// alignment only makes sense off-heap
	c = DefaultConfig()
	c.Alignment = 64
	require.True(t, aberr.IsCode(c.Validate(), aberr.ErrBadConfig))
	c.Manager = memseg.NativeName
	if memseg.NativeManager().Native() {
		require.NoError(t, c.Validate())
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.toml")
	content := `
manager = "heap"
num-arenas = 2
page-size = 4096
max-order = 4
small-cache-size = 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "heap", c.Manager)
	require.Equal(t, 2, c.NumArenas)
	require.Equal(t, 4096, c.PageSize)
	require.Equal(t, 4, c.MaxOrder)
	require.Equal(t, 8, c.SmallCacheSize)
	// absent keys fall back to defaults
	require.Equal(t, 64, c.NormalCacheSize)

	_, err = LoadConfig(filepath.Join(dir, "missing.toml"))
	require.True(t, aberr.IsCode(err, aberr.ErrBadConfig))

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte(`page-size = 1000`), 0o644))
	_, err = LoadConfig(bad)
	require.True(t, aberr.IsCode(err, aberr.ErrBadConfig))
}
