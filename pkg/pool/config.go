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
	"runtime"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/arcbuf/arcbuf/pkg/common/aberr"
	"github.com/arcbuf/arcbuf/pkg/memseg"
)

// Config tunes the pooled allocator.  The zero value is usable after
// Adjust fills in the defaults.
type Config struct {
	// Manager names the memory manager backing the chunks, "heap" or
	// "native".
	Manager string `toml:"manager"`
	// NumArenas caps lock contention; shard caches attach to the arena
	// with the fewest users.
	NumArenas int `toml:"num-arenas"`
	// PageSize is the buddy leaf size, a power of two of at least 4K.
	PageSize int `toml:"page-size"`
	// MaxOrder is the buddy tree depth; chunk size is PageSize << MaxOrder.
	MaxOrder int `toml:"max-order"`
	// SmallCacheSize bounds each per-shard ring for sub-page classes.
	SmallCacheSize int `toml:"small-cache-size"`
	// NormalCacheSize bounds each per-shard ring for whole-page runs.
	NormalCacheSize int `toml:"normal-cache-size"`
	// MaxCachedBufferCapacity is the largest region kept in shard
	// rings; bigger regions always return to their arena.
	MaxCachedBufferCapacity int `toml:"max-cached-buffer-capacity"`
	// CacheTrimInterval trims a shard's rings after this many cache hits
	// and parked frees; cache misses are not counted.
	CacheTrimInterval int `toml:"cache-trim-interval"`
	// CacheTrimIntervalMillis additionally trims on a timer when > 0.
	CacheTrimIntervalMillis int `toml:"cache-trim-interval-millis"`
	// Alignment aligns native regions to this power of two, 0 for none.
	Alignment int `toml:"alignment"`
}

// DefaultConfig mirrors a 4 MiB chunk layout: 8 KiB pages, nine buddy
// levels.
func DefaultConfig() Config {
	c := Config{}
	c.Adjust()
	return c
}

// Adjust fills unset fields with their defaults.
func (c *Config) Adjust() {
	if c.Manager == "" {
		c.Manager = memseg.HeapName
	}
	if c.NumArenas == 0 {
		c.NumArenas = runtime.GOMAXPROCS(0) * 2
	}
	if c.PageSize == 0 {
		c.PageSize = 8192
	}
	if c.MaxOrder == 0 {
		c.MaxOrder = 9
	}
	if c.SmallCacheSize == 0 {
		c.SmallCacheSize = 256
	}
	if c.NormalCacheSize == 0 {
		c.NormalCacheSize = 64
	}
	if c.MaxCachedBufferCapacity == 0 {
		c.MaxCachedBufferCapacity = 32 * 1024
	}
	if c.CacheTrimInterval == 0 {
		c.CacheTrimInterval = 8192
	}
}

// Validate rejects layouts the buddy tree cannot represent.
func (c *Config) Validate() error {
	if _, ok := memseg.Get(c.Manager); !ok {
		return aberr.NewBadConfig("unknown memory manager %q", c.Manager)
	}
	if c.NumArenas < 1 {
		return aberr.NewBadConfig("num-arenas %d must be positive", c.NumArenas)
	}
	if c.PageSize < 4096 || c.PageSize&(c.PageSize-1) != 0 {
		return aberr.NewBadConfig("page-size %d must be a power of two of at least 4096", c.PageSize)
	}
	if c.MaxOrder < 0 || c.MaxOrder > 14 {
		return aberr.NewBadConfig("max-order %d out of range [0, 14]", c.MaxOrder)
	}
	if chunk := c.PageSize << c.MaxOrder; chunk > memseg.MaxCapacity/2 {
		return aberr.NewBadConfig("chunk size %d too large", chunk)
	}
	if c.SmallCacheSize < 0 || c.NormalCacheSize < 0 {
		return aberr.NewBadConfig("cache sizes must not be negative")
	}
	if c.Alignment != 0 {
		if c.Alignment < 0 || c.Alignment&(c.Alignment-1) != 0 {
			return aberr.NewBadConfig("alignment %d must be a power of two", c.Alignment)
		}
		if mgr, ok := memseg.Get(c.Manager); ok && !mgr.Native() {
			return aberr.NewBadConfig("alignment requires a native memory manager")
		}
	}
	return nil
}

// LoadConfig reads a TOML file and fills defaults for absent keys.
func LoadConfig(path string) (Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, aberr.NewBadConfig("cannot parse %s: %s", path, err.Error())
	}
	c.Adjust()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) chunkSize() int {
	return c.PageSize << c.MaxOrder
}

func (c *Config) trimInterval() time.Duration {
	return time.Duration(c.CacheTrimIntervalMillis) * time.Millisecond
}
