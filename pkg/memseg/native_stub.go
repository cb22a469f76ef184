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

//go:build !unix

package memseg

// NativeName is the registry key of the natively mapped manager.
const NativeName = "native"

type nativeManager struct {
	heapManager
}

var native = &nativeManager{}

// NativeManager returns the native manager.  On platforms without an
// mmap path it degrades to heap regions while keeping the native name,
// so allocator wiring stays portable.
func NativeManager() Manager {
	return native
}

func (n *nativeManager) Name() string {
	return NativeName
}

func init() {
	if err := Register(native); err != nil {
		panic(err)
	}
}
