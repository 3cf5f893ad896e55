// Copyright 2021 PairMesh, Inc.
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

package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCatalog(t *testing.T) {
	a := assert.New(t)

	c, err := parseCatalog("xx", []byte("a:\n  b: hello %s\n  c: world\n"))
	a.Nil(err)
	a.Equal("hello %s", c.messages["a.b"])
	a.Equal("world", c.messages["a.c"])

	_, err = parseCatalog("xx", []byte("a:\n  b: [1, 2]\n"))
	a.NotNil(err)
	_, err = parseCatalog("xx", []byte("a: b: c"))
	a.NotNil(err)
}
