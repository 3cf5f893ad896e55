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

package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOlderThan(t *testing.T) {
	a := assert.New(t)

	defer func(r string) { Release = r }(Release)
	Release = "1.2.3"

	v := NewVersion()
	a.Equal("1.2.3", v.SemVer())
	a.True(v.OlderThan("1.3.0"))
	a.True(v.OlderThan("2.0.0"))
	a.False(v.OlderThan("1.2.3"))
	a.False(v.OlderThan("1.0.0"))
	a.False(v.OlderThan(""))
	a.False(v.OlderThan("not-a-version"))
	a.True(strings.Contains(v.FullInfo(), "protocol 32"))

	Release = "garbage"
	a.Equal("0.0.0", NewVersion().SemVer())
}
