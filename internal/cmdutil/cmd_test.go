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

package cmdutil

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestExamples(t *testing.T) {
	a := assert.New(t)
	color.NoColor = true

	out := Examples{
		{Example: "pairsync -c a.yaml", Comment: "first"},
		{Example: "pairsync --version", Comment: "second"},
	}.String()
	lines := strings.Split(out, "\n")
	a.Len(lines, 2)
	a.Equal(strings.Index(lines[0], "#"), strings.Index(lines[1], "#"))
	a.True(strings.HasSuffix(lines[1], "# second"))
	a.Equal("", Examples{}.String())
}
