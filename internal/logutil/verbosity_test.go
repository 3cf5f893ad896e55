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

package logutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParse(t *testing.T) {
	a := assert.New(t)
	saved := verbose.Load()
	defer verbose.Store(saved)

	verbose.Store(0)
	a.Equal(zapcore.InfoLevel, Level())

	Parse("Hub, pairs")
	a.True(IsEnableHub())
	a.True(IsEnablePairs())
	a.False(IsEnableAuth())
	a.False(IsEnableTransport())
	a.Equal(zapcore.DebugLevel, Level())

	verbose.Store(0)
	Parse("all")
	a.True(IsEnableAuth())
	a.True(IsEnableTransport())

	verbose.Store(0)
	Parse("bogus, auth")
	a.True(IsEnableAuth())
	a.False(IsEnableHub())
}
