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

package i18n_test

import (
	"testing"

	"github.com/pairmesh/pairsync/i18n"
	"github.com/stretchr/testify/assert"
)

func TestL(t *testing.T) {
	a := assert.New(t)
	a.Equal([]string{"en_US", "zh_CN"}, i18n.Locales())
	a.Equal("en_US", i18n.Current())
	a.Equal("Connected", i18n.L("state.connected"))
	a.Equal("The server speaks protocol 31 but this client speaks 32", i18n.L("hub.version_mismatch", 31, 32))

	err := i18n.SetLocale("zh_CN")
	a.Nil(err)
	defer i18n.SetLocale("en_US")

	a.Equal("已连接", i18n.L("state.connected"))
	a.Equal("zh_CN:NOT_DEFINE(missing.key)", i18n.L("missing.key"))
	a.NotNil(i18n.SetLocale("fr_FR"))
	a.Equal("zh_CN", i18n.Current())
}
