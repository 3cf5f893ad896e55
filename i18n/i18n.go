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

// Package i18n holds the localized messages shown for hub states and
// failures.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/jeremywohl/flatten"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const defaultLocale = "en_US"

//go:embed locales/*.yaml
var files embed.FS

// catalog maps dotted keys to format strings.
type catalog struct {
	name     string
	messages map[string]string
}

var (
	catalogs = map[string]*catalog{}
	current  atomic.Value // *catalog
)

func init() {
	entries, err := files.ReadDir("locales")
	if err != nil {
		panic(err)
	}
	for _, e := range entries {
		data, err := files.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			panic(err)
		}
		c, err := parseCatalog(strings.TrimSuffix(e.Name(), ".yaml"), data)
		if err != nil {
			panic(err)
		}
		catalogs[c.name] = c
	}

	if err := SetLocale(defaultLocale); err != nil {
		panic(err)
	}
}

// parseCatalog flattens a nested yaml document into dotted keys. Every
// leaf must be a string.
func parseCatalog(name string, data []byte) (*catalog, error) {
	tree := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, errors.WithMessagef(err, "parse locale %s", name)
	}
	flat, err := flatten.Flatten(tree, "", flatten.DotStyle)
	if err != nil {
		return nil, err
	}

	c := &catalog{name: name, messages: make(map[string]string, len(flat))}
	for k, v := range flat {
		s, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("locale %s: value of %s is not a string", name, k)
		}
		c.messages[k] = s
	}
	return c, nil
}

// Locales returns the sorted names of the embedded locales.
func Locales() []string {
	names := make([]string, 0, len(catalogs))
	for name := range catalogs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetLocale switches the current locale.
func SetLocale(name string) error {
	c, found := catalogs[name]
	if !found {
		return errors.Errorf("locale %s not found", name)
	}
	current.Store(c)
	return nil
}

// Current returns the name of the current locale.
func Current() string {
	return current.Load().(*catalog).name
}

// L formats the message of key in the current locale. Keys missing from
// the current locale fall back to the default one.
func L(key string, args ...interface{}) string {
	c := current.Load().(*catalog)
	msg, found := c.messages[key]
	if !found {
		msg, found = catalogs[defaultLocale].messages[key]
	}
	if !found {
		return fmt.Sprintf("%s:NOT_DEFINE(%s)", c.name, key)
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}
