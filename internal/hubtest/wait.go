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

package hubtest

import "time"

// WaitTime is the time threshold of WaitFor
const WaitTime = 5 * time.Second

// WaitFor polls f until it returns true or WaitTime elapsed.
func WaitFor(f func() bool) bool {
	start := time.Now()
	for {
		if f() {
			return true
		}
		if time.Since(start) > WaitTime {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}
