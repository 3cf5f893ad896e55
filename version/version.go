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
	"fmt"
	"runtime"

	"github.com/coreos/go-semver/semver"
)

// ProtocolVersion is bumped whenever there's a wire-incompatible change
// between the client and the hub.
const ProtocolVersion int32 = 32

// Set by the linker.
var (
	Release   = "0.9.0"
	GitHash   = "Unknown"
	GitBranch = "Unknown"
)

// Version is the build version of pairsync.
type Version struct {
	sem       semver.Version
	gitBranch string
	gitHash   string
}

// NewVersion returns the version of the running binary. An unparsable
// release string yields 0.0.0.
func NewVersion() *Version {
	v := &Version{gitBranch: GitBranch, gitHash: GitHash}
	if sem, err := semver.NewVersion(Release); err == nil {
		v.sem = *sem
	}
	return v
}

// SemVer returns the release without pre-release or build metadata.
func (v *Version) SemVer() string {
	return fmt.Sprintf("%d.%d.%d", v.sem.Major, v.sem.Minor, v.sem.Patch)
}

func (v *Version) String() string {
	return v.sem.String()
}

// FullInfo describes the build, shown by --version.
func (v *Version) FullInfo() string {
	return fmt.Sprintf("%s (%s/%s) %s, protocol %d", v, v.gitBranch, v.gitHash, runtime.Version(), ProtocolVersion)
}

// OlderThan reports whether the running client is older than the version
// advertised by a hub. Unparsable versions are never considered newer.
func (v *Version) OlderThan(advertised string) bool {
	if advertised == "" {
		return false
	}
	remote, err := semver.NewVersion(advertised)
	if err != nil {
		return false
	}
	return v.sem.LessThan(*remote)
}
