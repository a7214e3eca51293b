/*
Copyright 2025 The fleetform contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package version

// These variables get fed by ldflags during compilation.
var (
	// gitHash is the git commit hash of the currently executing binary.
	gitHash string

	// tag is the release tag the binary was built from, if any.
	tag string
)

type Versions struct {
	Commit string
	Tag    string
}

func NewDefaultVersions() Versions {
	return Versions{
		Commit: gitHash,
		Tag:    tag,
	}
}

func NewFakeVersions() Versions {
	return Versions{
		Commit: "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
		Tag:    "v0.0.0-test",
	}
}

func (v Versions) String() string {
	if v.Tag != "" {
		return v.Tag
	}
	if v.Commit != "" {
		return v.Commit
	}

	return "dev"
}
