// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

const (
	// App is the process name surfaced in build info and admin endpoints.
	App = "dualproto"

	// Version is the module version string. GetBuildInfo does not read it:
	// it reports buildVersion, which is set with -ldflags.
	Version = "v0.0.1"

	// ReadWriteBlockSize is a default bufio.Reader/Writer size, large
	// enough to absorb a full TCP segment in one socket read. The HTTP/1
	// and HTTP/2 connection paths do not reference it; they size their
	// buffers with their own 4096 literals.
	ReadWriteBlockSize = 4096
)
