// Copyright 2025 Vectral Systems
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


package search

// Monitor receives callbacks at each phase of a search, so callers can
// explain where results came from. All methods may be called concurrently
// with other searches; implementations must be thread-safe.
type Monitor interface {
	// Start is called when a search begins.
	Start(query string)
	// AfterSemanticSearch reports how many raw similarity matches were found.
	AfterSemanticSearch(matches int)
	// FoundIdentifier reports a normative identifier recognized in the query.
	FoundIdentifier(id string)
	// Finish reports the final result count.
	Finish(results int)
}

type noopMonitor struct{}

func (noopMonitor) Start(string) {}

func (noopMonitor) AfterSemanticSearch(int) {}

func (noopMonitor) FoundIdentifier(string) {}

func (noopMonitor) Finish(int) {}
