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


package quality

import "fmt"

// Verdict is the quality gate decision for one document.
type Verdict uint8

const (
	// VerdictAccept lets the document continue unremarked.
	VerdictAccept Verdict = iota + 1
	// VerdictFlag lets the document continue but surfaces it in reporting.
	VerdictFlag
	// VerdictReject fails the document at the quality stage.
	VerdictReject
)

var verdictNames = map[Verdict]string{
	VerdictAccept: "accept",
	VerdictFlag:   "flag",
	VerdictReject: "reject",
}

func (v Verdict) String() string {
	if name, ok := verdictNames[v]; ok {
		return name
	}
	return fmt.Sprintf("verdict(%d)", uint8(v))
}

// Default tuning. The exact formula and thresholds are deployment
// configuration, not fixed behavior.
const (
	DefaultAcceptThreshold = 0.65
	DefaultRejectThreshold = 0.30

	// referenceNodeCount is the structural richness at which the node-count
	// component of the score saturates.
	referenceNodeCount = 20
	// referenceDensity is the technical-term density at which the density
	// component saturates.
	referenceDensity = 0.15
)

// Controller computes a per-document confidence score and gates on it.
type Controller struct {
	acceptThreshold float64
	rejectThreshold float64
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller) error

// WithThresholds sets the accept and reject score thresholds. Scores at or
// above accept pass, below reject fail, between the two are flagged.
func WithThresholds(accept, reject float64) ControllerOption {
	return func(c *Controller) error {
		if accept < 0 || accept > 1 || reject < 0 || reject > 1 {
			return fmt.Errorf("thresholds must be within [0,1]")
		}
		if reject >= accept {
			return fmt.Errorf("reject threshold %v must be below accept threshold %v", reject, accept)
		}
		c.acceptThreshold = accept
		c.rejectThreshold = reject
		return nil
	}
}

// NewController creates a quality controller with default thresholds.
func NewController(opts ...ControllerOption) (*Controller, error) {
	c := &Controller{
		acceptThreshold: DefaultAcceptThreshold,
		rejectThreshold: DefaultRejectThreshold,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Score combines extraction coverage, structural node count, technical-term
// density and metadata signals into one confidence value in [0,1].
// Coverage dominates: a half-readable document cannot score high no matter
// how well the readable part is structured.
func (c *Controller) Score(coverage float64, nodeCount int, density float64, signals int) float64 {
	structural := saturate(float64(nodeCount) / referenceNodeCount)
	densityScore := saturate(density / referenceDensity)
	signalScore := saturate(float64(signals) / 2)

	return 0.5*saturate(coverage) + 0.25*structural + 0.15*densityScore + 0.1*signalScore
}

// Evaluate gates a confidence score.
func (c *Controller) Evaluate(score float64) Verdict {
	switch {
	case score >= c.acceptThreshold:
		return VerdictAccept
	case score < c.rejectThreshold:
		return VerdictReject
	default:
		return VerdictFlag
	}
}

func saturate(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
