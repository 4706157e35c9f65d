// Package scrub redacts secrets from chunk text before it is sent to an
// external analysis provider.
package scrub

import (
	"fmt"
	"sort"
	"strings"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
)

// Finding is one detected secret.
type Finding struct {
	RuleID string
	Secret string
}

// Scrubber replaces detected secrets with [REDACTED:rule-id] markers.
// The gitleaks rule set is compiled once; each call gets its own detector
// because a Detector accumulates findings across scans.
type Scrubber struct {
	cfg gitleaksConfig.Config
}

// New loads the default gitleaks rule set.
func New() (*Scrubber, error) {
	base, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks config: %w", err)
	}
	return &Scrubber{cfg: base.Config}, nil
}

// Detect returns the secrets found in text.
func (s *Scrubber) Detect(text string) []Finding {
	if text == "" {
		return nil
	}
	d := detect.NewDetector(s.cfg)
	found := d.DetectString(text)

	out := make([]Finding, 0, len(found))
	for _, f := range found {
		if f.Secret == "" {
			continue
		}
		out = append(out, Finding{RuleID: f.RuleID, Secret: f.Secret})
	}
	return out
}

// Scrub returns text with every detected secret replaced.
func (s *Scrubber) Scrub(text string) string {
	findings := s.Detect(text)
	if len(findings) == 0 {
		return text
	}

	// Longest first so a secret containing another is replaced whole.
	sort.Slice(findings, func(i, j int) bool {
		return len(findings[i].Secret) > len(findings[j].Secret)
	})
	for _, f := range findings {
		text = strings.ReplaceAll(text, f.Secret, "[REDACTED:"+f.RuleID+"]")
	}
	return text
}
