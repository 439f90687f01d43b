package entities

import (
	"strings"

	"github.com/pkg/errors"
)

type ReleaseKind string

const (
	Milestone        ReleaseKind = "milestone"
	ReleaseCandidate ReleaseKind = "release-candidate"
	Release          ReleaseKind = "release"
)

var releaseKindAliases = map[string]ReleaseKind{
	"m":                 Milestone,
	"milestone":         Milestone,
	"rc":                ReleaseCandidate,
	"release-candidate": ReleaseCandidate,
	"release":           Release,
}

// ParseReleaseKind accepts the short (M, RC, RELEASE) and long names, ignoring case.
func ParseReleaseKind(name string) (ReleaseKind, error) {
	kind, ok := releaseKindAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", errors.Errorf("unknown release kind '%s'. Supported values are M, RC and RELEASE", name)
	}
	return kind, nil
}
