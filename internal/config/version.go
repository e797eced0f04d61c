package config

import (
	"strings"

	"golang.org/x/mod/semver"
)

// CompareVersions compares two version strings with or without a leading "v".
// Unparseable versions compare as older.
func CompareVersions(v1, v2 string) int {
	if !strings.HasPrefix(v1, "v") {
		v1 = "v" + v1
	}
	if !strings.HasPrefix(v2, "v") {
		v2 = "v" + v2
	}
	c1 := semver.Canonical(v1)
	c2 := semver.Canonical(v2)
	if c1 == "" || c2 == "" {
		return -1
	}
	return semver.Compare(c1, c2)
}

// Satisfies reports whether the running version meets a minimum version requirement.
// An empty requirement is always satisfied.
func Satisfies(required string) bool {
	required = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(required), ">="))
	if required == "" {
		return true
	}
	return CompareVersions(VERSION, required) >= 0
}
