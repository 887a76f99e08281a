package kwstats

import (
	"regexp"

	"golang.org/x/mod/semver"
)

var generatorVersionRe = regexp.MustCompile(`^(?:Robot|Rebot)\s+(\d+(?:\.\d+){0,2})`)

// robotVersion extracts the framework version from a generator string as a canonical semver, e.g.
// "Robot 6.1 (Python 3.11.4 on linux)" becomes "v6.1.0". An empty string is returned when unknown.
func robotVersion(generator string) string {
	m := generatorVersionRe.FindStringSubmatch(generator)
	if m == nil {
		return ""
	}
	v := "v" + m[1]
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}

// legacySchema reports if the version predates dedicated control structure elements (framework 4.0).
func legacySchema(version string) bool {
	return version != "" && semver.Compare(version, "v4.0.0") < 0
}

// RobotMajorVersion returns the major framework version of the report, such as "v7", or empty if unknown.
func (r *Report) RobotMajorVersion() string {
	if r.RobotVersion == "" {
		return ""
	}
	return semver.Major(r.RobotVersion)
}
