package engine

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// DeclarationFile is the package file carrying the engine version constraint.
const DeclarationFile = "nextflow.config"

var versionPattern = regexp.MustCompile(`nextflowVersion *= *['"](!?[>=]*)([^ ]+)['"]`)

// Declaration is the engine version constraint declared by a workflow package.
type Declaration struct {
	Version string
	// Exact is set by the "!" modifier: the declared version must be used as-is.
	Exact bool
}

// ReadDeclaration scans the package declaration file for the first version
// statement. ok is false when the file is absent, unreadable or declares nothing.
func ReadDeclaration(packageDir string) (Declaration, bool) {
	f, err := os.Open(filepath.Join(packageDir, DeclarationFile))
	if err != nil {
		return Declaration{}, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m := versionPattern.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		return Declaration{Version: m[2], Exact: strings.HasPrefix(m[1], "!")}, true
	}
	return Declaration{}, false
}

// SelectVersion is the single fallback rule: an exact declaration wins, otherwise
// the larger of the declared and default versions is used.
func SelectVersion(decl Declaration, declared bool, defaultVersion string) string {
	if !declared || decl.Version == "" {
		return defaultVersion
	}
	if decl.Exact || CompareVersions(decl.Version, defaultVersion) >= 0 {
		return decl.Version
	}
	return defaultVersion
}

// CompareVersions orders dotted versions component by component, comparing each
// component as a string. A version that is a strict prefix of another sorts first.
func CompareVersions(a, b string) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if c := strings.Compare(pa[i], pb[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(pa) < len(pb):
		return -1
	case len(pa) > len(pb):
		return 1
	default:
		return 0
	}
}

// workdirMountBefore is the first engine release that propagates its work
// directory to task containers by itself.
const workdirMountBefore = "20.07.1"

// NeedsWorkdirMount reports whether task containers must get the engine work
// directory mounted explicitly.
func NeedsWorkdirMount(version string) bool {
	return CompareVersions(version, workdirMountBefore) < 0
}
