package plan

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/animus-labs/wfrunner/internal/domain"
)

// ResolveInputs resolves relative input locations against projectPath and checks
// that each one exists. All missing inputs are reported together.
func ResolveInputs(projectPath string, inputs map[string]string, logger *slog.Logger) ([]NamedPath, error) {
	if logger == nil {
		logger = slog.Default()
	}
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	resolved := make([]NamedPath, 0, len(keys))
	var missing []string
	for _, key := range keys {
		p := inputs[key]
		abs := p
		if !filepath.IsAbs(p) {
			abs = filepath.Join(projectPath, p)
			if strings.HasSuffix(p, "/") {
				abs += "/"
			}
		}
		if _, err := os.Stat(abs); err != nil {
			logger.Error("input file not available", "parameter", key, "path", p, "resolved", abs)
			missing = append(missing, key)
		}
		resolved = append(resolved, NamedPath{Key: key, Path: abs})
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: files for parameters %s were not found", domain.ErrConfiguration, strings.Join(missing, " "))
	}
	return resolved, nil
}
