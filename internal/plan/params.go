package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/animus-labs/wfrunner/internal/domain"
)

// ParamsFileName is the parameter document written into the engine workdir.
const ParamsFileName = "params-file.json"

// Param is one flat (dotted key, value) parameter pair.
type Param struct {
	Key   string
	Value string
}

type leaf struct {
	node map[string]any
	key  string
}

// BuildDocument nests flat parameters by splitting keys on ".". Repeated keys
// collect their values into a sequence; keys seen once are stored as scalars.
func BuildDocument(params []Param) (map[string]any, error) {
	doc := map[string]any{}
	var leaves []leaf
	for _, p := range params {
		path := strings.Split(p.Key, ".")
		node := doc
		for _, step := range path[:len(path)-1] {
			next, ok := node[step]
			if !ok {
				child := map[string]any{}
				node[step] = child
				node = child
				continue
			}
			child, ok := next.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: parameter %q nests below value %q", domain.ErrConfiguration, p.Key, step)
			}
			node = child
		}

		key := path[len(path)-1]
		switch cur := node[key].(type) {
		case nil:
			node[key] = []any{p.Value}
			leaves = append(leaves, leaf{node: node, key: key})
		case []any:
			node[key] = append(cur, p.Value)
		default:
			return nil, fmt.Errorf("%w: parameter %q collides with a parameter group", domain.ErrConfiguration, p.Key)
		}
	}

	for _, l := range leaves {
		if values := l.node[l.key].([]any); len(values) == 1 {
			l.node[l.key] = values[0]
		}
	}
	return doc, nil
}

// WriteDocument serializes doc as indented JSON at path.
func WriteDocument(path string, doc map[string]any) error {
	blob, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return fmt.Errorf("write parameters: %w", err)
	}
	return nil
}
