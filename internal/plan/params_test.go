package plan

import (
	"errors"
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"github.com/animus-labs/wfrunner/internal/domain"
)

func TestBuildDocumentNesting(t *testing.T) {
	doc, err := BuildDocument([]Param{{"a.b", "1"}, {"a.c", "2"}, {"d", "3"}})
	if err != nil {
		t.Fatalf("BuildDocument() err=%v", err)
	}
	want := map[string]any{
		"a": map[string]any{"b": "1", "c": "2"},
		"d": "3",
	}
	if !reflect.DeepEqual(doc, want) {
		t.Fatalf("BuildDocument()=%v, want %v", doc, want)
	}
}

func TestBuildDocumentRepeatedKeysStaySequences(t *testing.T) {
	doc, err := BuildDocument([]Param{{"inputs.file", "x"}, {"inputs.file", "y"}, {"inputs.other", "z"}})
	if err != nil {
		t.Fatalf("BuildDocument() err=%v", err)
	}
	want := map[string]any{
		"inputs": map[string]any{"file": []any{"x", "y"}, "other": "z"},
	}
	if !reflect.DeepEqual(doc, want) {
		t.Fatalf("BuildDocument()=%v, want %v", doc, want)
	}
}

func TestBuildDocumentRejectsLeafGroupCollision(t *testing.T) {
	if _, err := BuildDocument([]Param{{"a", "1"}, {"a.b", "2"}}); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if _, err := BuildDocument([]Param{{"a.b", "1"}, {"a", "2"}}); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestBuildDocumentSingleValuesUnwrapped(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keys := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,6}`), 1, 8, rapid.ID[string]).Draw(t, "keys")
		params := make([]Param, 0, len(keys))
		for _, k := range keys {
			params = append(params, Param{Key: "group." + k, Value: rapid.String().Draw(t, "value")})
		}
		doc, err := BuildDocument(params)
		if err != nil {
			t.Fatalf("BuildDocument() err=%v", err)
		}
		group, ok := doc["group"].(map[string]any)
		if !ok || len(group) != len(keys) {
			t.Fatalf("expected %d leaves under group, got %v", len(keys), doc)
		}
		for _, p := range params {
			k := p.Key[len("group."):]
			if group[k] != p.Value {
				t.Fatalf("leaf %q=%v, want scalar %q", k, group[k], p.Value)
			}
		}
	})
}
