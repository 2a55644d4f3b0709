package docs

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/swaggo/swag"
)

func TestSwaggerDocRegistered(t *testing.T) {
	doc, err := swag.ReadDoc()
	if err != nil {
		t.Fatalf("read doc: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("doc is not valid JSON: %v", err)
	}
	for _, p := range []string{`"/inference"`, `"/health"`, `"/status"`, `"/readyz"`} {
		if !strings.Contains(doc, p) {
			t.Fatalf("doc missing %s", p)
		}
	}
}
