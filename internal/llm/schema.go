package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateJSON checks raw against a JSON schema. It returns ErrInvalidJSON for
// documents that do not parse and ErrSchemaViolation, listing every failed
// rule, for documents that parse but do not conform.
func ValidateJSON(schema map[string]any, raw []byte) error {
	if !json.Valid(raw) {
		return ErrInvalidJSON
	}
	if schema == nil {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to run schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(msgs, "; "))
}

// Decode validates content against schema and unmarshals it into v. A
// markdown code fence around the document is ignored.
func Decode(schema map[string]any, content string, v any) error {
	raw := []byte(stripFence(content))
	if err := ValidateJSON(schema, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}

func stripFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
