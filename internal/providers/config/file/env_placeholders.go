package file

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

func walkPlaceholderNode(node *yaml.Node) error {
	if node == nil {
		return nil
	}

	switch node.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, child := range node.Content {
			if err := walkPlaceholderNode(child); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		// Keys are left alone so that strict decoding still sees them verbatim.
		for idx := 1; idx < len(node.Content); idx += 2 {
			if err := walkPlaceholderNode(node.Content[idx]); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		if isStringScalar(node) && strings.Contains(node.Value, "${") {
			resolved, err := substituteEnvPlaceholders(node.Value)
			if err != nil {
				return fmt.Errorf("line %d: %w", node.Line, err)
			}
			node.Value = resolved
		}
	}
	return nil
}

func isStringScalar(node *yaml.Node) bool {
	return node != nil && node.Kind == yaml.ScalarNode && (node.Tag == "!!str" || node.Tag == "")
}

func substituteEnvPlaceholders(value string) (string, error) {
	var builder strings.Builder
	for idx := 0; idx < len(value); {
		if value[idx] == '$' && idx+1 < len(value) && value[idx+1] == '{' {
			start := idx + 2
			end := strings.IndexByte(value[start:], '}')
			if end < 0 {
				return "", fmt.Errorf("missing closing brace in %q", value)
			}
			name := strings.TrimSpace(value[start : start+end])
			if name == "" {
				return "", fmt.Errorf("empty environment variable reference in %q", value)
			}
			envValue, ok := os.LookupEnv(name)
			if !ok {
				return "", fmt.Errorf("environment variable %q referenced in config is not set", name)
			}
			builder.WriteString(envValue)
			idx = start + end + 1
			continue
		}
		builder.WriteByte(value[idx])
		idx++
	}
	return builder.String(), nil
}
