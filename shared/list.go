package shared

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// ListField is a list option that may be written as a YAML sequence, a JSON
// list string, or a comma/space separated string ("1, 2  ,3").
type ListField []string

func (l *ListField) UnmarshalYAML(node *yaml.Node) error {
	items, err := nodeStrings(node, ParseList)
	if err != nil {
		return err
	}
	*l = items
	return nil
}

// ArgsField is a passthrough argument list. Strings are split like a shell
// would, so "-X n=a,m=OOK_PWM" stays one argument pair.
type ArgsField []string

func (a *ArgsField) UnmarshalYAML(node *yaml.Node) error {
	items, err := nodeStrings(node, SplitArgs)
	if err != nil {
		return err
	}
	*a = items
	return nil
}

func nodeStrings(node *yaml.Node, split func(string) []string) ([]string, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		var out []string
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%w: line %d: list items must be scalars", ErrInvalidConfig, item.Line)
			}
			out = append(out, split(item.Value)...)
		}
		return out, nil
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil, nil
		}
		return split(node.Value), nil
	default:
		return nil, fmt.Errorf("%w: line %d: expected a list or a string", ErrInvalidConfig, node.Line)
	}
}

// ParseList normalizes a list given as a JSON list string or a comma/space
// separated string.
func ParseList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if items, ok := parseJSONList(s); ok {
		return items
	}
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// SplitArgs splits a passthrough argument string on whitespace, honouring
// single and double quotes. A JSON list string is accepted as well.
func SplitArgs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if items, ok := parseJSONList(s); ok {
		return items
	}

	var (
		out     []string
		cur     strings.Builder
		quote   rune
		started bool
	)
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			started = true
		case unicode.IsSpace(r):
			if started {
				out = append(out, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if started {
		out = append(out, cur.String())
	}
	return out
}

func parseJSONList(s string) ([]string, bool) {
	if !strings.HasPrefix(s, "[") {
		return nil, false
	}
	var raw []any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		item := strings.TrimSpace(fmt.Sprint(v))
		if item != "" {
			out = append(out, item)
		}
	}
	return out, true
}
