package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const flattenIndent = "  "

// flattenJSON decodes the token stream into a YAML node tree so object keys
// keep their source order.
func flattenJSON(data []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	root, err := decodeJSONNode(dec)
	if err != nil {
		return "", err
	}
	if _, err := dec.Token(); err != io.EOF {
		return "", errors.New("invalid json: trailing data")
	}
	return stripControl(strings.Join(flattenNode(root, 0), "\n")), nil
}

func decodeJSONNode(dec *json.Decoder) (*yaml.Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			n := &yaml.Node{Kind: yaml.MappingNode}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("invalid json: %w", err)
				}
				key, _ := keyTok.(string)
				val, err := decodeJSONNode(dec)
				if err != nil {
					return nil, err
				}
				n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, val)
			}
			_, err := dec.Token()
			return n, err
		case '[':
			n := &yaml.Node{Kind: yaml.SequenceNode}
			for dec.More() {
				item, err := decodeJSONNode(dec)
				if err != nil {
					return nil, err
				}
				n.Content = append(n.Content, item)
			}
			_, err := dec.Token()
			return n, err
		}
		return nil, fmt.Errorf("invalid json: unexpected %q", t)
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: "null"}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprint(t)}, nil
	case json.Number:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: t.String()}, nil
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: t}, nil
	}
	return nil, fmt.Errorf("invalid json: unexpected token %v", tok)
}

func flattenYAML(data []byte) (string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return "", err
	}
	return stripControl(strings.Join(flattenNode(&root, 0), "\n")), nil
}

func flattenTOML(data []byte) (string, error) {
	var v map[string]any
	if err := toml.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return "", err
	}

	var root yaml.Node
	if err := root.Encode(v); err != nil {
		return "", fmt.Errorf("encode toml tree: %w", err)
	}
	return stripControl(strings.Join(flattenNode(&root, 0), "\n")), nil
}

// flattenNode renders maps as "key: value" lines, nests collections under a
// "key:" header one indent deeper and renders scalar list items as bullets.
func flattenNode(n *yaml.Node, depth int) []string {
	prefix := strings.Repeat(flattenIndent, depth)

	switch n.Kind {
	case yaml.DocumentNode:
		var lines []string
		for _, c := range n.Content {
			lines = append(lines, flattenNode(c, depth)...)
		}
		return lines

	case yaml.AliasNode:
		return flattenNode(n.Alias, depth)

	case yaml.MappingNode:
		var lines []string
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i].Value, resolve(n.Content[i+1])
			if isCollection(val) {
				lines = append(lines, prefix+key+":")
				lines = append(lines, flattenNode(val, depth+1)...)
				continue
			}
			lines = append(lines, prefix+key+": "+val.Value)
		}
		return lines

	case yaml.SequenceNode:
		var lines []string
		for _, item := range n.Content {
			item = resolve(item)
			if isCollection(item) {
				lines = append(lines, flattenNode(item, depth)...)
				continue
			}
			lines = append(lines, prefix+"- "+item.Value)
		}
		return lines

	case yaml.ScalarNode:
		return []string{prefix + n.Value}
	}
	return nil
}

func resolve(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func isCollection(n *yaml.Node) bool {
	return n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if isControl(r) {
			return -1
		}
		return r
	}, s)
}
