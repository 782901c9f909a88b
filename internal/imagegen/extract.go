package imagegen

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Node is a decoded JSON value. It is one of String, Sequence, Mapping or
// Scalar; the unexported method keeps the set closed.
type Node interface {
	node()
}

// String is a JSON string.
type String string

// Sequence is a JSON array.
type Sequence []Node

// Mapping is a JSON object with its keys in document order.
type Mapping []Field

// Scalar is the literal text of a number, boolean or null.
type Scalar string

// Field is one key/value pair of a Mapping.
type Field struct {
	Key   string
	Value Node
}

func (String) node()   {}
func (Sequence) node() {}
func (Mapping) node()  {}
func (Scalar) node()   {}

// Get returns the value stored under key. With duplicate keys the last one
// wins, as with most JSON decoders.
func (m Mapping) Get(key string) (Node, bool) {
	for i := len(m) - 1; i >= 0; i-- {
		if m[i].Key == key {
			return m[i].Value, true
		}
	}
	return nil, false
}

// str returns the string stored under key, or "" when it is absent or not
// a string.
func (m Mapping) str(key string) string {
	v, ok := m.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(String)
	return string(s)
}

// ParseNode decodes exactly one JSON value into a Node tree.
func ParseNode(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	n, err := parseValue(dec)
	if err != nil {
		return nil, fmt.Errorf("imagegen: parsing response: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("imagegen: parsing response: trailing data after JSON value")
	}
	return n, nil
}

func parseValue(dec *json.Decoder) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			seq := Sequence{}
			for dec.More() {
				v, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				seq = append(seq, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return seq, nil
		case '{':
			m := Mapping{}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T, not string", kt)
				}
				v, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				m = append(m, Field{Key: key, Value: v})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return m, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case string:
		return String(t), nil
	case json.Number:
		return Scalar(t.String()), nil
	case bool:
		return Scalar(strconv.FormatBool(t)), nil
	case nil:
		return Scalar("null"), nil
	}
	return nil, fmt.Errorf("unexpected token %T", tok)
}

// imageURLPattern finds http(s) links to common image files.
var imageURLPattern = regexp.MustCompile(`(?i)(https?://[^\s)]+\.(?:png|jpg|jpeg|webp|gif))`)

const dataImagePrefix = "data:image/"

// Rule recognises an image in a single node. Rules never descend into
// children; the walk does that.
type Rule struct {
	Name  string
	Match func(Node) (string, bool)
}

// DefaultRules is the recognition order used by ExtractImages. All rules
// run against every node; a mapping can yield several images.
var DefaultRules = []Rule{
	{Name: "data-uri", Match: matchDataURI},
	{Name: "url-in-string", Match: matchURLInString},
	{Name: "image_url-part", Match: matchImageURLPart},
	{Name: "image_url-string", Match: matchImageURLString},
	{Name: "b64_json", Match: matchB64JSON},
	{Name: "url-field", Match: matchURLField},
}

func matchDataURI(n Node) (string, bool) {
	s, ok := n.(String)
	if !ok || !strings.HasPrefix(string(s), dataImagePrefix) {
		return "", false
	}
	return string(s), true
}

func matchURLInString(n Node) (string, bool) {
	s, ok := n.(String)
	if !ok || strings.HasPrefix(string(s), dataImagePrefix) {
		return "", false
	}
	m := imageURLPattern.FindString(string(s))
	return m, m != ""
}

// {"type":"image_url","image_url":{"url":"..."}}
func matchImageURLPart(n Node) (string, bool) {
	m, ok := n.(Mapping)
	if !ok || m.str("type") != "image_url" {
		return "", false
	}
	inner, ok := m.Get("image_url")
	if !ok {
		return "", false
	}
	im, ok := inner.(Mapping)
	if !ok {
		return "", false
	}
	url := im.str("url")
	return url, url != ""
}

// {"image_url":"..."}
func matchImageURLString(n Node) (string, bool) {
	m, ok := n.(Mapping)
	if !ok {
		return "", false
	}
	url := m.str("image_url")
	return url, url != ""
}

// {"b64_json":"..."}; the payload is assumed to be PNG.
func matchB64JSON(n Node) (string, bool) {
	m, ok := n.(Mapping)
	if !ok {
		return "", false
	}
	b64 := m.str("b64_json")
	if b64 == "" {
		return "", false
	}
	return "data:image/png;base64," + b64, true
}

// {"url":"https://.../x.png"}
func matchURLField(n Node) (string, bool) {
	m, ok := n.(Mapping)
	if !ok {
		return "", false
	}
	url := m.str("url")
	if url == "" || !imageURLPattern.MatchString(url) {
		return "", false
	}
	return url, true
}

// Extract walks root in pre-order, applying rules in order to every node.
// The result keeps the first occurrence of each image and is never nil.
func Extract(root Node, rules []Rule) []string {
	out := []string{}
	seen := make(map[string]struct{})

	var walk func(Node)
	walk = func(n Node) {
		if n == nil {
			return
		}
		for _, r := range rules {
			img, ok := r.Match(n)
			if !ok {
				continue
			}
			if _, dup := seen[img]; dup {
				continue
			}
			seen[img] = struct{}{}
			out = append(out, img)
		}

		switch v := n.(type) {
		case Sequence:
			for _, child := range v {
				walk(child)
			}
		case Mapping:
			for _, f := range v {
				walk(f.Value)
			}
		}
	}
	walk(root)

	return out
}

// ExtractImages applies DefaultRules to root.
func ExtractImages(root Node) []string {
	return Extract(root, DefaultRules)
}

// ExtractJSON parses data and extracts images from it.
func ExtractJSON(data []byte) ([]string, error) {
	root, err := ParseNode(data)
	if err != nil {
		return nil, err
	}
	return ExtractImages(root), nil
}
