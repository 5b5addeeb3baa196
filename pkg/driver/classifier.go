package driver

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

//go:embed classification.yaml
var defaultTable []byte

// Classifier maps error messages to kinds using an ordered table of glob
// patterns. Matching is case-insensitive.
type Classifier struct {
	rules []rule
}

type rule struct {
	kind    Kind
	raw     string
	pattern glob.Glob
}

type tableFile struct {
	Rules []struct {
		Kind     string   `yaml:"kind"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"rules"`
}

var (
	defaultClassifier     *Classifier
	defaultClassifierOnce sync.Once
)

// DefaultClassifier returns the classifier built from the embedded table.
func DefaultClassifier() *Classifier {
	defaultClassifierOnce.Do(func() {
		c, err := LoadClassifier(defaultTable)
		if err != nil {
			panic(fmt.Sprintf("driver: embedded classification table is invalid: %v", err))
		}
		defaultClassifier = c
	})
	return defaultClassifier
}

// LoadClassifier parses a YAML classification table.
func LoadClassifier(data []byte) (*Classifier, error) {
	var table tableFile
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse classification table: %w", err)
	}

	c := &Classifier{}
	for _, r := range table.Rules {
		kind, err := ParseKind(r.Kind)
		if err != nil {
			return nil, err
		}
		if err := c.add(kind, r.Patterns...); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// WithPatterns returns a copy of c with extra patterns for kind appended
// after the existing rules.
func (c *Classifier) WithPatterns(kind Kind, patterns ...string) (*Classifier, error) {
	out := &Classifier{rules: append([]rule(nil), c.rules...)}
	if err := out.add(kind, patterns...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Classifier) add(kind Kind, patterns ...string) error {
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return fmt.Errorf("invalid classification pattern %q: %w", p, err)
		}
		c.rules = append(c.rules, rule{kind: kind, raw: p, pattern: g})
	}
	return nil
}

// Classify returns the kind of the first rule matching err's message.
func (c *Classifier) Classify(err error) Kind {
	if c == nil || err == nil {
		return KindUnknown
	}
	return c.ClassifyMessage(err.Error())
}

// ClassifyMessage classifies a raw message.
func (c *Classifier) ClassifyMessage(msg string) Kind {
	if c == nil {
		return KindUnknown
	}
	msg = strings.ToLower(msg)
	for _, r := range c.rules {
		if r.pattern.Match(msg) {
			return r.kind
		}
	}
	return KindUnknown
}

// Patterns returns the raw patterns registered for kind, in order.
func (c *Classifier) Patterns(kind Kind) []string {
	var out []string
	for _, r := range c.rules {
		if r.kind == kind {
			out = append(out, r.raw)
		}
	}
	return out
}
