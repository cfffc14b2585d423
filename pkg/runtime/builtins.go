package runtime

import (
	"fmt"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

// WriteMarkdown renders v as Markdown. Raw HTML inside the source is
// omitted by goldmark's default renderer.
func (c *Context) WriteMarkdown(v any) {
	if c.err != nil || v == nil {
		return
	}
	if err := goldmark.Convert([]byte(ToText(v)), c.w); err != nil {
		c.Fail(fmt.Errorf("rendering markdown: %w", err))
	}
}

// Sanitize policies accepted by t:sanitize.
const (
	PolicyUGC    = "ugc"
	PolicyStrict = "strict"
)

var (
	policiesOnce sync.Once
	policies     map[string]*bluemonday.Policy
)

// WriteSanitized writes v as HTML filtered through the named bluemonday
// policy. An empty policy selects PolicyUGC.
func (c *Context) WriteSanitized(v any, policy string) {
	if c.err != nil || v == nil {
		return
	}
	policiesOnce.Do(func() {
		policies = map[string]*bluemonday.Policy{
			PolicyUGC:    bluemonday.UGCPolicy(),
			PolicyStrict: bluemonday.StrictPolicy(),
		}
	})
	if policy == "" {
		policy = PolicyUGC
	}
	p, ok := policies[policy]
	if !ok {
		c.Fail(fmt.Errorf("unknown sanitize policy %q", policy))
		return
	}
	c.Raw(p.Sanitize(ToText(v)))
}

// IsPolicy reports whether name is a sanitize policy WriteSanitized knows.
func IsPolicy(name string) bool {
	return name == PolicyUGC || name == PolicyStrict
}
