// Package selection turns a multi-select of chat messages into one extracted
// record for pre-filling lead and customer forms.
package selection

import (
	"strings"

	"github.com/matheus3301/crmchat/internal/extract"
	"github.com/matheus3301/crmchat/internal/message"
	"github.com/matheus3301/crmchat/internal/templates"
)

type options struct {
	allKinds bool
}

// Option configures CollectText.
type Option func(*options)

// AllKinds includes non-text messages (captions, file names in content).
func AllKinds() Option {
	return func(o *options) { o.allKinds = true }
}

// CollectText joins, in list order and with newlines, the content of the
// messages whose ids are selected. Only text messages count unless AllKinds
// is given. No match yields "".
func CollectText(msgs []message.Message, ids []string, opts ...Option) string {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	selected := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		selected[id] = struct{}{}
	}

	var parts []string
	for _, m := range msgs {
		if _, ok := selected[m.ID]; !ok {
			continue
		}
		if !o.allKinds && m.Kind != message.KindText {
			continue
		}
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n")
}

// Source provides the current message list of a conversation.
type Source interface {
	Messages(conversationID string) []message.Message
}

// Aggregator extracts one merged record from selected messages.
type Aggregator struct {
	source    Source
	templates *templates.Store
	engine    *extract.Engine
}

// NewAggregator creates an aggregator reading messages from source and
// patterns from store.
func NewAggregator(source Source, store *templates.Store, engine *extract.Engine) *Aggregator {
	if engine == nil {
		engine = extract.New()
	}
	return &Aggregator{source: source, templates: store, engine: engine}
}

// Extract collects the selected messages of conversationID and runs the
// extraction engine over the joined text.
func (a *Aggregator) Extract(conversationID string, ids []string, opts ...Option) extract.Record {
	text := CollectText(a.source.Messages(conversationID), ids, opts...)
	return a.ExtractText(text)
}

// ExtractText runs the engine over free text with the active templates.
func (a *Aggregator) ExtractText(text string) extract.Record {
	return a.engine.Extract(text, a.templates.Active())
}
