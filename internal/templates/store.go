package templates

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/matheus3301/crmchat/internal/metrics"
	"go.uber.org/zap"
)

// Persister saves and restores the active template document.
type Persister interface {
	SaveTemplates(raw string) error
	// LoadTemplates returns "" when nothing was saved yet.
	LoadTemplates() (string, error)
}

// Store holds the process-wide active template set. Readers never block;
// imports are serialized and swap the whole set at once.
type Store struct {
	active    atomic.Pointer[Set]
	mu        sync.Mutex
	persister Persister
	logger    *zap.Logger
}

// NewStore creates a store holding the built-in defaults. persister may be nil.
func NewStore(persister Persister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{persister: persister, logger: logger}
	s.active.Store(Defaults())
	return s
}

// Active returns the current set.
func (s *Store) Active() *Set {
	return s.active.Load()
}

// Import validates raw as a JSON object of string arrays and replaces the
// active set. On any error the active set is left unchanged.
func (s *Store) Import(raw string) error {
	patterns, err := Parse(raw)
	if err != nil {
		metrics.TemplateImports.WithLabelValues("invalid").Inc()
		return err
	}
	set, err := NewSet(patterns)
	if err != nil {
		metrics.TemplateImports.WithLabelValues("invalid").Inc()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persister != nil {
		doc, err := encode(set)
		if err != nil {
			metrics.TemplateImports.WithLabelValues("error").Inc()
			return err
		}
		if err := s.persister.SaveTemplates(doc); err != nil {
			metrics.TemplateImports.WithLabelValues("error").Inc()
			return fmt.Errorf("persist templates: %w", err)
		}
	}
	s.active.Store(set)
	metrics.TemplateImports.WithLabelValues("ok").Inc()
	s.logger.Info("extraction templates imported", zap.Strings("fields", set.Fields()))
	return nil
}

// Export serializes the active set as indented JSON suitable for Import.
func (s *Store) Export() (string, error) {
	return encode(s.Active())
}

// Restore loads the persisted document, if any. An invalid snapshot is
// logged and the defaults stay active.
func (s *Store) Restore() {
	if s.persister == nil {
		return
	}
	raw, err := s.persister.LoadTemplates()
	if err != nil {
		s.logger.Warn("failed to load saved templates, using defaults", zap.Error(err))
		return
	}
	if strings.TrimSpace(raw) == "" {
		return
	}
	patterns, err := Parse(raw)
	if err == nil {
		var set *Set
		if set, err = NewSet(patterns); err == nil {
			s.active.Store(set)
			s.logger.Info("extraction templates restored", zap.Strings("fields", set.Fields()))
			return
		}
	}
	s.logger.Warn("saved templates are invalid, using defaults", zap.Error(err))
}

// Parse decodes a template document without compiling it.
func Parse(raw string) (map[string][]string, error) {
	var doc any
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&doc); err != nil {
		return nil, &ValidationError{Index: -1, Reason: err.Error()}
	}
	if dec.More() {
		return nil, &ValidationError{Index: -1, Reason: "trailing data after JSON object"}
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, &ValidationError{Index: -1, Reason: fmt.Sprintf("expected object, got %s", jsonType(doc))}
	}

	out := make(map[string][]string, len(obj))
	for field, v := range obj {
		arr, ok := v.([]any)
		if !ok {
			return nil, &ValidationError{Field: field, Index: -1, Reason: fmt.Sprintf("expected array of strings, got %s", jsonType(v))}
		}
		list := make([]string, 0, len(arr))
		for i, item := range arr {
			str, ok := item.(string)
			if !ok {
				return nil, &ValidationError{Field: field, Index: i, Reason: fmt.Sprintf("expected string, got %s", jsonType(item))}
			}
			list = append(list, str)
		}
		out[field] = list
	}
	return out, nil
}

func encode(set *Set) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(set.Map()); err != nil {
		return "", fmt.Errorf("encode templates: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
