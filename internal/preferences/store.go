// Package preferences holds the interface language and color theme shared by
// every screen. Writes are persisted before they become visible: a value that
// failed to reach durable storage is never shown.
package preferences

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/kisanai/backend/internal/i18n"
	"github.com/kisanai/backend/internal/logger"
	"github.com/kisanai/backend/internal/storage"
)

const (
	languageKey = "kisanai.language"
	themeKey    = "kisanai.theme"
)

// DefaultPrimaryColor is the accent used until the user picks one.
const DefaultPrimaryColor = "#2e7d32"

var (
	ErrInvalidLanguage = errors.New("invalid language")
	ErrInvalidColor    = errors.New("invalid color")
	ErrPersistence     = errors.New("failed to persist preference")
	ErrClosed          = errors.New("preference store closed")
)

type Theme struct {
	Dark         bool   `json:"dark"`
	PrimaryColor string `json:"primary_color"`
}

type State struct {
	Language i18n.Language
	Theme    Theme
}

type Option func(*Store)

// WithFallbackLanguage sets the language reported when none was persisted.
func WithFallbackLanguage(l i18n.Language) Option {
	return func(s *Store) {
		if l.Valid() {
			s.fallback = l
		}
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

type subscriber struct {
	id int
	fn func(State)
}

type Store struct {
	kv       storage.KV
	catalog  *i18n.Catalog
	log      *logger.Logger
	fallback i18n.Language

	// writeMu serializes persist+commit so two mutations cannot interleave
	// their durable write and their in-memory commit.
	writeMu sync.Mutex

	mu     sync.RWMutex
	state  State
	subs   []subscriber
	nextID int
	closed bool
}

// Open loads persisted preferences. Missing or unreadable values fall back
// to defaults; Open itself only fails on a nil KV.
func Open(kv storage.KV, catalog *i18n.Catalog, opts ...Option) (*Store, error) {
	if kv == nil {
		return nil, errors.New("preferences: nil storage")
	}
	s := &Store{
		kv:       kv,
		catalog:  catalog,
		log:      logger.Nop(),
		fallback: i18n.DefaultLanguage,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = State{
		Language: s.loadLanguage(),
		Theme:    s.loadTheme(),
	}
	return s, nil
}

func (s *Store) loadLanguage() i18n.Language {
	raw, ok, err := s.kv.Get(languageKey)
	if err != nil {
		s.log.Warn("read language preference failed, using fallback", "error", err)
		return s.fallback
	}
	if !ok {
		return s.fallback
	}
	lang, err := i18n.ParseLanguage(raw)
	if err != nil {
		s.log.Warn("ignoring stored language", "value", raw)
		return s.fallback
	}
	return lang
}

func (s *Store) loadTheme() Theme {
	def := Theme{PrimaryColor: DefaultPrimaryColor}
	raw, ok, err := s.kv.Get(themeKey)
	if err != nil {
		s.log.Warn("read theme preference failed, using default", "error", err)
		return def
	}
	if !ok {
		return def
	}
	var t Theme
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		s.log.Warn("ignoring stored theme", "error", err)
		return def
	}
	if c, err := normalizeColor(t.PrimaryColor); err == nil {
		t.PrimaryColor = c
	} else {
		t.PrimaryColor = DefaultPrimaryColor
	}
	return t
}

// Close drops all subscribers. Later mutations fail with ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = nil
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) Language() i18n.Language {
	return s.State().Language
}

func (s *Store) Theme() Theme {
	return s.State().Theme
}

// Translations returns the dictionary for the current language.
func (s *Store) Translations() map[string]string {
	return s.catalog.Translations(s.Language())
}

// T translates one key, returning the key itself when no entry exists.
func (s *Store) T(key string) string {
	return s.catalog.Lookup(s.Language(), key)
}

func (s *Store) SetLanguage(lang i18n.Language) error {
	if !lang.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, lang)
	}
	return s.mutate("language", func(st *State) (string, string, error) {
		st.Language = lang
		return languageKey, string(lang), nil
	})
}

func (s *Store) ToggleTheme() error {
	return s.mutate("theme", func(st *State) (string, string, error) {
		st.Theme.Dark = !st.Theme.Dark
		return encodeTheme(st.Theme)
	})
}

func (s *Store) SetPrimaryColor(color string) error {
	c, err := normalizeColor(color)
	if err != nil {
		return err
	}
	return s.mutate("primary_color", func(st *State) (string, string, error) {
		st.Theme.PrimaryColor = c
		return encodeTheme(st.Theme)
	})
}

// Subscribe registers fn to run after every committed change. The returned
// function removes it. A closed store registers nothing.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// mutate applies change to a copy of the state, writes the resulting
// key/value, and only then commits the copy. Subscribers run after writeMu
// is released, so they may change preferences themselves.
func (s *Store) mutate(what string, change func(*State) (key, value string, err error)) error {
	s.writeMu.Lock()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		s.writeMu.Unlock()
		return ErrClosed
	}
	next := s.state
	s.mu.RUnlock()

	key, value, err := change(&next)
	if err != nil {
		s.writeMu.Unlock()
		return err
	}
	if err := s.kv.Set(key, value); err != nil {
		s.writeMu.Unlock()
		s.log.Error("persist preference failed", "preference", what, "error", err)
		return fmt.Errorf("%w: %s: %v", ErrPersistence, what, err)
	}

	s.mu.Lock()
	s.state = next
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	s.writeMu.Unlock()

	s.log.Debug("preference updated", "preference", what, "value", value)
	for _, sub := range subs {
		sub.fn(next)
	}
	return nil
}

func encodeTheme(t Theme) (string, string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", "", err
	}
	return themeKey, string(b), nil
}

func normalizeColor(color string) (string, error) {
	c := strings.TrimSpace(color)
	if !strings.HasPrefix(c, "#") {
		c = "#" + c
	}
	parsed, err := colorful.Hex(c)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, color)
	}
	return parsed.Hex(), nil
}
