// Package credentials keeps vendor API keys in a dotenv file.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// envKeys maps each provider that needs a secret to its variable name.
// Local providers and ollama are absent: they run without a key.
var envKeys = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"groq":       "GROQ_API_KEY",
	"deepgram":   "DEEPGRAM_API_KEY",
	"elevenlabs": "ELEVENLABS_API_KEY",
	"cartesia":   "CARTESIA_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GEMINI_API_KEY",
}

// Providers lists the providers that take a secret, sorted.
func Providers() []string {
	names := make([]string, 0, len(envKeys))
	for p := range envKeys {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

var ErrUnknownProvider = errors.New("provider takes no credential")

type Store struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	values map[string]string

	lookupEnv func(string) (string, bool)
}

// Open loads path. A missing file is an empty store; it is created on
// the first Save.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:      path,
		logger:    logger,
		values:    map[string]string{},
		lookupEnv: os.LookupEnv,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Reload() error {
	values, err := godotenv.Read(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		values = map[string]string{}
	} else if err != nil {
		return fmt.Errorf("reading credentials: %w", err)
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()

	s.logger.Debug("credentials loaded", "path", s.path, "entries", len(values))
	return nil
}

// APIKey returns the secret for provider, preferring the file over the
// process environment. Providers without a key return "".
func (s *Store) APIKey(provider string) string {
	key, ok := envKeys[provider]
	if !ok {
		return ""
	}

	s.mu.RLock()
	v := s.values[key]
	s.mu.RUnlock()

	if v != "" {
		return v
	}
	v, _ = s.lookupEnv(key)
	return v
}

// Masked returns every provider's secret redacted for display.
func (s *Store) Masked() map[string]string {
	out := make(map[string]string, len(envKeys))
	for p := range envKeys {
		out[p] = Redact(s.APIKey(p))
	}
	return out
}

// Save merges updates (provider -> secret) into the file. Empty values are
// ignored so a blank form field never erases a stored key, and entries the
// store does not know about are kept as they are.
func (s *Store) Save(updates map[string]string) error {
	for p := range updates {
		if _, ok := envKeys[p]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownProvider, p)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := godotenv.Read(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		current = map[string]string{}
	} else if err != nil {
		return fmt.Errorf("reading credentials: %w", err)
	}

	var changed []string
	for p, secret := range updates {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			continue
		}
		current[envKeys[p]] = secret
		changed = append(changed, p)
	}

	if len(changed) == 0 {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating credentials dir: %w", err)
		}
	}
	if err := godotenv.Write(current, s.path); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	os.Chmod(s.path, 0o600)

	s.values = current

	sort.Strings(changed)
	s.logger.Info("credentials saved", "providers", changed)
	return nil
}

// Watch reloads the store whenever the file changes on disk. It blocks
// until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if err := s.Reload(); err != nil {
					s.logger.Warn("reloading credentials", "error", err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("credentials watcher", "error", err)
		}
	}
}

// Redact keeps a short prefix and the last four characters.
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	prefix := 3
	if len(secret) < 12 {
		prefix = 0
	}
	return secret[:prefix] + "..." + secret[len(secret)-4:]
}
