// internal/delivery/registry.go
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Handler delivers a finished document to an address within its scheme,
// e.g. the chat ID of "telegram:42".
type Handler func(ctx context.Context, address, message string) error

// Registry routes documents to a handler by the scheme of the target
// (the part before the first ':').
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates a registry with the "log" scheme registered.
func NewRegistry() *Registry {
	r := &Registry{
		handlers: make(map[string]Handler),
	}
	r.Register("log", LogHandler)
	return r
}

// Register adds a handler for targets of the given scheme.
func (r *Registry) Register(scheme string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[strings.TrimSuffix(scheme, ":")] = handler
}

// Deliver sends message to target. Returns an error if no handler is
// registered for the target's scheme.
func (r *Registry) Deliver(ctx context.Context, target, message string) error {
	scheme, address, _ := strings.Cut(target, ":")
	r.mu.RLock()
	handler, ok := r.handlers[scheme]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no delivery handler for target: %s", target)
	}
	if err := handler(ctx, address, message); err != nil {
		return fmt.Errorf("deliver to %s: %w", target, err)
	}
	return nil
}

// LogHandler writes the document to the process log.
func LogHandler(_ context.Context, address, message string) error {
	slog.Info("document delivered", "target", address, "length", len(message), "text", message)
	return nil
}

// FileHandler writes each document to the file named by the address,
// resolved against dir when relative.
func FileHandler(dir string) Handler {
	return func(_ context.Context, address, message string) error {
		if address == "" {
			return fmt.Errorf("file target needs a path")
		}
		path := address
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, []byte(message), 0o644); err != nil {
			return fmt.Errorf("write document: %w", err)
		}
		return os.Rename(tmp, path)
	}
}
