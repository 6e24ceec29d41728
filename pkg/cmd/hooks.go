package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"

	"github.com/dukex/stepwise/internal/subscription"
	"github.com/dukex/stepwise/pkg/process"
)

// hookSymbol is the variable a hook plugin exports.
const hookSymbol = "HookHandler"

// NewMethodRegistry registers the built-in hook handlers and those of the
// plugins under pluginsPath/hooks.
func NewMethodRegistry(logger *slog.Logger, pluginsPath string) (*process.MethodRegistry, error) {
	handlers := []process.HookHandler{
		subscription.NewHooks(logger),
	}

	plugins, err := loadHookPlugins(logger, pluginsPath)
	if err != nil {
		return nil, err
	}

	registry, err := process.NewMethodRegistry(append(handlers, plugins...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to register hook methods: %w", err)
	}

	return registry, nil
}

func loadHookPlugins(logger *slog.Logger, pluginsPath string) ([]process.HookHandler, error) {
	if pluginsPath == "" {
		return nil, nil
	}

	rootPath := filepath.Join(pluginsPath, "hooks")

	paths, err := fs.Glob(os.DirFS(rootPath), "*/*.so")
	if err != nil {
		return nil, fmt.Errorf("failed to list hook plugins: %w", err)
	}

	l := logger.With(slog.String("path", rootPath))
	l.Info("Loading hook plugins", "count", len(paths))

	handlers := make([]process.HookHandler, 0, len(paths))

	for _, p := range paths {
		plg, err := plugin.Open(filepath.Join(rootPath, p))
		if err != nil {
			return nil, fmt.Errorf("failed to open hook plugin %s: %w", p, err)
		}

		symbol, err := plg.Lookup(hookSymbol)
		if err != nil {
			return nil, fmt.Errorf("hook plugin %s: %w", p, err)
		}

		handler, err := asHookHandler(symbol)
		if err != nil {
			return nil, fmt.Errorf("hook plugin %s: %w", p, err)
		}

		handlers = append(handlers, handler)

		l.Info("Loaded hook plugin", slog.String("plugin", p), slog.String("model", handler.Model()))
	}

	return handlers, nil
}

// asHookHandler accepts the exported variable itself or, as plugin.Lookup
// returns for variables, a pointer to it.
func asHookHandler(symbol plugin.Symbol) (process.HookHandler, error) {
	switch v := symbol.(type) {
	case *process.HookHandler:
		return *v, nil
	case process.HookHandler:
		return v, nil
	default:
		return nil, errors.New(hookSymbol + " does not implement process.HookHandler")
	}
}
