package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bizbooks/approvalflow/pkg/directory"
	"github.com/bizbooks/approvalflow/pkg/registry"
)

// NewRegistry builds a handler registry with a logging handler per configured
// activity type. Domain modules running in the same process replace these by
// registering their own handlers before the engine starts requests.
func NewRegistry(logger *slog.Logger, activityTypes string) *registry.Registry {
	reg := registry.NewRegistry(logger)

	for _, activityType := range strings.Split(activityTypes, ",") {
		activityType = strings.TrimSpace(activityType)
		if activityType == "" {
			continue
		}

		err := reg.Register(activityType, registry.NewLoggingHandler(logger, activityType))
		if err != nil {
			panic(fmt.Errorf("failed to register handler for %q: %w", activityType, err))
		}
	}

	return reg
}

// NewDirectory loads the org directory snapshot from the given path, or
// returns an empty in-memory directory when no path is configured.
func NewDirectory(path string) (directory.Directory, error) {
	if path == "" {
		return directory.NewInMemory(), nil
	}

	dir, err := directory.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load directory snapshot: %w", err)
	}

	return dir, nil
}
