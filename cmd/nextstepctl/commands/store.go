package commands

import (
	"fmt"
	"os"

	"github.com/benvon/nextstep/internal/config"
	"github.com/benvon/nextstep/internal/database"
)

// StoreOpener returns the goal store named by cfg and a release func
type StoreOpener func(cfg *config.Config) (database.GoalStore, func(), error)

// OpenGoalStore opens the configured store. The memory driver yields an empty store.
func OpenGoalStore(cfg *config.Config) (database.GoalStore, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		return database.NewMemoryGoalStore(), func() {}, nil
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	release := func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}
	return database.NewGoalRepository(db), release, nil
}
