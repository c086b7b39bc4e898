package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

//go:embed sql/pre_automigrate.sql
var preAutoMigrateSQL string

//go:embed sql/post_automigrate.sql
var postAutoMigrateSQL string

// migrationLockKey serializes schema changes when several processes (an
// import and a server, say) start against the same database.
const migrationLockKey int64 = 0x7468656d65647570

type migrationStep struct {
	name string
	run  func(tx *gorm.DB) error
}

func migrationSteps() []migrationStep {
	return []migrationStep{
		{name: "types", run: execScript(preAutoMigrateSQL)},
		{name: "tables", run: func(tx *gorm.DB) error { return tx.AutoMigrate(autoMigrateModels()...) }},
		{name: "indexes", run: execScript(postAutoMigrateSQL)},
	}
}

// migrate applies every step inside one transaction holding an advisory
// lock. Postgres DDL is transactional, so a failed step leaves no partial
// schema behind.
func (p *Pool) migrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return errPoolNotInitialized
	}
	return p.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", migrationLockKey).Error; err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		for _, step := range migrationSteps() {
			if err := step.run(tx); err != nil {
				return fmt.Errorf("migration step %s: %w", step.name, err)
			}
		}
		return nil
	})
}

func execScript(script string) func(tx *gorm.DB) error {
	trimmed := strings.TrimSpace(script)
	return func(tx *gorm.DB) error {
		if trimmed == "" {
			return nil
		}
		return tx.Exec(trimmed).Error
	}
}
