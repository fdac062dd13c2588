package migration_1

import (
	"fmt"

	"gorm.io/gorm"
)

type VideoSession struct {
	CallbackURL string
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&VideoSession{}, "callback_url"); err != nil {
		return fmt.Errorf("error adding CallbackURL column: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropColumn(&VideoSession{}, "CallbackURL"); err != nil {
		return fmt.Errorf("error dropping CallbackURL column: %w", err)
	}

	return nil
}
