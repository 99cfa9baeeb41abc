package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

type migration struct {
	version     int
	description string
	statements  []string
}

// migrations are applied in order, each at most once. Never edit an entry that
// has shipped; append a new one instead.
var migrations = []migration{
	{
		version:     1,
		description: "directories, image metadata and thumbnails",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS directories (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				path TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
			)`,
			`CREATE TABLE IF NOT EXISTS image_metadata (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				filename TEXT NOT NULL,
				file_path TEXT NOT NULL UNIQUE,
				file_size INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL DEFAULT 0,
				modified_at INTEGER NOT NULL DEFAULT 0,
				directory_path TEXT NOT NULL,
				width INTEGER NOT NULL DEFAULT 0,
				height INTEGER NOT NULL DEFAULT 0,
				format TEXT NOT NULL DEFAULT '',
				exif TEXT,
				is_favorite INTEGER NOT NULL DEFAULT 0,
				rating INTEGER NOT NULL DEFAULT 0 CHECK (rating BETWEEN 0 AND 5),
				added_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_image_metadata_directory ON image_metadata(directory_path)`,
			`CREATE INDEX IF NOT EXISTS idx_image_metadata_modified ON image_metadata(modified_at)`,
			`CREATE TABLE IF NOT EXISTS image_thumbnails (
				image_id INTEGER PRIMARY KEY,
				thumbnail BLOB NOT NULL,
				updated_at INTEGER NOT NULL,
				FOREIGN KEY (image_id) REFERENCES image_metadata(id) ON DELETE CASCADE
			)`,
		},
	},
	{
		version:     2,
		description: "albums and album membership",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS albums (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				cover_image_id INTEGER,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				FOREIGN KEY (cover_image_id) REFERENCES image_metadata(id) ON DELETE SET NULL
			)`,
			`CREATE TABLE IF NOT EXISTS album_images (
				album_id INTEGER NOT NULL,
				image_id INTEGER NOT NULL,
				added_at INTEGER NOT NULL,
				sort_order INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (album_id, image_id),
				FOREIGN KEY (album_id) REFERENCES albums(id) ON DELETE CASCADE,
				FOREIGN KEY (image_id) REFERENCES image_metadata(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_album_images_image ON album_images(image_id)`,
		},
	},
	{
		version:     3,
		description: "query indexes",
		statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_image_metadata_favorite ON image_metadata(is_favorite, modified_at)`,
			`CREATE INDEX IF NOT EXISTS idx_image_metadata_rating ON image_metadata(rating)`,
			`CREATE INDEX IF NOT EXISTS idx_image_metadata_format ON image_metadata(format)`,
			`CREATE INDEX IF NOT EXISTS idx_image_metadata_added ON image_metadata(added_at)`,
			`CREATE INDEX IF NOT EXISTS idx_album_images_order ON album_images(album_id, sort_order)`,
		},
	},
}

// Migrate brings the schema up to date. It is safe to call on every start:
// migrations already recorded in schema_version are skipped.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
		log.Info().Int("version", m.version).Str("description", m.description).Msg("database: applied migration")
	}
	return nil
}

// SchemaVersion returns the highest applied migration version, 0 for a fresh database.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
	}
	defer tx.Rollback()

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", m.version, m.description, err)
		}
	}

	sqlStr, args, err := psql.Insert("schema_version").
		Columns("version", "description", "applied_at").
		Values(m.version, m.description, time.Now().Unix()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL for migration %d: %w", m.version, err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
	}
	return nil
}
