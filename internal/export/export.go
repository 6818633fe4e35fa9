// Package export writes the indexed boundaries to PostGIS for inspection.
package export

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/revgeo-go/internal/config"
	"github.com/wegman-software/revgeo-go/internal/logger"
	"github.com/wegman-software/revgeo-go/internal/search"
	"github.com/wegman-software/revgeo-go/internal/wkb"
)

// Row is one exported polygon
type Row struct {
	Tier     string
	District string
	Level    int32
	Name     string
	Source   string
	Geom     []byte // EWKB polygon or multipolygon
}

// Rows flattens the index into rows, tiers in order, sets and polygons in
// index order
func Rows(idx *search.Index) []Row {
	enc := wkb.NewEncoder(4096)
	all := idx.Sets()

	var rows []Row
	for _, tier := range []search.Tier{search.TierHierarchy, search.TierDistrictPar, search.TierDistrictParAny} {
		for _, set := range all[tier] {
			for i := 0; i < set.Len(); i++ {
				info := set.Info(i)
				geom := enc.Encode(set.Geometry(i))
				if geom == nil {
					continue
				}
				rows = append(rows, Row{
					Tier:     tier.String(),
					District: info.District,
					Level:    info.Level,
					Name:     info.Name,
					Source:   set.Source(),
					Geom:     append([]byte(nil), geom...),
				})
			}
		}
	}
	return rows
}

// Stats holds export statistics
type Stats struct {
	RowsExported int64
}

// Exporter copies boundary rows into a PostGIS table
type Exporter struct {
	db           *config.Database
	pool         *pgxpool.Pool
	dropExisting bool
}

// NewExporter connects to the configured database
func NewExporter(ctx context.Context, cfg *config.Config, dropExisting bool) (*Exporter, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = int32(max(cfg.Workers, 2))

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return &Exporter{db: &cfg.Database, pool: pool, dropExisting: dropExisting}, nil
}

// Close closes connections
func (e *Exporter) Close() {
	e.pool.Close()
}

// TableName returns the schema-qualified target table
func (e *Exporter) TableName() string {
	return tableName(e.db)
}

func tableName(db *config.Database) string {
	return pgx.Identifier{db.Schema, db.Table}.Sanitize()
}

// Run writes rows into the target table, replacing its contents
func (e *Exporter) Run(ctx context.Context, rows []Row) (*Stats, error) {
	log := logger.Get()
	table := e.TableName()

	if _, err := e.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return nil, fmt.Errorf("failed to create PostGIS extension: %w", err)
	}
	if e.db.Schema != "public" {
		schema := pgx.Identifier{e.db.Schema}.Sanitize()
		if _, err := e.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	if e.dropExisting {
		if _, err := e.pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			return nil, fmt.Errorf("failed to drop table: %w", err)
		}
	}
	if _, err := e.pool.Exec(ctx, createTableSQL(table)); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE "+table); err != nil {
		return nil, fmt.Errorf("failed to truncate table: %w", err)
	}

	// geometry has no binary COPY codec, so rows go through a bytea staging table
	const staging = "revgeo_export_tmp"
	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		CREATE TEMP TABLE %s (
			tier TEXT,
			district TEXT,
			level INTEGER,
			name TEXT,
			source TEXT,
			geom_wkb BYTEA
		) ON COMMIT DROP
	`, staging)); err != nil {
		return nil, fmt.Errorf("failed to create temp table: %w", err)
	}

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{staging},
		[]string{"tier", "district", "level", "name", "source", "geom_wkb"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.Tier, r.District, r.Level, r.Name, r.Source, r.Geom}, nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("COPY failed: %w", err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (tier, district, level, name, source, geom)
		SELECT tier, district, level, name, source, ST_Multi(ST_GeomFromEWKB(geom_wkb))
		FROM %s
	`, table, staging)); err != nil {
		return nil, fmt.Errorf("failed to insert from temp table: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	if _, err := e.pool.Exec(ctx, fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)",
		pgx.Identifier{e.db.Table + "_geom_idx"}.Sanitize(), table)); err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	if _, err := e.pool.Exec(ctx, "ANALYZE "+table); err != nil {
		log.Warn("ANALYZE failed", zap.String("table", table), zap.Error(err))
	}

	log.Info("Boundaries exported", zap.String("table", table), zap.Int64("rows", copied))
	return &Stats{RowsExported: copied}, nil
}

func createTableSQL(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			tier TEXT NOT NULL,
			district TEXT NOT NULL,
			level INTEGER NOT NULL,
			name TEXT NOT NULL,
			source TEXT NOT NULL,
			geom GEOMETRY(MultiPolygon, %d)
		)
	`, table, wkb.SRID4326)
}
