// Package tiles serves the launchpad tile catalog filtered by a user's
// effective authorization set.
package tiles

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/cornerstone-erp/keystone/pkg/authz"
)

// catalogTTL bounds how stale the cached tile catalog may get. Tile edits are
// rare admin operations, a short delay in visibility is acceptable.
const catalogTTL = time.Minute

const catalogCacheKey = "catalog"

// Tile is one launchpad entry. AuthObject names the authorization object a
// user must hold for the tile to appear.
type Tile struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	AuthObject   string `json:"auth_object"`
	TileCategory string `json:"tile_category"`
	DisplayOrder int    `json:"display_order"`
	IsActive     bool   `json:"is_active"`
}

// Service answers tile queries. The full active catalog is cached with a
// short TTL; per-user filtering happens on every call.
type Service struct {
	db      *sql.DB
	catalog *lru.LRU[string, []Tile]
	log     *logrus.Entry
}

// NewService creates a tile service.
func NewService(db *sql.DB, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		db:      db,
		catalog: lru.NewLRU[string, []Tile](1, nil, catalogTTL),
		log:     log.WithField("component", "tiles"),
	}
}

// AuthorizedTiles returns the active tiles the given set grants, ordered by
// category then display order. Admin sets see the whole catalog.
func (s *Service) AuthorizedTiles(ctx context.Context, set *authz.ResolvedSet) ([]Tile, error) {
	catalog, err := s.activeCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if set.IsAdmin {
		return catalog, nil
	}

	authorized := make([]Tile, 0, len(catalog))
	for _, tile := range catalog {
		if set.Contains(tile.AuthObject) {
			authorized = append(authorized, tile)
		}
	}
	return authorized, nil
}

// activeCatalog returns the cached active catalog, loading it on expiry.
func (s *Service) activeCatalog(ctx context.Context) ([]Tile, error) {
	if cached, ok := s.catalog.Get(catalogCacheKey); ok {
		return cached, nil
	}

	query := `
		SELECT id, title, auth_object, tile_category, display_order, is_active
		FROM tiles
		WHERE is_active = $1
		ORDER BY tile_category ASC, display_order ASC`
	rows, err := s.db.QueryContext(ctx, query, true)
	if err != nil {
		return nil, authz.NewStoreError("list tiles", err)
	}
	defer rows.Close()

	var catalog []Tile
	for rows.Next() {
		var tile Tile
		if err := rows.Scan(&tile.ID, &tile.Title, &tile.AuthObject,
			&tile.TileCategory, &tile.DisplayOrder, &tile.IsActive); err != nil {
			return nil, authz.NewStoreError("scan tile", err)
		}
		catalog = append(catalog, tile)
	}
	if err := rows.Err(); err != nil {
		return nil, authz.NewStoreError("list tiles", err)
	}

	s.catalog.Add(catalogCacheKey, catalog)
	return catalog, nil
}

// Create inserts a tile and drops the cached catalog.
func (s *Service) Create(ctx context.Context, tile *Tile) error {
	if tile.Title == "" {
		return authz.NewValidationError("title", "must not be empty")
	}
	if tile.AuthObject == "" {
		return authz.NewValidationError("auth_object", "must not be empty")
	}
	if tile.ID == "" {
		tile.ID = uuid.NewString()
	}

	query := `
		INSERT INTO tiles (id, title, auth_object, tile_category, display_order, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.db.ExecContext(ctx, query,
		tile.ID, tile.Title, tile.AuthObject, tile.TileCategory,
		tile.DisplayOrder, tile.IsActive); err != nil {
		return authz.NewStoreError("create tile", err)
	}

	s.catalog.Remove(catalogCacheKey)
	s.log.WithFields(logrus.Fields{
		"tile_id":     tile.ID,
		"auth_object": tile.AuthObject,
	}).Info("tile created")
	return nil
}

// Deactivate hides a tile from every launchpad without deleting it.
func (s *Service) Deactivate(ctx context.Context, tileID string) error {
	query := `UPDATE tiles SET is_active = $1 WHERE id = $2`
	res, err := s.db.ExecContext(ctx, query, false, tileID)
	if err != nil {
		return authz.NewStoreError("deactivate tile", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return authz.NewStoreError("deactivate tile", err)
	}
	if affected == 0 {
		return authz.ErrNotFound
	}

	s.catalog.Remove(catalogCacheKey)
	return nil
}
