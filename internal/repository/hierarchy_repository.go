package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/orderlink/be-plan-amendments/internal/database"
	"github.com/orderlink/be-plan-amendments/internal/errors"
)

// HierarchyRepository reads the store hierarchy directory: store → (store
// manager, area manager, regional manager). Maintained by an external upload
// process and read-only here.
type HierarchyRepository struct {
	db *database.DB
}

// NewHierarchyRepository creates a new HierarchyRepository.
func NewHierarchyRepository(db *database.DB) *HierarchyRepository {
	return &HierarchyRepository{db: db}
}

const storeNodeColumns = `
	store_id, store_code, store_name, region,
	store_manager_id, store_manager_name,
	area_manager_id, area_manager_name,
	regional_manager_id, regional_manager_name`

// GetStore returns one store node.
func (r *HierarchyRepository) GetStore(ctx context.Context, storeID string) (*StoreNode, error) {
	query := `SELECT ` + storeNodeColumns + ` FROM store_hierarchy WHERE store_id = $1`

	node, err := scanStoreNode(r.db.QueryRow(ctx, query, storeID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("store", storeID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get store node")
	}
	return node, nil
}

// StoresForManager returns every store a user manages at any level. Admins
// should use ListStores instead.
func (r *HierarchyRepository) StoresForManager(ctx context.Context, userID string) ([]*StoreNode, error) {
	query := `
		SELECT ` + storeNodeColumns + `
		FROM store_hierarchy
		WHERE store_manager_id = $1
		   OR area_manager_id = $1
		   OR regional_manager_id = $1
		ORDER BY store_code
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list stores for manager")
	}
	defer rows.Close()

	return scanStoreNodeRows(rows)
}

// ListStores returns the full hierarchy directory.
func (r *HierarchyRepository) ListStores(ctx context.Context) ([]*StoreNode, error) {
	query := `SELECT ` + storeNodeColumns + ` FROM store_hierarchy ORDER BY store_code`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list stores")
	}
	defer rows.Close()

	return scanStoreNodeRows(rows)
}

type storeNodeScanner interface {
	Scan(dest ...any) error
}

func scanStoreNode(row storeNodeScanner) (*StoreNode, error) {
	n := &StoreNode{}
	err := row.Scan(
		&n.StoreID,
		&n.StoreCode,
		&n.StoreName,
		&n.Region,
		&n.StoreManagerID,
		&n.StoreManagerName,
		&n.AreaManagerID,
		&n.AreaManagerName,
		&n.RegionalManagerID,
		&n.RegionalManagerName,
	)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func scanStoreNodeRows(rows pgx.Rows) ([]*StoreNode, error) {
	nodes := make([]*StoreNode, 0)
	for rows.Next() {
		n, err := scanStoreNode(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan store node")
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}
