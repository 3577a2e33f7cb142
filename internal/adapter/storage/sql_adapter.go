package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/patyfb04/play-inventory/internal/core/domain"
)

type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

const (
	mysqlDuplicateEntry = 1062
	pqUniqueViolation   = "23505"
)

// SQLAdapter holds the connection shared by the SQL repositories. Queries
// are written with ? placeholders and rebound for postgres.
type SQLAdapter struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLAdapter(db *sql.DB, dialect Dialect) (*SQLAdapter, error) {
	switch dialect {
	case DialectMySQL, DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	return &SQLAdapter{db: db, dialect: dialect}, nil
}

// MySQLDSN returns dsn with the options the repositories rely on: DATETIME
// columns scanned into time.Time, in UTC.
func MySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

func (a *SQLAdapter) Inventory() *SQLInventoryRepository {
	return &SQLInventoryRepository{a}
}

func (a *SQLAdapter) Catalog() *SQLCatalogRepository {
	return &SQLCatalogRepository{a}
}

func (a *SQLAdapter) rebind(query string) string {
	return sqlx.Rebind(sqlx.BindType(string(a.dialect)), query)
}

// bind expands slice arguments of IN (?) clauses and rebinds the result.
func (a *SQLAdapter) bind(query string, args ...any) (string, []any, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, fmt.Errorf("expand query arguments: %w", err)
	}
	return a.rebind(query), args, nil
}

func (a *SQLAdapter) isDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}

type SQLInventoryRepository struct {
	*SQLAdapter
}

const inventoryColumns = `id, user_id, catalog_item_id, quantity, acquired_date, processed_message_ids, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInventory(row rowScanner) (domain.InventoryRecord, error) {
	var r domain.InventoryRecord
	var ledger string
	if err := row.Scan(&r.ID, &r.UserID, &r.CatalogItemID, &r.Quantity, &r.AcquiredDate, &ledger, &r.Version); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(ledger), &r.ProcessedMessageIDs); err != nil {
		return r, fmt.Errorf("decode processed message ids of %s: %w", r.ID, err)
	}
	r.AcquiredDate = r.AcquiredDate.UTC()
	return r, nil
}

func inventoryWhere(f domain.InventoryFilter) (string, []any) {
	var conds []string
	var args []any
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.CatalogItemID != "" {
		conds = append(conds, "catalog_item_id = ?")
		args = append(args, f.CatalogItemID)
	}
	if len(f.CatalogItemIDs) > 0 {
		conds = append(conds, "catalog_item_id IN (?)")
		args = append(args, f.CatalogItemIDs)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *SQLInventoryRepository) GetByID(ctx context.Context, id string) (*domain.InventoryRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+inventoryColumns+`
		FROM inventory_items WHERE id = ?`), id)

	r, err := scanInventory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory item: %w", err)
	}
	return &r, nil
}

func (s *SQLInventoryRepository) GetAll(ctx context.Context, filter domain.InventoryFilter) ([]domain.InventoryRecord, error) {
	where, args := inventoryWhere(filter)
	query, args, err := s.bind(`
		SELECT `+inventoryColumns+`
		FROM inventory_items`+where+` ORDER BY acquired_date, id`, args...)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query inventory items: %w", err)
	}
	defer rows.Close()

	out := make([]domain.InventoryRecord, 0)
	for rows.Next() {
		r, err := scanInventory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory item: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLInventoryRepository) GetSingle(ctx context.Context, filter domain.InventoryFilter) (*domain.InventoryRecord, error) {
	where, args := inventoryWhere(filter)
	query, args, err := s.bind(`
		SELECT `+inventoryColumns+`
		FROM inventory_items`+where+` ORDER BY acquired_date, id LIMIT 1`, args...)
	if err != nil {
		return nil, err
	}

	r, err := scanInventory(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory item: %w", err)
	}
	return &r, nil
}

func (s *SQLInventoryRepository) Create(ctx context.Context, r domain.InventoryRecord) (domain.InventoryRecord, error) {
	ledger, err := json.Marshal(r.ProcessedMessageIDs)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("encode processed message ids: %w", err)
	}

	r.Version = 1
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO inventory_items (`+inventoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.UserID, r.CatalogItemID, r.Quantity, r.AcquiredDate, string(ledger), r.Version,
	)
	if s.isDuplicateKey(err) {
		return domain.InventoryRecord{}, fmt.Errorf("insert inventory item: %w", domain.ErrConcurrentModification)
	}
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("insert inventory item: %w", err)
	}
	return r, nil
}

func (s *SQLInventoryRepository) Update(ctx context.Context, r domain.InventoryRecord) (domain.InventoryRecord, error) {
	ledger, err := json.Marshal(r.ProcessedMessageIDs)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("encode processed message ids: %w", err)
	}

	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE inventory_items
		SET quantity = ?, processed_message_ids = ?, version = version + 1
		WHERE id = ? AND version = ?`),
		r.Quantity, string(ledger), r.ID, r.Version,
	)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("update inventory item: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.InventoryRecord{}, domain.ErrConcurrentModification
	}

	r.Version++
	return r, nil
}

func (s *SQLInventoryRepository) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM inventory_items WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete inventory item: %w", err)
	}
	return nil
}

type SQLCatalogRepository struct {
	*SQLAdapter
}

const catalogColumns = `id, name, description, price`

func scanCatalog(row rowScanner) (domain.CatalogItem, error) {
	var c domain.CatalogItem
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Price)
	return c, err
}

func catalogWhere(f domain.CatalogFilter) (string, []any) {
	if len(f.IDs) == 0 {
		return "", nil
	}
	return " WHERE id IN (?)", []any{f.IDs}
}

func (s *SQLCatalogRepository) GetByID(ctx context.Context, id string) (*domain.CatalogItem, error) {
	c, err := scanCatalog(s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+catalogColumns+` FROM catalog_items WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query catalog item: %w", err)
	}
	return &c, nil
}

func (s *SQLCatalogRepository) GetAll(ctx context.Context, filter domain.CatalogFilter) ([]domain.CatalogItem, error) {
	where, args := catalogWhere(filter)
	query, args, err := s.bind(`
		SELECT `+catalogColumns+` FROM catalog_items`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query catalog items: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CatalogItem, 0)
	for rows.Next() {
		c, err := scanCatalog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan catalog item: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLCatalogRepository) GetSingle(ctx context.Context, filter domain.CatalogFilter) (*domain.CatalogItem, error) {
	where, args := catalogWhere(filter)
	query, args, err := s.bind(`
		SELECT `+catalogColumns+` FROM catalog_items`+where+` ORDER BY id LIMIT 1`, args...)
	if err != nil {
		return nil, err
	}
	c, err := scanCatalog(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query catalog item: %w", err)
	}
	return &c, nil
}

func (s *SQLCatalogRepository) Create(ctx context.Context, c domain.CatalogItem) (domain.CatalogItem, error) {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO catalog_items (`+catalogColumns+`) VALUES (?, ?, ?, ?)`),
		c.ID, c.Name, c.Description, c.Price,
	)
	if s.isDuplicateKey(err) {
		return domain.CatalogItem{}, fmt.Errorf("insert catalog item: %w", domain.ErrConcurrentModification)
	}
	if err != nil {
		return domain.CatalogItem{}, fmt.Errorf("insert catalog item: %w", err)
	}
	return c, nil
}

func (s *SQLCatalogRepository) Update(ctx context.Context, c domain.CatalogItem) (domain.CatalogItem, error) {
	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE catalog_items SET name = ?, description = ?, price = ?
		WHERE id = ?`),
		c.Name, c.Description, c.Price, c.ID,
	)
	if err != nil {
		return domain.CatalogItem{}, fmt.Errorf("update catalog item: %w", err)
	}

	// mysql reports 0 affected rows when the values did not change, so only
	// a missing row counts as a conflict
	rows, _ := result.RowsAffected()
	if rows == 0 {
		existing, err := s.GetByID(ctx, c.ID)
		if err != nil {
			return domain.CatalogItem{}, err
		}
		if existing == nil {
			return domain.CatalogItem{}, domain.ErrConcurrentModification
		}
	}
	return c, nil
}

func (s *SQLCatalogRepository) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM catalog_items WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete catalog item: %w", err)
	}
	return nil
}
