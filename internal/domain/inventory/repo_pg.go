package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmauij/Viali-sub010/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type itemRepoPG struct{ pool *pgxpool.Pool }

func NewItemRepoPG(pool *pgxpool.Pool) ItemRepository {
	return &itemRepoPG{pool: pool}
}

func (r *itemRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const itemCols = `id, unit_id, name, controlled, rate_unit, ampule_total_content,
	current_units, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.UnitID, &it.Name, &it.Controlled, &it.RateUnit,
		&it.AmpuleTotalContent, &it.CurrentUnits, &it.CreatedAt, &it.UpdatedAt)
	return &it, err
}

func (r *itemRepoPG) Create(ctx context.Context, item *Item) error {
	item.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO inventory_items (id, unit_id, name, controlled, rate_unit,
			ampule_total_content, current_units)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		item.ID, item.UnitID, item.Name, item.Controlled, item.RateUnit,
		item.AmpuleTotalContent, item.CurrentUnits)
	return err
}

func (r *itemRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	item, err := scanItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM inventory_items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	return item, err
}

func (r *itemRepoPG) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM inventory_items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *itemRepoPG) ListByUnit(ctx context.Context, unitID uuid.UUID, limit, offset int) ([]*Item, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM inventory_items WHERE unit_id = $1`, unitID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM inventory_items WHERE unit_id = $1
		 ORDER BY name LIMIT $2 OFFSET $3`, unitID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func (r *itemRepoPG) Update(ctx context.Context, item *Item) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE inventory_items SET name=$2, controlled=$3, rate_unit=$4,
			ampule_total_content=$5, current_units=$6, updated_at=NOW()
		WHERE id = $1`,
		item.ID, item.Name, item.Controlled, item.RateUnit,
		item.AmpuleTotalContent, item.CurrentUnits)
	return err
}

func (r *itemRepoPG) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	var units int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE inventory_items
		SET current_units = GREATEST(0, current_units + $2), updated_at = NOW()
		WHERE id = $1
		RETURNING current_units`, id, delta).Scan(&units)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrItemNotFound
	}
	return units, err
}
