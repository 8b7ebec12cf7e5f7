package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ListCatalogPrices returns the current price of each known catalog id.
// Unknown ids are simply absent from the result.
func (q *Queries) ListCatalogPrices(ctx context.Context, kind ItemKind, ids []uuid.UUID) ([]CatalogPrice, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, `SELECT id, name, price FROM `+t.catalog+` WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []CatalogPrice{}
	for rows.Next() {
		var i CatalogPrice
		if err := rows.Scan(&i.ID, &i.Name, &i.Price); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type CreateCatalogItemParams struct {
	Name  string         `json:"name"`
	Price pgtype.Numeric `json:"price"`
}

func (q *Queries) CreateCatalogItem(ctx context.Context, kind ItemKind, arg CreateCatalogItemParams) (CatalogPrice, error) {
	t, err := tableFor(kind)
	if err != nil {
		return CatalogPrice{}, err
	}
	row := q.db.QueryRow(ctx, `INSERT INTO `+t.catalog+` (name, price) VALUES ($1, $2) RETURNING id, name, price`, arg.Name, arg.Price)
	var i CatalogPrice
	err = row.Scan(&i.ID, &i.Name, &i.Price)
	return i, err
}
