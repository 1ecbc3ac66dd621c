package ledger

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// PostgresArchive keeps a durable copy of every order in Postgres.
type PostgresArchive struct {
	db *sql.DB
}

func NewPostgresArchive(cred *Credentials) (*PostgresArchive, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	return &PostgresArchive{db: db}, nil
}

func (a *PostgresArchive) RunMigrations() error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := postgres.WithInstance(a.db, &postgres.Config{
		MigrationsTable: "storefront_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (a *PostgresArchive) Append(ctx context.Context, order domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	shippingJSON, err := json.Marshal(order.Shipping)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping details: %w", err)
	}

	query := `INSERT INTO orders (id, user_id, total, status, items, shipping, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`

	_, insertErr := a.db.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		order.Total.StringFixed(2),
		order.Status,
		itemsJSON,
		shippingJSON,
		order.CreatedAt)

	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}
	return nil
}

func (a *PostgresArchive) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	query := `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`

	if _, err := a.db.ExecContext(ctx, query, status, orderID); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// All returns every archived order, newest first.
func (a *PostgresArchive) All(ctx context.Context) ([]domain.Order, error) {
	query := `SELECT id, user_id, total, status, items, shipping, created_at
	          FROM orders ORDER BY created_at DESC`

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var order domain.Order
		var itemsJSON, shippingJSON []byte
		if err := rows.Scan(
			&order.ID,
			&order.UserID,
			&order.Total,
			&order.Status,
			&itemsJSON,
			&shippingJSON,
			&order.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
			return nil, fmt.Errorf("unmarshal order items: %w", err)
		}
		if err := json.Unmarshal(shippingJSON, &order.Shipping); err != nil {
			return nil, fmt.Errorf("unmarshal shipping details: %w", err)
		}
		order.CreatedAt = order.CreatedAt.UTC()
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return orders, nil
}

func (a *PostgresArchive) Close() error {
	return a.db.Close()
}
