package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/infomate/internal/model"
)

const customerColumns = `id, user_id, first_name, last_name, email, phone_number, age,
	country, gender, created_at, updated_at`

// PostgresCustomerRepo はPostgreSQLを使用した顧客レコードリポジトリ。
// すべてのクエリにuser_idの等価条件を含める。
type PostgresCustomerRepo struct {
	db *sql.DB
}

// NewPostgresCustomerRepo はPostgresCustomerRepoを生成する。
func NewPostgresCustomerRepo(db *sql.DB) *PostgresCustomerRepo {
	return &PostgresCustomerRepo{db: db}
}

// ListByOwner は所有ユーザーの顧客レコードを新しい順に取得する。
func (r *PostgresCustomerRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Customer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+customerColumns+` FROM customers
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	return scanCustomers(rows)
}

// Create は顧客レコードを作成する。
func (r *PostgresCustomerRepo) Create(ctx context.Context, c *model.Customer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO customers (id, user_id, first_name, last_name, email, phone_number, age,
		                        country, gender, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.UserID, c.FirstName, c.LastName, c.Email, c.PhoneNumber, c.Age,
		c.Country, c.Gender, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	return nil
}

// FindByIDAndOwner はIDと所有ユーザーIDが一致するレコードを取得する。見つからない場合はnilを返す。
func (r *PostgresCustomerRepo) FindByIDAndOwner(ctx context.Context, id, ownerID string) (*model.Customer, error) {
	c, err := scanCustomer(r.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find customer: %w", err)
	}
	return c, nil
}

// UpdateByIDAndOwner はIDと所有ユーザーIDが一致するレコードを更新する。
// user_idは更新対象に含めない。
func (r *PostgresCustomerRepo) UpdateByIDAndOwner(ctx context.Context, c *model.Customer) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE customers
		 SET first_name = $3, last_name = $4, email = $5, phone_number = $6, age = $7,
		     country = $8, gender = $9, updated_at = $10
		 WHERE id = $1 AND user_id = $2`,
		c.ID, c.UserID, c.FirstName, c.LastName, c.Email, c.PhoneNumber, c.Age,
		c.Country, c.Gender, c.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update customer: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteByIDAndOwner はIDと所有ユーザーIDが一致するレコードを削除する。
func (r *PostgresCustomerRepo) DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM customers WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete customer: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// SearchByName は姓または名に検索文字列を含むレコードを取得する。
func (r *PostgresCustomerRepo) SearchByName(ctx context.Context, ownerID, text string) ([]*model.Customer, error) {
	pattern := "%" + escapeLikePattern(text) + "%"
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+customerColumns+` FROM customers
		 WHERE user_id = $1 AND (first_name ILIKE $2 OR last_name ILIKE $2)
		 ORDER BY created_at DESC`,
		ownerID, pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search customers: %w", err)
	}
	defer rows.Close()

	return scanCustomers(rows)
}

// likeEscaper はLIKEパターンのメタ文字をエスケープする。
// PostgreSQLのデフォルトエスケープ文字はバックスラッシュ。
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLikePattern は検索文字列をLIKEのリテラルとして扱えるようにする。
func escapeLikePattern(s string) string {
	return likeEscaper.Replace(s)
}

func scanCustomer(row rowScanner) (*model.Customer, error) {
	c := &model.Customer{}
	err := row.Scan(
		&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Email, &c.PhoneNumber, &c.Age,
		&c.Country, &c.Gender, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func scanCustomers(rows *sql.Rows) ([]*model.Customer, error) {
	var customers []*model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate customers: %w", err)
	}
	return customers, nil
}

// compile-time interface check
var _ CustomerRepository = (*PostgresCustomerRepo)(nil)
