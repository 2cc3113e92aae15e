package party

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for customers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const customerColumns = `id, company_name, customer_type, COALESCE(industry,''), COALESCE(website,''), COALESCE(address,''), COALESCE(city,''), COALESCE(state,''), COALESCE(country,''), COALESCE(postal_code,''), COALESCE(tax_id,''), credit_limit, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.CompanyName, &c.CustomerType, &c.Industry, &c.Website, &c.Address,
		&c.City, &c.State, &c.Country, &c.PostalCode, &c.TaxID, &c.CreditLimit, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, err
	}
	return c, nil
}

// GetCustomer fetches one customer.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id=$1`, id))
}

// CustomerFilter narrows ListCustomers.
type CustomerFilter struct {
	Search string
	Type   string
	Limit  int
	Offset int
}

// ListCustomers returns customers matching the filter plus the unpaged total.
func (r *Repository) ListCustomers(ctx context.Context, filter CustomerFilter) ([]Customer, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1
	if filter.Search != "" {
		where += fmt.Sprintf(" AND company_name ILIKE $%d", argPos)
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}
	if filter.Type != "" {
		where += fmt.Sprintf(" AND customer_type = $%d", argPos)
		args = append(args, filter.Type)
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM customers %s ORDER BY company_name LIMIT $%d OFFSET $%d`, customerColumns, where, argPos, argPos+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

// CreateCustomer inserts a customer.
func (r *Repository) CreateCustomer(ctx context.Context, c Customer) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO customers (company_name, customer_type, industry, website, address, city, state, country, postal_code, tax_id, credit_limit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, c.CompanyName, c.CustomerType, c.Industry, c.Website, c.Address, c.City, c.State, c.Country, c.PostalCode, c.TaxID, c.CreditLimit).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateCompany
		}
		return 0, err
	}
	return id, nil
}

// UpdateCustomer rewrites the customer fields.
func (r *Repository) UpdateCustomer(ctx context.Context, id int64, c Customer) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE customers SET company_name=$2, customer_type=$3, industry=$4, website=$5, address=$6,
			city=$7, state=$8, country=$9, postal_code=$10, tax_id=$11, credit_limit=$12, updated_at=NOW()
		WHERE id=$1
	`, id, c.CompanyName, c.CustomerType, c.Industry, c.Website, c.Address, c.City, c.State, c.Country, c.PostalCode, c.TaxID, c.CreditLimit)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCompany
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const contactColumns = `id, customer_id, first_name, last_name, COALESCE(title,''), COALESCE(email,''), COALESCE(phone,''), COALESCE(mobile,''), is_primary, is_active, created_at, updated_at`

func scanContact(row pgx.Row) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.CustomerID, &c.FirstName, &c.LastName, &c.Title, &c.Email, &c.Phone,
		&c.Mobile, &c.IsPrimary, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, err
	}
	return c, nil
}

// GetContact fetches one contact.
func (r *Repository) GetContact(ctx context.Context, id int64) (Contact, error) {
	return scanContact(r.pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id=$1`, id))
}

// ListContacts returns a customer's contacts, primary first.
func (r *Repository) ListContacts(ctx context.Context, customerID int64) ([]Contact, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+contactColumns+` FROM contacts WHERE customer_id=$1 ORDER BY is_primary DESC, first_name, last_name`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var contacts []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// CreateContact inserts a contact. When the contact is primary any existing
// primary for the same customer is demoted in the same transaction.
func (r *Repository) CreateContact(ctx context.Context, c Contact) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if c.IsPrimary {
		if _, err := tx.Exec(ctx, `UPDATE contacts SET is_primary=FALSE, updated_at=NOW() WHERE customer_id=$1 AND is_primary`, c.CustomerID); err != nil {
			return 0, err
		}
	}
	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO contacts (customer_id, first_name, last_name, title, email, phone, mobile, is_primary, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, c.CustomerID, c.FirstName, c.LastName, c.Title, c.Email, c.Phone, c.Mobile, c.IsPrimary, c.IsActive).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, tx.Commit(ctx)
}

// SetPrimaryContact promotes one contact and demotes the customer's others.
func (r *Repository) SetPrimaryContact(ctx context.Context, customerID, contactID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE contacts SET is_primary=FALSE, updated_at=NOW() WHERE customer_id=$1 AND is_primary`, customerID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `UPDATE contacts SET is_primary=TRUE, updated_at=NOW() WHERE id=$1 AND customer_id=$2`, contactID, customerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}
