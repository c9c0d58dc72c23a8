package store

import (
	"context"
	"fmt"

	"storefront/internal/models"
)

const customerSelect = `
	SELECT c.id, c.user_id, c.phone, c.address, c.city, c.state, c.zip_code, c.is_verified,
	       u.email, u.username, u.first_name, u.last_name
	FROM customers c
	JOIN users u ON u.id = c.user_id`

// CreateCustomerIfMissing creates the customer profile of a user unless one
// already exists. It is safe to call concurrently for the same user.
func (s *Store) CreateCustomerIfMissing(ctx context.Context, userID int64) error {
	_, err := s.exec(ctx, `
		INSERT INTO customers (user_id, phone, address, city, state, zip_code, is_verified, created_at)
		VALUES (?, '', '', '', '', '', ?, ?)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, false, now())
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetCustomerByID retrieves a customer by ID
func (s *Store) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	var customer models.Customer
	if err := s.get(ctx, &customer, customerSelect+" WHERE c.id = ?", id); err != nil {
		return nil, notFound(err, "customer", id)
	}
	return &customer, nil
}

// GetCustomerByUserID retrieves the customer owned by a user
func (s *Store) GetCustomerByUserID(ctx context.Context, userID int64) (*models.Customer, error) {
	var customer models.Customer
	if err := s.get(ctx, &customer, customerSelect+" WHERE c.user_id = ?", userID); err != nil {
		return nil, notFound(err, "customer for user", userID)
	}
	return &customer, nil
}

// ListCustomers returns every customer ordered by ID.
func (s *Store) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	customers := []models.Customer{}
	err := s.q.SelectContext(ctx, &customers, s.rebind(customerSelect+" ORDER BY c.id"))
	return customers, err
}

// UpdateCustomerProfile stores the editable contact fields of a customer.
func (s *Store) UpdateCustomerProfile(ctx context.Context, c *models.Customer) error {
	res, err := s.exec(ctx, `
		UPDATE customers
		SET phone = ?, address = ?, city = ?, state = ?, zip_code = ?
		WHERE id = ?`,
		c.Phone, c.Address, c.City, c.State, c.ZipCode, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	return expectRow(res, "customer", c.ID)
}
