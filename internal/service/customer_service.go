package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

// CustomerService manages customer profiles
type CustomerService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewCustomerService creates a new customer service
func NewCustomerService(store *store.Store) *CustomerService {
	return &CustomerService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// CustomerView is a customer with its display name
type CustomerView struct {
	models.Customer
	CustomerName string `json:"customer_name"`
}

// ProfileUpdate is the partial payload for a customer's contact details
type ProfileUpdate struct {
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
	City    *string `json:"city"`
	State   *string `json:"state"`
	ZipCode *string `json:"zip_code"`
}

// EnsureForUser returns the customer owned by userID, creating it first if
// the user has none. Every user provisioning path calls this.
func (s *CustomerService) EnsureForUser(ctx context.Context, userID int64) (*models.Customer, error) {
	ctx, span := util.StartSpan(ctx, "CustomerService.EnsureForUser")
	defer span.End()

	return ensureCustomer(ctx, s.store, userID)
}

func ensureCustomer(ctx context.Context, st *store.Store, userID int64) (*models.Customer, error) {
	if err := st.CreateCustomerIfMissing(ctx, userID); err != nil {
		return nil, err
	}
	return st.GetCustomerByUserID(ctx, userID)
}

// GetByUserID returns the customer owned by a user
func (s *CustomerService) GetByUserID(ctx context.Context, userID int64) (*models.Customer, error) {
	return s.store.GetCustomerByUserID(ctx, userID)
}

// List returns every customer
func (s *CustomerService) List(ctx context.Context) ([]CustomerView, error) {
	ctx, span := util.StartSpan(ctx, "CustomerService.List")
	defer span.End()

	customers, err := s.store.ListCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	views := make([]CustomerView, 0, len(customers))
	for _, c := range customers {
		views = append(views, CustomerView{Customer: c, CustomerName: c.DisplayName()})
	}
	return views, nil
}

// UpdateProfile changes the contact details of the user's customer
func (s *CustomerService) UpdateProfile(ctx context.Context, userID int64, in *ProfileUpdate) (*models.Customer, error) {
	ctx, span := util.StartSpan(ctx, "CustomerService.UpdateProfile")
	defer span.End()

	var customer *models.Customer
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		customer, err = ensureCustomer(ctx, tx, userID)
		if err != nil {
			return err
		}

		var verrs models.ValidationErrors
		setField(&verrs, "phone", in.Phone, &customer.Phone, 20)
		setField(&verrs, "address", in.Address, &customer.Address, 0)
		setField(&verrs, "city", in.City, &customer.City, 100)
		setField(&verrs, "state", in.State, &customer.State, 100)
		setField(&verrs, "zip_code", in.ZipCode, &customer.ZipCode, 10)
		if err := verrs.Err(); err != nil {
			return err
		}

		return tx.UpdateCustomerProfile(ctx, customer)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Customer profile updated", zap.Int64("customer_id", customer.ID))
	return customer, nil
}

func setField(verrs *models.ValidationErrors, field string, value *string, dst *string, maxLen int) {
	if value == nil {
		return
	}
	v := strings.TrimSpace(*value)
	if maxLen > 0 && len([]rune(v)) > maxLen {
		verrs.Add(field, "Ensure this field has no more than %d characters.", maxLen)
		return
	}
	*dst = v
}
