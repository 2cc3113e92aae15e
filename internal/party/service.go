package party

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	ListCustomers(ctx context.Context, filter CustomerFilter) ([]Customer, int, error)
	CreateCustomer(ctx context.Context, c Customer) (int64, error)
	UpdateCustomer(ctx context.Context, id int64, c Customer) error
	GetContact(ctx context.Context, id int64) (Contact, error)
	ListContacts(ctx context.Context, customerID int64) ([]Contact, error)
	CreateContact(ctx context.Context, c Contact) (int64, error)
	SetPrimaryContact(ctx context.Context, customerID, contactID int64) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates customer flows.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs the party service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CustomerInput carries create and update payloads.
type CustomerInput struct {
	CompanyName  string   `json:"company_name" validate:"required"`
	CustomerType string   `json:"customer_type"`
	Industry     string   `json:"industry"`
	Website      string   `json:"website" validate:"omitempty,url"`
	Address      string   `json:"address"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	Country      string   `json:"country"`
	PostalCode   string   `json:"postal_code"`
	TaxID        string   `json:"tax_id"`
	CreditLimit  *float64 `json:"credit_limit"`
}

func (input CustomerInput) toCustomer() Customer {
	c := Customer{
		CompanyName:  strings.TrimSpace(input.CompanyName),
		CustomerType: input.CustomerType,
		Industry:     input.Industry,
		Website:      input.Website,
		Address:      input.Address,
		City:         input.City,
		State:        input.State,
		Country:      input.Country,
		PostalCode:   input.PostalCode,
		TaxID:        input.TaxID,
		CreditLimit:  input.CreditLimit,
	}
	if c.CustomerType == "" {
		c.CustomerType = CustomerTypeProspect
	}
	return c
}

// CreateCustomer validates and persists a customer.
func (s *Service) CreateCustomer(ctx context.Context, actorID int64, input CustomerInput) (Customer, error) {
	c := input.toCustomer()
	if c.CompanyName == "" || !ValidCustomerType(c.CustomerType) {
		return Customer{}, ErrValidation
	}
	id, err := s.repo.CreateCustomer(ctx, c)
	if err != nil {
		return Customer{}, err
	}
	s.recordAudit(ctx, actorID, "CUSTOMER_CREATE", id, map[string]any{"company": c.CompanyName})
	return s.repo.GetCustomer(ctx, id)
}

// UpdateCustomer rewrites a customer.
func (s *Service) UpdateCustomer(ctx context.Context, actorID int64, id int64, input CustomerInput) (Customer, error) {
	c := input.toCustomer()
	if c.CompanyName == "" || !ValidCustomerType(c.CustomerType) {
		return Customer{}, ErrValidation
	}
	if err := s.repo.UpdateCustomer(ctx, id, c); err != nil {
		return Customer{}, err
	}
	s.recordAudit(ctx, actorID, "CUSTOMER_UPDATE", id, map[string]any{"company": c.CompanyName})
	return s.repo.GetCustomer(ctx, id)
}

// GetCustomer fetches one customer.
func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// ListCustomers returns a filtered page of customers.
func (s *Service) ListCustomers(ctx context.Context, filter CustomerFilter) ([]Customer, int, error) {
	if filter.Type != "" && !ValidCustomerType(filter.Type) {
		return nil, 0, ErrValidation
	}
	return s.repo.ListCustomers(ctx, filter)
}

// ContactInput carries contact payloads.
type ContactInput struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Title     string `json:"title"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone"`
	Mobile    string `json:"mobile"`
	IsPrimary bool   `json:"is_primary"`
}

// AddContact attaches a contact person to a customer.
func (s *Service) AddContact(ctx context.Context, actorID int64, customerID int64, input ContactInput) (Contact, error) {
	if strings.TrimSpace(input.FirstName) == "" || strings.TrimSpace(input.LastName) == "" {
		return Contact{}, ErrValidation
	}
	if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
		return Contact{}, err
	}
	id, err := s.repo.CreateContact(ctx, Contact{
		CustomerID: customerID,
		FirstName:  strings.TrimSpace(input.FirstName),
		LastName:   strings.TrimSpace(input.LastName),
		Title:      input.Title,
		Email:      input.Email,
		Phone:      input.Phone,
		Mobile:     input.Mobile,
		IsPrimary:  input.IsPrimary,
		IsActive:   true,
	})
	if err != nil {
		return Contact{}, err
	}
	s.recordAudit(ctx, actorID, "CONTACT_CREATE", id, map[string]any{"customer_id": customerID})
	return s.repo.GetContact(ctx, id)
}

// ListContacts returns a customer's contacts, primary first.
func (s *Service) ListContacts(ctx context.Context, customerID int64) ([]Contact, error) {
	return s.repo.ListContacts(ctx, customerID)
}

// SetPrimaryContact promotes one contact to primary, demoting any other.
func (s *Service) SetPrimaryContact(ctx context.Context, actorID int64, customerID, contactID int64) error {
	if err := s.repo.SetPrimaryContact(ctx, customerID, contactID); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "CONTACT_SET_PRIMARY", contactID, map[string]any{"customer_id": customerID})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "party", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
