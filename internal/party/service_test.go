package party

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ops/meridian-ops/internal/shared"
)

type fakeRepo struct {
	customers map[int64]Customer
	contacts  map[int64]Contact
	nextID    int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{customers: map[int64]Customer{}, contacts: map[int64]Contact{}}
}

func (f *fakeRepo) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return Customer{}, ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) ListCustomers(ctx context.Context, filter CustomerFilter) ([]Customer, int, error) {
	var out []Customer
	for _, c := range f.customers {
		if filter.Type != "" && c.CustomerType != filter.Type {
			continue
		}
		out = append(out, c)
	}
	return out, len(out), nil
}

func (f *fakeRepo) CreateCustomer(ctx context.Context, c Customer) (int64, error) {
	for _, existing := range f.customers {
		if existing.CompanyName == c.CompanyName {
			return 0, ErrDuplicateCompany
		}
	}
	c.ID = f.id()
	f.customers[c.ID] = c
	return c.ID, nil
}

func (f *fakeRepo) UpdateCustomer(ctx context.Context, id int64, c Customer) error {
	if _, ok := f.customers[id]; !ok {
		return ErrNotFound
	}
	c.ID = id
	f.customers[id] = c
	return nil
}

func (f *fakeRepo) GetContact(ctx context.Context, id int64) (Contact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) ListContacts(ctx context.Context, customerID int64) ([]Contact, error) {
	var out []Contact
	for _, c := range f.contacts {
		if c.CustomerID == customerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateContact(ctx context.Context, c Contact) (int64, error) {
	if c.IsPrimary {
		for id, existing := range f.contacts {
			if existing.CustomerID == c.CustomerID && existing.IsPrimary {
				existing.IsPrimary = false
				f.contacts[id] = existing
			}
		}
	}
	c.ID = f.id()
	f.contacts[c.ID] = c
	return c.ID, nil
}

func (f *fakeRepo) SetPrimaryContact(ctx context.Context, customerID, contactID int64) error {
	target, ok := f.contacts[contactID]
	if !ok || target.CustomerID != customerID {
		return ErrNotFound
	}
	for id, c := range f.contacts {
		if c.CustomerID == customerID {
			c.IsPrimary = id == contactID
			f.contacts[id] = c
		}
	}
	return nil
}

type fakeAudit struct {
	logs []shared.AuditLog
}

func (f *fakeAudit) Record(ctx context.Context, log shared.AuditLog) error {
	f.logs = append(f.logs, log)
	return nil
}

func newTestService() (*Service, *fakeRepo, *fakeAudit) {
	repo := newFakeRepo()
	audit := &fakeAudit{}
	return NewService(repo, audit), repo, audit
}

func TestCreateCustomerDefaultsToProspect(t *testing.T) {
	svc, _, audit := newTestService()

	customer, err := svc.CreateCustomer(context.Background(), 1, CustomerInput{CompanyName: " Acme Corp "})
	require.NoError(t, err)
	require.Equal(t, "Acme Corp", customer.CompanyName)
	require.Equal(t, CustomerTypeProspect, customer.CustomerType)
	require.Len(t, audit.logs, 1)
}

func TestCreateCustomerRejectsUnknownType(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CreateCustomer(context.Background(), 1, CustomerInput{CompanyName: "Acme", CustomerType: "vip"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateCustomerRejectsDuplicateCompany(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CreateCustomer(context.Background(), 1, CustomerInput{CompanyName: "Acme"})
	require.NoError(t, err)
	_, err = svc.CreateCustomer(context.Background(), 1, CustomerInput{CompanyName: "Acme"})
	require.ErrorIs(t, err, ErrDuplicateCompany)
}

func TestAddContactPrimaryDemotesExisting(t *testing.T) {
	svc, _, _ := newTestService()

	customer, err := svc.CreateCustomer(context.Background(), 1, CustomerInput{CompanyName: "Acme"})
	require.NoError(t, err)

	first, err := svc.AddContact(context.Background(), 1, customer.ID, ContactInput{FirstName: "Ana", LastName: "Lopez", IsPrimary: true})
	require.NoError(t, err)
	require.True(t, first.IsPrimary)

	second, err := svc.AddContact(context.Background(), 1, customer.ID, ContactInput{FirstName: "Ben", LastName: "Okafor", IsPrimary: true})
	require.NoError(t, err)
	require.True(t, second.IsPrimary)

	contacts, err := svc.ListContacts(context.Background(), customer.ID)
	require.NoError(t, err)
	primaries := 0
	for _, c := range contacts {
		if c.IsPrimary {
			primaries++
			require.Equal(t, second.ID, c.ID)
		}
	}
	require.Equal(t, 1, primaries)
}

func TestAddContactRequiresExistingCustomer(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.AddContact(context.Background(), 1, 404, ContactInput{FirstName: "Ana", LastName: "Lopez"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetPrimaryContact(t *testing.T) {
	svc, _, _ := newTestService()

	customer, err := svc.CreateCustomer(context.Background(), 1, CustomerInput{CompanyName: "Acme"})
	require.NoError(t, err)
	first, err := svc.AddContact(context.Background(), 1, customer.ID, ContactInput{FirstName: "Ana", LastName: "Lopez", IsPrimary: true})
	require.NoError(t, err)
	second, err := svc.AddContact(context.Background(), 1, customer.ID, ContactInput{FirstName: "Ben", LastName: "Okafor"})
	require.NoError(t, err)

	require.NoError(t, svc.SetPrimaryContact(context.Background(), 1, customer.ID, second.ID))

	updatedFirst, err := svc.ListContacts(context.Background(), customer.ID)
	require.NoError(t, err)
	for _, c := range updatedFirst {
		if c.ID == first.ID {
			require.False(t, c.IsPrimary)
		}
		if c.ID == second.ID {
			require.True(t, c.IsPrimary)
		}
	}
}
