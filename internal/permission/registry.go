// Package permission is the closed set of permission names the API checks.
// Handlers and services refer to the constants; rows in the permissions
// table are synced from All() at startup.
package permission

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Name is a "resource.action" permission identifier.
type Name string

const (
	RoleRead   Name = "role.read"
	RoleWrite  Name = "role.write"
	RoleDelete Name = "role.delete"

	UserRead   Name = "user.read"
	UserWrite  Name = "user.write"
	UserDelete Name = "user.delete"

	PermissionRead   Name = "permission.read"
	PermissionWrite  Name = "permission.write"
	PermissionDelete Name = "permission.delete"

	CompanyRead   Name = "company.read"
	CompanyWrite  Name = "company.write"
	CompanyDelete Name = "company.delete"

	RestaurantRead   Name = "restaurant.read"
	RestaurantWrite  Name = "restaurant.write"
	RestaurantDelete Name = "restaurant.delete"

	TableRead   Name = "table.read"
	TableWrite  Name = "table.write"
	TableDelete Name = "table.delete"

	OrderRead   Name = "order.read"
	OrderWrite  Name = "order.write"
	OrderDelete Name = "order.delete"

	OrderLineRead   Name = "order_line.read"
	OrderLineWrite  Name = "order_line.write"
	OrderLineDelete Name = "order_line.delete"

	ProductRead   Name = "product.read"
	ProductWrite  Name = "product.write"
	ProductDelete Name = "product.delete"

	CategoryRead   Name = "category.read"
	CategoryWrite  Name = "category.write"
	CategoryDelete Name = "category.delete"

	TaxRateRead   Name = "tax_rate.read"
	TaxRateWrite  Name = "tax_rate.write"
	TaxRateDelete Name = "tax_rate.delete"

	InvoiceRead   Name = "invoice.read"
	InvoiceWrite  Name = "invoice.write"
	InvoiceDelete Name = "invoice.delete"

	InvoiceLineRead   Name = "invoice_line.read"
	InvoiceLineWrite  Name = "invoice_line.write"
	InvoiceLineDelete Name = "invoice_line.delete"

	PaymentRead   Name = "payment.read"
	PaymentWrite  Name = "payment.write"
	PaymentDelete Name = "payment.delete"

	CorrectionRead    Name = "correction.read"
	CorrectionWrite   Name = "correction.write"
	CorrectionDelete  Name = "correction.delete"
	CorrectionApprove Name = "correction.approve"

	AuditRead Name = "audit.read"
)

type Definition struct {
	Name        Name
	Description string
}

var definitions = []Definition{
	{RoleRead, "View roles"},
	{RoleWrite, "Create and edit roles and their permissions"},
	{RoleDelete, "Delete roles"},
	{UserRead, "View users"},
	{UserWrite, "Create and edit users, assign roles"},
	{UserDelete, "Delete users"},
	{PermissionRead, "View permissions"},
	{PermissionWrite, "Create permissions and grant them directly"},
	{PermissionDelete, "Delete permissions"},
	{CompanyRead, "View companies"},
	{CompanyWrite, "Create and edit companies"},
	{CompanyDelete, "Delete companies"},
	{RestaurantRead, "View restaurants"},
	{RestaurantWrite, "Create and edit restaurants"},
	{RestaurantDelete, "Delete restaurants"},
	{TableRead, "View tables"},
	{TableWrite, "Manage tables, seat and release guests"},
	{TableDelete, "Delete tables"},
	{OrderRead, "View orders"},
	{OrderWrite, "Create orders and change their status"},
	{OrderDelete, "Delete orders"},
	{OrderLineRead, "View order lines"},
	{OrderLineWrite, "Add and edit order lines"},
	{OrderLineDelete, "Remove order lines"},
	{ProductRead, "View products"},
	{ProductWrite, "Create and edit products and stock"},
	{ProductDelete, "Delete products"},
	{CategoryRead, "View categories"},
	{CategoryWrite, "Create and edit categories"},
	{CategoryDelete, "Delete categories"},
	{TaxRateRead, "View tax rates"},
	{TaxRateWrite, "Create and edit tax rates"},
	{TaxRateDelete, "Delete tax rates"},
	{InvoiceRead, "View invoices"},
	{InvoiceWrite, "Issue invoices and change their status"},
	{InvoiceDelete, "Delete invoices"},
	{InvoiceLineRead, "View invoice lines"},
	{InvoiceLineWrite, "Add and edit invoice lines"},
	{InvoiceLineDelete, "Remove invoice lines"},
	{PaymentRead, "View payments"},
	{PaymentWrite, "Record and edit payments"},
	{PaymentDelete, "Delete payments"},
	{CorrectionRead, "View invoice corrections"},
	{CorrectionWrite, "Request invoice corrections"},
	{CorrectionDelete, "Delete pending or rejected corrections"},
	{CorrectionApprove, "Approve or reject invoice corrections"},
	{AuditRead, "View the audit trail"},
}

var (
	namePattern = regexp.MustCompile(`^[a-z][a-z_]*\.[a-z][a-z_]*$`)
	index       = map[Name]Definition{}
)

func init() {
	if err := Validate(); err != nil {
		panic(err)
	}
	for _, d := range definitions {
		index[d.Name] = d
	}
}

// Validate checks the registry for malformed or duplicate names.
func Validate() error {
	seen := make(map[Name]struct{}, len(definitions))
	for _, d := range definitions {
		if !namePattern.MatchString(string(d.Name)) {
			return fmt.Errorf("permission %q is not in resource.action form", d.Name)
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("permission %q registered twice", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return nil
}

// All returns every registered definition in registration order.
func All() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

func Known(n Name) bool {
	_, ok := index[n]
	return ok
}

// Parse converts a raw string into a registered Name.
func Parse(raw string) (Name, error) {
	n := Name(strings.TrimSpace(raw))
	if !Known(n) {
		return "", fmt.Errorf("unknown permission %q", raw)
	}
	return n, nil
}

func (n Name) Resource() string {
	resource, _, _ := strings.Cut(string(n), ".")
	return resource
}

func (n Name) Action() string {
	_, action, _ := strings.Cut(string(n), ".")
	return action
}

func (n Name) String() string { return string(n) }

// Sorted returns names in lexical order.
func Sorted(names []Name) []Name {
	out := make([]Name, len(names))
	copy(out, names)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
