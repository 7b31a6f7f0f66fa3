package permission

// Group is a built-in role seeded with a fixed permission set.
type Group struct {
	Name        string
	Description string
	Permissions []Name
}

const (
	GroupAdmin               = "ADMIN"
	GroupReadAll             = "READ_ALL"
	GroupRestaurantOperation = "RESTAURANT_OPERATION"
	GroupManager             = "MANAGER"
)

// DefaultGroups returns the built-in roles.
func DefaultGroups() []Group {
	all := make([]Name, 0, len(definitions))
	reads := make([]Name, 0)
	manager := make([]Name, 0, len(definitions))
	for _, d := range definitions {
		all = append(all, d.Name)
		if d.Name.Action() == "read" {
			reads = append(reads, d.Name)
		}
		switch d.Name {
		case RoleDelete, PermissionDelete, PermissionWrite, UserDelete:
		default:
			manager = append(manager, d.Name)
		}
	}

	return []Group{
		{Name: GroupAdmin, Description: "Full access", Permissions: all},
		{Name: GroupReadAll, Description: "Read-only access to every resource", Permissions: reads},
		{
			Name:        GroupRestaurantOperation,
			Description: "Front of house: tables, orders, invoicing and payments",
			Permissions: []Name{
				TableRead, TableWrite,
				OrderRead, OrderWrite,
				OrderLineRead, OrderLineWrite, OrderLineDelete,
				ProductRead, CategoryRead, TaxRateRead,
				InvoiceRead, InvoiceWrite,
				InvoiceLineRead, InvoiceLineWrite,
				PaymentRead, PaymentWrite,
				CorrectionRead, CorrectionWrite,
			},
		},
		{Name: GroupManager, Description: "Everything except identity administration deletes", Permissions: manager},
	}
}
