package model

import (
	"github.com/google/uuid"
)

type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableOccupied  TableStatus = "occupied"
	TableReserved  TableStatus = "reserved"
)

func (s TableStatus) Valid() bool {
	switch s {
	case TableAvailable, TableOccupied, TableReserved:
		return true
	}
	return false
}

// Table is a dining table. Occupied implies ActiveOrderID is set and
// available implies it is nil.
type Table struct {
	Base
	RestaurantID  uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_table_restaurant_number" json:"restaurant_id"`
	Number        int         `gorm:"not null;uniqueIndex:idx_table_restaurant_number" json:"number"`
	Capacity      int         `gorm:"not null" json:"capacity"`
	Status        TableStatus `gorm:"type:varchar(20);index" json:"status"`
	ActiveOrderID *uuid.UUID  `gorm:"type:uuid" json:"active_order_id"`
	OccupantCount *int        `json:"occupant_count"`
}

func (Table) TableName() string { return "restaurant_tables" }
