package model

import "time"

// OperatorBinding binds an operator to one warehouse. Admins need no bindings.
type OperatorBinding struct {
	OperatorID  string    `gorm:"primaryKey;size:64"`
	WarehouseID int64     `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt   time.Time `gorm:"not null"`
}
