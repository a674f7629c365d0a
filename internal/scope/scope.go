// Package scope models which warehouses an operator may read and write.
// A Scope value is threaded through every store call instead of comparing role strings.
package scope

import (
	"sort"

	"gorm.io/gorm"

	"cargo-placement-backend/internal/apperr"
)

// Role is the operator role supplied by the identity collaborator.
type Role string

const (
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// IsAdmin reports whether the role has implicit access to every warehouse.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// Operator is the trusted caller identity.
type Operator struct {
	ID   string
	Role Role
}

// Scope is either every warehouse or an explicit (possibly empty) set.
type Scope struct {
	all        bool
	warehouses map[int64]struct{}
}

// All is the admin scope.
func All() Scope {
	return Scope{all: true}
}

// Of builds a scope from bound warehouse IDs.
func Of(ids ...int64) Scope {
	s := Scope{warehouses: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		s.warehouses[id] = struct{}{}
	}
	return s
}

// For computes an operator's scope from its role and bindings.
func For(op Operator, bindings []int64) Scope {
	if op.Role.IsAdmin() {
		return All()
	}
	return Of(bindings...)
}

func (s Scope) IsAll() bool { return s.all }

// IsEmpty reports a non-admin scope with no warehouses assigned.
func (s Scope) IsEmpty() bool {
	return !s.all && len(s.warehouses) == 0
}

func (s Scope) Allows(warehouseID int64) bool {
	if s.all {
		return true
	}
	_, ok := s.warehouses[warehouseID]
	return ok
}

// IDs returns the bound warehouses in ascending order; nil for the admin scope.
func (s Scope) IDs() []int64 {
	if s.all {
		return nil
	}
	ids := make([]int64, 0, len(s.warehouses))
	for id := range s.warehouses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RequireWrite rejects a write into warehouseID that the scope does not cover.
func (s Scope) RequireWrite(warehouseID int64) error {
	if s.IsEmpty() {
		return apperr.Forbidden("no warehouses assigned")
	}
	if !s.Allows(warehouseID) {
		return apperr.Forbidden("warehouse %d is outside the operator's scope", warehouseID)
	}
	return nil
}

// Filter returns a gorm scope restricting column to the scope's warehouses.
// An empty scope matches nothing.
func (s Scope) Filter(column string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if s.all {
			return db
		}
		if len(s.warehouses) == 0 {
			return db.Where("1 = 0")
		}
		return db.Where(column+" IN ?", s.IDs())
	}
}
