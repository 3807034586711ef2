// Package scope resolves the acting user's role into the mandatory data
// visibility predicate applied to every ledger, voucher and report query.
package scope

import (
	"fmt"

	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/shared"
)

// Type enumerates the scope dimensions.
type Type string

const (
	TypeBranch    Type = "BRANCH"
	TypeWarehouse Type = "WAREHOUSE"
)

// Valid reports whether t names a known scope dimension.
func (t Type) Valid() bool {
	return t == TypeBranch || t == TypeWarehouse
}

// Scope is the resolved visibility predicate. The zero value means
// unrestricted ("all scopes"), which only administrators can hold.
type Scope struct {
	Type Type
	ID   int64
}

// All reports whether the scope is unrestricted.
func (s Scope) All() bool {
	return s.Type == "" && s.ID == 0
}

// Resolve computes the effective scope for the caller. Non-administrators are
// forced onto their assigned branch/warehouse regardless of what the request
// supplied; administrators may narrow to any scope or omit it entirely.
func Resolve(id *shared.Identity, requested *Scope) (Scope, error) {
	if id == nil {
		return Scope{}, fmt.Errorf("scope: missing identity: %w", httpx.ErrUnauthorized)
	}
	switch id.Role {
	case shared.RoleCashier:
		if id.BranchID == 0 {
			return Scope{}, fmt.Errorf("scope: cashier %d has no branch assignment: %w", id.UserID, httpx.ErrForbidden)
		}
		return Scope{Type: TypeBranch, ID: id.BranchID}, nil
	case shared.RoleWarehouseKeeper:
		if id.WarehouseID == 0 {
			return Scope{}, fmt.Errorf("scope: warehouse keeper %d has no warehouse assignment: %w", id.UserID, httpx.ErrForbidden)
		}
		return Scope{Type: TypeWarehouse, ID: id.WarehouseID}, nil
	case shared.RoleAdmin:
		if requested == nil || requested.All() {
			return Scope{}, nil
		}
		if !requested.Type.Valid() || requested.ID <= 0 {
			return Scope{}, fmt.Errorf("scope: malformed scope override: %w", httpx.ErrInvalidQuery)
		}
		return *requested, nil
	default:
		return Scope{}, fmt.Errorf("scope: role %q has no data access: %w", id.Role, httpx.ErrForbidden)
	}
}

// RequireAdmin guards administrator-only operations such as voucher approval.
func RequireAdmin(id *shared.Identity) error {
	if id == nil {
		return fmt.Errorf("scope: missing identity: %w", httpx.ErrUnauthorized)
	}
	if id.Role != shared.RoleAdmin {
		return fmt.Errorf("scope: role %q cannot perform administrative actions: %w", id.Role, httpx.ErrForbidden)
	}
	return nil
}
