package shared

import "context"

// Role enumerates the acting roles known to the financial core.
type Role string

const (
	RoleAdmin           Role = "ADMIN"
	RoleCashier         Role = "CASHIER"
	RoleWarehouseKeeper Role = "WAREHOUSE_KEEPER"
)

// Valid reports whether the role is one the platform recognises.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCashier, RoleWarehouseKeeper:
		return true
	}
	return false
}

// Identity is the authenticated caller supplied by the upstream gateway.
type Identity struct {
	UserID      int64
	UserName    string
	Role        Role
	BranchID    int64
	WarehouseID int64
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
