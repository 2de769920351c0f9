package services

import (
	"time"
)

// Roles a caller can hold.
const (
	RoleZZP        = "zzp"
	RoleAccountant = "accountant"
	RoleAdmin      = "admin"
	RoleSystem     = "system"
)

// CoreContext carries the tenant and caller identity into every service operation.
// The identity layer (a collaborator) builds it; services only enforce it. A zero
// Clock falls back to time.Now.
type CoreContext struct {
	TenantID          uint
	UserID            uint
	Role              string
	TenantAssignments []uint
	IPAddress         string
	UserAgent         string
	Clock             func() time.Time
}

// Now returns the context clock's current time in UTC.
func (c CoreContext) Now() time.Time {
	if c.Clock != nil {
		return c.Clock().UTC()
	}
	return time.Now().UTC()
}

// Authorize verifies the operation's tenant is within the caller's assignments.
// Admin and system callers are tenant-unrestricted.
func (c CoreContext) Authorize() error {
	if c.TenantID == 0 {
		return NewError(ErrUnauthorizedTenant, "operation is missing a tenant")
	}
	if c.Role == RoleAdmin || c.Role == RoleSystem {
		return nil
	}
	if len(c.TenantAssignments) == 0 {
		return nil // single-tenant caller, scoped by TenantID itself
	}
	for _, t := range c.TenantAssignments {
		if t == c.TenantID {
			return nil
		}
	}
	return NewError(ErrUnauthorizedTenant, "tenant %d is not in the caller's assignments", c.TenantID)
}
