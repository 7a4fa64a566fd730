package auth

import (
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/google/uuid"
)

// Principal identifies the caller of an operation. Services receive it
// explicitly; there is no implicit fallback identity.
type Principal struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// Anonymous is the identity of an unauthenticated caller.
func Anonymous() Principal {
	return Principal{}
}

func (p Principal) IsAnonymous() bool {
	return p.UserID == uuid.Nil
}

func (p Principal) IsAdmin() bool {
	return !p.IsAnonymous() && p.Role == enums.UserRoleAdmin
}

func (p Principal) CanSell() bool {
	return !p.IsAnonymous() && p.Role.CanSell()
}

// Owns reports whether the caller owns a resource or is an admin.
func (p Principal) Owns(ownerID uuid.UUID) bool {
	if p.IsAnonymous() {
		return false
	}
	return p.IsAdmin() || p.UserID == ownerID
}

// SystemUserID identifies work done by background jobs rather than a person.
var SystemUserID = uuid.MustParse("00000000-0000-0000-0000-00000000a11c")

// System is the admin identity used by scheduled jobs.
func System() Principal {
	return Principal{UserID: SystemUserID, Role: enums.UserRoleAdmin}
}
