package domain

// Role determines which parts of the application a user may reach.
type Role string

const (
	RoleHomeowner  Role = "HOMEOWNER"
	RoleContractor Role = "CONTRACTOR"
	RoleSupervisor Role = "SUPERVISOR"
	RoleAdmin      Role = "ADMIN"
)

// Roles lists every recognized role value.
func Roles() []Role {
	return []Role{RoleHomeowner, RoleContractor, RoleSupervisor, RoleAdmin}
}

// Valid reports whether r is one of the recognized role values.
func (r Role) Valid() bool {
	switch r {
	case RoleHomeowner, RoleContractor, RoleSupervisor, RoleAdmin:
		return true
	}
	return false
}

// User is the minimal identity the client keeps for the signed-in account.
type User struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Role            Role   `json:"role"`
	IsEmailVerified bool   `json:"email_verified"`
}
