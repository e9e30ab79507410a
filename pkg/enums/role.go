package enums

// Role is the platform role carried in access tokens. Seller rights are not
// a role; they come from an approved sellers row.
type Role string

const (
	RoleBuyer Role = "buyer"
	RoleAdmin Role = "admin"
)

var roles = newSet("role", RoleBuyer, RoleAdmin)

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool { return roles.has(r) }
