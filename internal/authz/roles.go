package authz

// Role is the coarse actor classification resolved at the request boundary.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
	RoleManager  Role = "manager"
	RoleOperator Role = "operator"
)

// Identity is the per-request actor value. It is resolved once by the auth
// middleware and passed explicitly into every engine operation; the engines
// never read actor information from ambient state.
type Identity struct {
	UserID uint64
	Role   Role
}

func (i Identity) IsOperator() bool { return i.Role == RoleOperator }
func (i Identity) IsManager() bool  { return i.Role == RoleManager }
func (i Identity) IsDriver() bool   { return i.Role == RoleDriver }
func (i Identity) IsCustomer() bool { return i.Role == RoleCustomer }
