package shared

// Identity is the snapshot of a user taken at login and carried by the session.
// It is not refreshed from the database while the session lives.
type Identity struct {
	UserID             int64  `json:"id"`
	Username           string `json:"username"`
	IsAdmin            bool   `json:"is_admin"`
	MustChangePassword bool   `json:"must_change_password"`
}

// Landing paths chosen after login or password change.
const (
	PathChangePassword = "/change-password"
	PathAdminUsers     = "/admin/users"
	PathDashboard      = "/dashboard"
	PathLogin          = "/login"
)

// LandingPath returns where the identity is sent after authenticating.
func (i Identity) LandingPath() string {
	switch {
	case i.MustChangePassword:
		return PathChangePassword
	case i.IsAdmin:
		return PathAdminUsers
	default:
		return PathDashboard
	}
}
