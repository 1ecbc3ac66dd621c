package domain

type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Avatar string `json:"avatar,omitempty"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Viewer is the identity a ledger listing is made for. The zero value is an
// anonymous visitor.
type Viewer struct {
	UserID string
	Role   Role
}

func (v Viewer) Anonymous() bool {
	return v.UserID == ""
}

func (v Viewer) IsAdmin() bool {
	return !v.Anonymous() && v.Role == RoleAdmin
}

func ViewerOf(u User) Viewer {
	return Viewer{UserID: u.ID, Role: u.Role}
}
