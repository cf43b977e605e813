package users

import "time"

// Role is the kind of account. It decides what a user may see and change.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleFaculty  Role = "faculty"
	RoleReviewer Role = "reviewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleFaculty, RoleReviewer:
		return true
	}
	return false
}

// User represents an application account. Reviewers are assigned exactly
// one paper.
type User struct {
	ID              string    `bson:"_id,omitempty" json:"id,omitempty"`
	Username        string    `bson:"username" json:"username"`
	Name            string    `bson:"name" json:"name"`
	Role            Role      `bson:"role" json:"role"`
	PasswordHash    string    `bson:"passwordHash" json:"-"`
	AssignedPaperID int64     `bson:"assignedPaperId,omitempty" json:"assignedPaperId,omitempty"`
	CreatedAt       time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time `bson:"updatedAt" json:"updatedAt"`
}
