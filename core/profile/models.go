package profile

import (
	"time"

	"github.com/trezcool/schoolgate/core"
)

// Role is the application role of a profile.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

var (
	AllRoles = []Role{RoleAdmin, RoleTeacher, RoleStudent}

	roleLabels = map[Role]string{
		RoleAdmin:   "Admin",
		RoleTeacher: "Teacher",
		RoleStudent: "Student",
	}
)

func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

func (r Role) Label() string { return roleLabels[r] }

// AccountStatus only applies to students and teachers.
type AccountStatus string

const (
	StatusPending  AccountStatus = "pending"
	StatusActive   AccountStatus = "active"
	StatusInactive AccountStatus = "inactive"
	StatusRejected AccountStatus = "rejected"
)

var (
	AllStatuses = []AccountStatus{StatusPending, StatusActive, StatusInactive, StatusRejected}

	statusLabels = map[AccountStatus]string{
		StatusPending:  "Pending",
		StatusActive:   "Active",
		StatusInactive: "Inactive",
		StatusRejected: "Rejected",
	}
)

func (s AccountStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

func (s AccountStatus) Label() string { return statusLabels[s] }

// Profile is the application record describing the role and status of an identity.
// ID equals the identity id and never changes.
type Profile struct {
	ID            string        `json:"id"`
	Email         string        `json:"email"`
	DisplayName   string        `json:"display_name"`
	Role          Role          `json:"role"`
	AccountStatus AccountStatus `json:"account_status,omitempty"`
	CreatedAt     time.Time     `json:"created_at"` // UTC, stamped by the store
	UpdatedAt     time.Time     `json:"updated_at"` // UTC, stamped by the store
}

func (p Profile) IsAdmin() bool   { return p.Role == RoleAdmin }
func (p Profile) IsTeacher() bool { return p.Role == RoleTeacher }
func (p Profile) IsStudent() bool { return p.Role == RoleStudent }

// NewProfile contains information needed to create a new Profile.
type NewProfile struct {
	Email         string        `json:"email" validate:"omitempty,email"`
	DisplayName   string        `json:"display_name"`
	Role          Role          `json:"role" validate:"required,role"`
	AccountStatus AccountStatus `json:"account_status" validate:"omitempty,accountstatus"`
}

// DefaultProfile is what a brand-new identity gets: a pending student.
func DefaultProfile(email, displayName string) NewProfile {
	return NewProfile{
		Email:         email,
		DisplayName:   displayName,
		Role:          RoleStudent,
		AccountStatus: StatusPending,
	}
}

func (np *NewProfile) clean() {
	np.Email = core.CleanString(np.Email, true /* lower */)
	np.DisplayName = core.CleanString(np.DisplayName)
	if np.Role == RoleAdmin {
		np.AccountStatus = ""
	} else if np.AccountStatus == "" {
		np.AccountStatus = StatusPending
	}
}

// UpdateProfile defines what information may be provided to modify an existing Profile.
// nil fields are left untouched.
type UpdateProfile struct {
	Email         *string        `json:"email" validate:"omitempty,email"`
	DisplayName   *string        `json:"display_name"`
	Role          *Role          `json:"role" validate:"omitempty,role"`
	AccountStatus *AccountStatus `json:"account_status" validate:"omitempty,accountstatus"`
}

func (uu *UpdateProfile) IsEmpty() bool {
	return uu.Email == nil && uu.DisplayName == nil && uu.Role == nil && uu.AccountStatus == nil
}

func (uu *UpdateProfile) clean() {
	if uu.Email != nil {
		email := core.CleanString(*uu.Email, true /* lower */)
		uu.Email = &email
	}
	if uu.DisplayName != nil {
		name := core.CleanString(*uu.DisplayName)
		uu.DisplayName = &name
	}
}

// Apply returns p with the set fields of uu applied. Timestamps are left to the store.
func (uu UpdateProfile) Apply(p Profile) Profile {
	if uu.Email != nil {
		p.Email = *uu.Email
	}
	if uu.DisplayName != nil {
		p.DisplayName = *uu.DisplayName
	}
	if uu.Role != nil {
		p.Role = *uu.Role
	}
	if uu.AccountStatus != nil {
		p.AccountStatus = *uu.AccountStatus
	}
	if p.Role == RoleAdmin {
		p.AccountStatus = ""
	}
	return p
}

type QueryFilter struct {
	Search   string          `query:"search"`
	Roles    []Role          `query:"role"`
	Statuses []AccountStatus `query:"status"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && len(qf.Roles) == 0 && len(qf.Statuses) == 0
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search, true /* lower */)
}

// Match reports whether p satisfies every set field of the filter.
func (qf QueryFilter) Match(p Profile) bool {
	if qf.Search != "" && !containsFold(p.Email, qf.Search) && !containsFold(p.DisplayName, qf.Search) {
		return false
	}
	if len(qf.Roles) > 0 && !hasRole(qf.Roles, p.Role) {
		return false
	}
	if len(qf.Statuses) > 0 && !hasStatus(qf.Statuses, p.AccountStatus) {
		return false
	}
	return true
}
