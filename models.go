package sentinel

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	Email          string         `bun:"email,notnull,unique" json:"email"`
	Username       string         `bun:"username,nullzero,unique" json:"username,omitempty"`
	FirstName      string         `bun:"first_name,nullzero" json:"first_name,omitempty"`
	LastName       string         `bun:"last_name,nullzero" json:"last_name,omitempty"`
	PasswordHash   string         `bun:"password_hash,notnull" json:"-"`
	Activated      bool           `bun:"activated,notnull" json:"activated"`
	ActivationCode string         `bun:"activation_code,nullzero" json:"-"`
	ActivatedAt    *time.Time     `bun:"activated_at,nullzero" json:"activated_at,omitempty"`
	LastLogin      *time.Time     `bun:"last_login,nullzero" json:"last_login,omitempty"`
	Metadata       map[string]any `bun:"metadata,type:text" json:"metadata,omitempty"`
	Groups         []*Group       `bun:"m2m:users_groups,join:User=Group" json:"groups,omitempty"`
	CreatedAt      *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// InGroup reports whether the user belongs to the named group.
func (u *User) InGroup(name string) bool {
	if u == nil {
		return false
	}
	for _, g := range u.Groups {
		if g != nil && g.Name == name {
			return true
		}
	}
	return false
}

// Permissions merges the permissions of every group the user belongs to.
func (u *User) Permissions() []string {
	if u == nil {
		return nil
	}
	perms := []string{}
	for _, g := range u.Groups {
		if g == nil {
			continue
		}
		for _, p := range g.Permissions {
			if !slices.Contains(perms, p) {
				perms = append(perms, p)
			}
		}
	}
	slices.Sort(perms)
	return perms
}

// HasAccess reports whether any of the user's groups grants permission.
// Groups holding "superuser" grant everything.
func (u *User) HasAccess(permission string) bool {
	perms := u.Permissions()
	return slices.Contains(perms, PermissionSuperuser) || slices.Contains(perms, permission)
}

// PermissionSuperuser grants every permission.
const PermissionSuperuser = "superuser"

// Group is a named set of permissions users can be assigned to.
type Group struct {
	bun.BaseModel `bun:"table:groups,alias:grp"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Name          string     `bun:"name,notnull,unique" json:"name"`
	Permissions   []string   `bun:"permissions,type:text" json:"permissions,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// UserGroup is the membership join row.
type UserGroup struct {
	bun.BaseModel `bun:"table:users_groups,alias:ug"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid"`
	User          *User     `bun:"rel:belongs-to,join:user_id=id"`
	GroupID       uuid.UUID `bun:"group_id,pk,type:uuid"`
	Group         *Group    `bun:"rel:belongs-to,join:group_id=id"`
}

// Throttle tracks failed logins, suspensions and bans for one user.
type Throttle struct {
	bun.BaseModel  `bun:"table:throttles,alias:thr"`
	ID             uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	UserID         uuid.UUID  `bun:"user_id,notnull,unique,type:uuid" json:"user_id"`
	Attempts       int        `bun:"attempts,notnull" json:"attempts"`
	LastAttemptAt  *time.Time `bun:"last_attempt_at,nullzero" json:"last_attempt_at,omitempty"`
	Suspended      bool       `bun:"suspended,notnull" json:"suspended"`
	SuspendedAt    *time.Time `bun:"suspended_at,nullzero" json:"suspended_at,omitempty"`
	SuspendedUntil *time.Time `bun:"suspended_until,nullzero" json:"suspended_until,omitempty"`
	Suspensions    int        `bun:"suspensions,notnull" json:"suspensions"`
	Banned         bool       `bun:"banned,notnull" json:"banned"`
	BannedAt       *time.Time `bun:"banned_at,nullzero" json:"banned_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// NewThrottle returns a clear throttle for userID.
func NewThrottle(userID uuid.UUID) *Throttle {
	return &Throttle{
		ID:     uuid.New(),
		UserID: userID,
	}
}
