package sentinel

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every environment variable read by LoadOptions.
const EnvPrefix = "SENTINEL_"

// Config holds the account lifecycle options read when the Service is built.
type Config interface {
	GetRequireActivation() bool
	GetAllowUsernames() bool
	GetDefaultUserGroups() []string
	GetAdditionalUserFields() map[string]string
	GetDefaultPermissions() []string
	GetAttemptLimit() int
	GetSuspensionTime() time.Duration
	GetBanAfterSuspensions() int
}

// Options is the default Config implementation.
//
// AdditionalUserFields maps a field name to a rule string such as
// "required|alpha_spaces|max:50". first_name and last_name are stored in their
// own columns, every other field goes into the user metadata.
type Options struct {
	RequireActivation    bool              `env:"REQUIRE_ACTIVATION" envDefault:"true" json:"require_activation"`
	AllowUsernames       bool              `env:"ALLOW_USERNAMES" envDefault:"false" json:"allow_usernames"`
	DefaultUserGroups    []string          `env:"DEFAULT_USER_GROUPS" envDefault:"Users" envSeparator:"," json:"default_user_groups"`
	AdditionalUserFields map[string]string `env:"ADDITIONAL_USER_FIELDS" envSeparator:"," envKeyValSeparator:"=" json:"additional_user_fields"`
	DefaultPermissions   []string          `env:"DEFAULT_PERMISSIONS" envDefault:"superuser,admin,users" envSeparator:"," json:"default_permissions"`
	AttemptLimit         int               `env:"ATTEMPT_LIMIT" envDefault:"5" json:"attempt_limit"`
	SuspensionTime       time.Duration     `env:"SUSPENSION_TIME" envDefault:"15m" json:"suspension_time"`
	BanAfterSuspensions  int               `env:"BAN_AFTER_SUSPENSIONS" envDefault:"0" json:"ban_after_suspensions"`
}

// DefaultOptions mirrors the environment defaults.
func DefaultOptions() *Options {
	return &Options{
		RequireActivation:    true,
		AllowUsernames:       false,
		DefaultUserGroups:    []string{"Users"},
		AdditionalUserFields: map[string]string{},
		DefaultPermissions:   []string{PermissionSuperuser, "admin", "users"},
		AttemptLimit:         5,
		SuspensionTime:       15 * time.Minute,
	}
}

// LoadOptions reads Options from SENTINEL_* environment variables.
func LoadOptions() (*Options, error) {
	opts := &Options{}
	if err := env.ParseWithOptions(opts, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if opts.AdditionalUserFields == nil {
		opts.AdditionalUserFields = map[string]string{}
	}
	return opts, nil
}

func (o *Options) GetRequireActivation() bool { return o.RequireActivation }

func (o *Options) GetAllowUsernames() bool { return o.AllowUsernames }

func (o *Options) GetDefaultUserGroups() []string { return o.DefaultUserGroups }

func (o *Options) GetAdditionalUserFields() map[string]string { return o.AdditionalUserFields }

func (o *Options) GetDefaultPermissions() []string { return o.DefaultPermissions }

func (o *Options) GetAttemptLimit() int { return o.AttemptLimit }

func (o *Options) GetSuspensionTime() time.Duration { return o.SuspensionTime }

func (o *Options) GetBanAfterSuspensions() int { return o.BanAfterSuspensions }

var _ Config = (*Options)(nil)
