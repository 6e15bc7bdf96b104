// Package featuregate derives go-featuregate actor claims from the sentinel
// user and actor carried by a context.
package featuregate

import (
	"context"
	"slices"

	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-sentinel"
)

// UserExtractor returns the user that claims are derived from.
type UserExtractor func(context.Context) (*sentinel.User, bool)

// RoleMapper builds role identifiers from a user.
type RoleMapper func(user *sentinel.User) []string

// PermMapper builds permission identifiers from a user.
type PermMapper func(user *sentinel.User) []string

// Option customizes ClaimsProvider behavior.
type Option func(*ClaimsProvider)

// ClaimsProvider derives feature claims from the user in context. Group names
// become roles and group permissions become perms.
type ClaimsProvider struct {
	extractor  UserExtractor
	roleMapper RoleMapper
	permMapper PermMapper
}

func NewClaimsProvider(opts ...Option) *ClaimsProvider {
	provider := &ClaimsProvider{}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	if provider.extractor == nil {
		provider.extractor = sentinel.FromContext
	}
	if provider.roleMapper == nil {
		provider.roleMapper = groupRoles
	}
	if provider.permMapper == nil {
		provider.permMapper = groupPerms
	}
	return provider
}

// WithUserExtractor overrides where the user is read from.
func WithUserExtractor(extractor UserExtractor) Option {
	return func(provider *ClaimsProvider) {
		provider.extractor = extractor
	}
}

func WithRoleMapper(mapper RoleMapper) Option {
	return func(provider *ClaimsProvider) {
		provider.roleMapper = mapper
	}
}

func WithPermMapper(mapper PermMapper) Option {
	return func(provider *ClaimsProvider) {
		provider.permMapper = mapper
	}
}

// ClaimsFromContext implements gate.ClaimsProvider.
func (p *ClaimsProvider) ClaimsFromContext(ctx context.Context) (gate.ActorClaims, error) {
	if p == nil || p.extractor == nil {
		return gate.ActorClaims{}, nil
	}
	user, ok := p.extractor(ctx)
	if !ok || user == nil {
		return gate.ActorClaims{}, nil
	}
	return claimsFromUser(user, p.roleMapper, p.permMapper), nil
}

// ClaimsFromUser builds ActorClaims using the default mappers.
func ClaimsFromUser(user *sentinel.User) gate.ActorClaims {
	return claimsFromUser(user, groupRoles, groupPerms)
}

func claimsFromUser(user *sentinel.User, roleMapper RoleMapper, permMapper PermMapper) gate.ActorClaims {
	if user == nil {
		return gate.ActorClaims{}
	}
	claims := gate.ActorClaims{SubjectID: user.ID.String()}
	if roleMapper != nil {
		claims.Roles = roleMapper(user)
	}
	if permMapper != nil {
		claims.Perms = permMapper(user)
	}
	return claims
}

func groupRoles(user *sentinel.User) []string {
	if user == nil || len(user.Groups) == 0 {
		return nil
	}
	roles := make([]string, 0, len(user.Groups))
	for _, g := range user.Groups {
		if g != nil && g.Name != "" {
			roles = append(roles, g.Name)
		}
	}
	slices.Sort(roles)
	if len(roles) == 0 {
		return nil
	}
	return roles
}

func groupPerms(user *sentinel.User) []string {
	perms := user.Permissions()
	if len(perms) == 0 {
		return nil
	}
	return perms
}

// PermissionProvider merges claim perms with the permissions of the user in
// context.
type PermissionProvider struct {
	extractor UserExtractor
}

func NewPermissionProvider(extractor UserExtractor) *PermissionProvider {
	if extractor == nil {
		extractor = sentinel.FromContext
	}
	return &PermissionProvider{extractor: extractor}
}

// Permissions implements gate.PermissionProvider.
func (p *PermissionProvider) Permissions(ctx context.Context, claims gate.ActorClaims) ([]string, error) {
	if p == nil || p.extractor == nil {
		return claims.Perms, nil
	}
	user, ok := p.extractor(ctx)
	if !ok || user == nil {
		return claims.Perms, nil
	}
	return mergePerms(claims.Perms, groupPerms(user)), nil
}

func mergePerms(existing, derived []string) []string {
	if len(existing) == 0 && len(derived) == 0 {
		return nil
	}
	merged := make([]string, 0, len(existing)+len(derived))
	for _, p := range append(append([]string(nil), existing...), derived...) {
		if !slices.Contains(merged, p) {
			merged = append(merged, p)
		}
	}
	return merged
}

// ActorRefFromContext converts the sentinel actor in ctx into a gate actor.
func ActorRefFromContext(ctx context.Context) (gate.ActorRef, bool) {
	actor, ok := sentinel.ActorFromContext(ctx)
	if !ok {
		return gate.ActorRef{}, false
	}
	return gate.ActorRef{ID: actor.ID, Type: actor.Type}, true
}

var _ gate.ClaimsProvider = (*ClaimsProvider)(nil)
var _ gate.PermissionProvider = (*PermissionProvider)(nil)
