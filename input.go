package sentinel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Input keys understood by the Service.
const (
	InputID          = "id"
	InputEmail       = "email"
	InputUsername    = "username"
	InputLogin       = "login"
	InputPassword    = "password"
	InputActivate    = "activate"
	InputUseHashid   = "use_hashid"
	InputOldPassword = "oldPassword"
	InputNewPassword = "newPassword"
)

// Input is the raw key/value payload handed to lifecycle operations, as it
// would arrive from a form or a CLI.
type Input map[string]any

// Has reports whether key was provided.
func (in Input) Has(key string) bool {
	_, ok := in[key]
	return ok
}

// String returns the value under key as a trimmed string.
func (in Input) String(key string) string {
	v, ok := in[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Raw returns the untrimmed value, used for passwords.
func (in Input) Raw(key string) string {
	v, ok := in[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Bool interprets the value under key as a flag. Form style values such as
// "1", "on" and "yes" count as true.
func (in Input) Bool(key string) bool {
	v, ok := in[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	}
	s := strings.ToLower(in.String(key))
	switch s {
	case "on", "yes", "y":
		return true
	}
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

// UUID parses the value under key.
func (in Input) UUID(key string) (uuid.UUID, error) {
	v, ok := in[key]
	if !ok || v == nil {
		return uuid.Nil, fmt.Errorf("missing %s", key)
	}
	switch t := v.(type) {
	case uuid.UUID:
		return t, nil
	case *uuid.UUID:
		if t == nil {
			return uuid.Nil, fmt.Errorf("missing %s", key)
		}
		return *t, nil
	}
	return uuid.Parse(in.String(key))
}
