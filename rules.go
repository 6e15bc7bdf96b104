package sentinel

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// Columns that additional fields may map onto. Anything else lands in metadata.
const (
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
)

var (
	alphaSpacesRx = regexp.MustCompile(`^[\pL\s]+$`)
	alphaDashRx   = regexp.MustCompile(`^[\pL\pN_-]+$`)
)

// fieldSpec is a compiled additional user field.
type fieldSpec struct {
	name      string
	required  bool
	rules     []validation.Rule
	normalize func(string) string
}

// fieldAllowList is the set of additional fields a Service accepts.
type fieldAllowList map[string]fieldSpec

func (l fieldAllowList) names() []string {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// compileFieldRules turns the configured field → rule string map into an
// allow-list. Rules are separated by "|", parameters follow a ":".
func compileFieldRules(fields map[string]string) (fieldAllowList, error) {
	list := fieldAllowList{}
	for name, expr := range fields {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		spec, err := compileField(name, expr)
		if err != nil {
			return nil, err
		}
		list[name] = spec
	}
	return list, nil
}

func compileField(name, expr string) (fieldSpec, error) {
	spec := fieldSpec{name: name}
	for _, raw := range strings.Split(expr, "|") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		rule, param, _ := strings.Cut(raw, ":")
		switch rule {
		case "required":
			spec.required = true
			spec.rules = append(spec.rules, validation.Required)
		case "alpha":
			spec.rules = append(spec.rules, is.Alpha)
		case "alpha_num":
			spec.rules = append(spec.rules, is.Alphanumeric)
		case "alpha_spaces":
			spec.rules = append(spec.rules, validation.Match(alphaSpacesRx).Error("may only contain letters and spaces"))
		case "alpha_dash":
			spec.rules = append(spec.rules, validation.Match(alphaDashRx).Error("may only contain letters, numbers, dashes and underscores"))
		case "digits":
			spec.rules = append(spec.rules, is.Digit)
		case "numeric":
			spec.rules = append(spec.rules, is.Float)
		case "email":
			spec.rules = append(spec.rules, is.Email)
		case "url":
			spec.rules = append(spec.rules, is.URL)
		case "min", "max":
			n, err := strconv.Atoi(param)
			if err != nil || n < 0 {
				return spec, withMeta(ErrUnknownFieldRule, map[string]any{"field": name, "rule": raw})
			}
			if rule == "min" {
				spec.rules = append(spec.rules, validation.Length(n, 0))
			} else {
				spec.rules = append(spec.rules, validation.Length(0, n))
			}
		case "phone":
			region := strings.ToUpper(strings.TrimSpace(param))
			if region == "" {
				region = "US"
			}
			spec.rules = append(spec.rules, validation.By(phoneRule(region)))
			spec.normalize = phoneNormalizer(region)
		default:
			return spec, withMeta(ErrUnknownFieldRule, map[string]any{"field": name, "rule": raw})
		}
	}
	return spec, nil
}

func phoneRule(region string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		num, err := phonenumbers.Parse(s, region)
		if err != nil || !phonenumbers.IsValidNumber(num) {
			return errors.New("must be a valid phone number")
		}
		return nil
	}
}

func phoneNormalizer(region string) func(string) string {
	return func(s string) string {
		num, err := phonenumbers.Parse(s, region)
		if err != nil {
			return s
		}
		return phonenumbers.Format(num, phonenumbers.E164)
	}
}

// extract validates the allowed fields present in input and returns their
// normalized values. With requireAll set, missing required fields fail too.
// Fields outside the allow-list are ignored.
func (l fieldAllowList) extract(in Input, requireAll bool) (map[string]string, map[string]string) {
	values := map[string]string{}
	problems := map[string]string{}

	for _, name := range l.names() {
		spec := l[name]
		if !in.Has(name) && !(requireAll && spec.required) {
			continue
		}

		value := in.String(name)
		if err := validation.Validate(value, spec.rules...); err != nil {
			problems[name] = err.Error()
			continue
		}

		if spec.normalize != nil && value != "" {
			value = spec.normalize(value)
		}
		values[name] = value
	}

	return values, problems
}

// applyFields copies extracted values onto the user.
func applyFields(user *User, values map[string]string) {
	for name, value := range values {
		switch name {
		case FieldFirstName:
			user.FirstName = value
		case FieldLastName:
			user.LastName = value
		default:
			if value == "" {
				if user.Metadata != nil {
					delete(user.Metadata, name)
				}
				continue
			}
			user.AddMetadata(name, value)
		}
	}
}

func describeFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, fields[k]))
	}
	return strings.Join(parts, "; ")
}
