// Package validation holds the struct-tag rules shared by gin binding and
// the services, so a request rejected over HTTP is rejected the same way
// when a service is called directly.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"ispmanager/internal/model"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	roleNamePattern       = regexp.MustCompile(`^[a-zA-Z_]+$`)
	permissionNamePattern = regexp.MustCompile(`^[a-zA-Z_.:]+$`)
	usernamePattern       = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the process-wide validator reading `binding` tags.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New()
		v.SetTagName("binding")
		register(v)
		instance = v
	})
	return instance
}

// RegisterGin installs the custom rules on gin's binding engine.
func RegisterGin() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected gin validator engine %T", binding.Validator.Engine())
	}
	register(v)
	return nil
}

// Struct validates s against its binding tags.
func Struct(s interface{}) error {
	return Validator().Struct(s)
}

func register(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("rolename", func(fl validator.FieldLevel) bool {
		return roleNamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("permname", func(fl validator.FieldLevel) bool {
		return permissionNamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("permaction", func(fl validator.FieldLevel) bool {
		action := fl.Field().String()
		for _, a := range model.PermissionActions {
			if a == action {
				return true
			}
		}
		return false
	})
}

// Messages flattens validator errors into field -> message pairs.
func Messages(err error) map[string]string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		out[toSnake(fe.Field())] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "email":
		return "must be a valid email"
	case "rolename":
		return "may contain only letters and underscores"
	case "permname":
		return "may contain only letters, underscores, dots and colons"
	case "username":
		return "may contain only letters, numbers and underscores"
	case "permaction":
		return "must be one of " + strings.Join(model.PermissionActions, ", ")
	case "gte":
		return "must be at least " + fe.Param()
	}
	return "is invalid"
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
