package profile

import (
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolgate/core"
)

var (
	roleTag  = "role"
	roleText = "invalid role"

	accountStatusTag  = "accountstatus"
	accountStatusText = "invalid account status"
)

// RegisterValidators registers the profile validation tags on validate.
func RegisterValidators(validate *validator.Validate) {
	_ = validate.RegisterValidation(roleTag, roleValidation)
	_ = validate.RegisterValidation(accountStatusTag, accountStatusValidation)
}

// RegisterTranslations registers the messages of the profile validation tags.
func RegisterTranslations(validate *validator.Validate, translator ut.Translator) {
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)
	core.RegisterCustomTranslation(validate, translator, accountStatusTag, accountStatusText)
}

// Custom Validators

// roleValidation checks that the role is one of AllRoles
func roleValidation(fl validator.FieldLevel) bool {
	return Role(fl.Field().String()).Valid()
}

// accountStatusValidation checks that the status is one of AllStatuses
func accountStatusValidation(fl validator.FieldLevel) bool {
	return AccountStatus(fl.Field().String()).Valid()
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}

func hasRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func hasStatus(statuses []AccountStatus, status AccountStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
