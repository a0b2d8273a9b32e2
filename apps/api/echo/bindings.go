package echoapi

import (
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolgate/core"
	"github.com/trezcool/schoolgate/core/access"
	"github.com/trezcool/schoolgate/core/paging"
	"github.com/trezcool/schoolgate/core/profile"
	"github.com/trezcool/schoolgate/core/session"
)

type (
	NewSessionRequest struct {
		// SignedIn reports the identity provider's initial state; false settles the session as signed out.
		SignedIn *bool `json:"signed_in"`
	}

	SessionResponse struct {
		ID      string          `json:"id"`
		Session session.Session `json:"session"`
		// Routes lists the dashboard areas the session may navigate to.
		Routes []access.Route `json:"routes,omitempty"`
	}

	AccessRequest struct {
		Path string `query:"path" validate:"required,notblank"`
	}

	SetupAdminRequest struct {
		DisplayName string `json:"display_name"`
	}

	PageRequest struct {
		Direction string `query:"direction" validate:"omitempty,oneof=first next prev"`
		PageSize  int    `query:"page_size" validate:"omitempty,min=1"`
	}

	PageResponse struct {
		Collection string `json:"collection"`
		paging.Result
	}

	PatchProfileRequest struct {
		Role          *profile.Role          `json:"role" validate:"omitempty,role"`
		AccountStatus *profile.AccountStatus `json:"account_status" validate:"omitempty,accountstatus"`
	}
)

func (r *AccessRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

// Validate checks the request and fills in the configured defaults.
func (r *PageRequest) Validate(validate *validator.Validate, conf core.PagingConfig) error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if r.Direction == "" {
		r.Direction = paging.First.String()
	}
	if r.PageSize == 0 {
		r.PageSize = conf.DefaultPageSize
	}
	if r.PageSize > conf.MaxPageSize {
		return core.NewValidationError(nil, core.FieldError{
			Field: "page_size",
			Error: "page_size must be at most " + strconv.Itoa(conf.MaxPageSize),
		})
	}
	return nil
}

func (r *PatchProfileRequest) Validate(validate *validator.Validate) error {
	if r.Role == nil && r.AccountStatus == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: "nothing to update"})
	}
	return validate.Struct(r)
}
