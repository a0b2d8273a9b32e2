package profile

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolgate/core"
)

var (
	// errors
	ErrNotFound             = errors.New("profile not found")
	ErrProfileExists        = errors.New("a profile already exists for this identity")
	ErrBootstrapCheckFailed = errors.New("bootstrap check failed")
	ErrAdminExists          = errors.New("an administrator already exists")
	ErrLastAdmin            = errors.New("the last administrator cannot be demoted")
	errAdminHasNoStatus     = errors.New("administrators have no account status")
	errAdminViaCreate       = errors.New("administrator profiles cannot be self-provisioned")
)

type (
	// Repository is the store-side of the "users" collection.
	// Implementations stamp CreatedAt/UpdatedAt themselves and must reject (core.ErrPermissionDenied)
	// the creation of an admin profile while another admin exists, and the demotion of the last admin.
	Repository interface {
		GetProfile(ctx context.Context, id string) (Profile, error)
		CreateProfile(ctx context.Context, p Profile) (Profile, error)
		UpdateProfile(ctx context.Context, id string, uu UpdateProfile) (Profile, error)
		QueryProfiles(ctx context.Context, filter QueryFilter) ([]Profile, error)
		AdminExists(ctx context.Context) (bool, error)
	}

	// Service is the ProfileStore: typed CRUD over identity profiles plus the admin bootstrap check.
	Service struct {
		repo            Repository
		validate        *validator.Validate
		mailSvc         core.EmailService
		logger          core.Logger
		frontendBaseURL string
	}
)

func NewService(
	repo Repository,
	validate *validator.Validate,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	RegisterValidators(validate)
	if logger == nil {
		logger = core.NopLogger()
	}
	svc := &Service{
		repo:     repo,
		validate: validate,
		mailSvc:  mailSvc,
		logger:   logger,
	}
	if conf != nil {
		svc.frontendBaseURL = conf.FrontendBaseURL
	}
	return svc
}

func (svc *Service) Get(ctx context.Context, id string) (Profile, error) {
	if id == "" {
		return Profile{}, ErrNotFound
	}
	return svc.repo.GetProfile(ctx, id)
}

// Create provisions the profile of identity id. It must be called at most once per identity;
// a second call fails with ErrProfileExists.
func (svc *Service) Create(ctx context.Context, id string, np NewProfile) (Profile, error) {
	if id == "" {
		return Profile{}, core.NewValidationError(nil, core.FieldError{Field: "id", Error: "this field is required"})
	}
	np.clean()
	if err := svc.validate.Struct(np); err != nil {
		return Profile{}, err
	}
	if np.Role == RoleAdmin {
		return Profile{}, errors.Wrap(core.ErrPermissionDenied, errAdminViaCreate.Error())
	}
	return svc.repo.CreateProfile(ctx, Profile{
		ID:            id,
		Email:         np.Email,
		DisplayName:   np.DisplayName,
		Role:          np.Role,
		AccountStatus: np.AccountStatus,
	})
}

func (svc *Service) Update(ctx context.Context, id string, uu UpdateProfile) error {
	_, err := svc.update(ctx, id, uu)
	return err
}

func (svc *Service) update(ctx context.Context, id string, uu UpdateProfile) (Profile, error) {
	uu.clean()
	if err := svc.validate.Struct(uu); err != nil {
		return Profile{}, err
	}
	if uu.IsEmpty() {
		return svc.Get(ctx, id)
	}
	return svc.repo.UpdateProfile(ctx, id, uu)
}

// ExistsAdmin is the admin bootstrap check. Any failure is reported as ErrBootstrapCheckFailed;
// callers must treat it as "unknown" and not assume that no admin exists.
func (svc *Service) ExistsAdmin(ctx context.Context) (bool, error) {
	exists, err := svc.repo.AdminExists(ctx)
	if err != nil {
		svc.logger.Warn("admin bootstrap check failed", err)
		return false, errors.Wrap(ErrBootstrapCheckFailed, err.Error())
	}
	return exists, nil
}

// BootstrapAdmin self-provisions identity id as the first administrator.
// Uniqueness is ultimately enforced by the store; this check only reflects the current truth.
func (svc *Service) BootstrapAdmin(ctx context.Context, id string, np NewProfile) (Profile, error) {
	exists, err := svc.ExistsAdmin(ctx)
	if err != nil {
		return Profile{}, err
	}
	if exists {
		return Profile{}, errors.Wrap(core.ErrPermissionDenied, ErrAdminExists.Error())
	}

	np.Role = RoleAdmin
	np.clean()
	if err := svc.validate.Struct(np); err != nil {
		return Profile{}, err
	}
	usr, err := svc.repo.CreateProfile(ctx, Profile{
		ID:          id,
		Email:       np.Email,
		DisplayName: np.DisplayName,
		Role:        RoleAdmin,
	})
	if err != nil {
		return Profile{}, errors.Wrap(err, "creating first admin")
	}
	svc.logger.Info("first administrator provisioned", usr)
	return usr, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Profile, error) {
	filter.Clean()
	return svc.repo.QueryProfiles(ctx, filter)
}

// SetRole changes the role of a profile. Students and teachers without a status become active;
// admins lose their status. The last admin cannot be demoted.
func (svc *Service) SetRole(ctx context.Context, id string, role Role) (Profile, error) {
	orig, err := svc.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if orig.IsAdmin() && role != RoleAdmin {
		admins, err := svc.repo.QueryProfiles(ctx, QueryFilter{Roles: []Role{RoleAdmin}})
		if err != nil {
			return Profile{}, err
		}
		if len(admins) <= 1 {
			return Profile{}, errors.Wrap(core.ErrPermissionDenied, ErrLastAdmin.Error())
		}
	}
	uu := UpdateProfile{Role: &role}
	if role != RoleAdmin && orig.AccountStatus == "" {
		st := StatusActive
		uu.AccountStatus = &st
	}
	return svc.update(ctx, id, uu)
}

// SetStatus changes the account status of a student or teacher and notifies them by email.
func (svc *Service) SetStatus(ctx context.Context, id string, status AccountStatus) (Profile, error) {
	orig, err := svc.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if orig.IsAdmin() {
		return Profile{}, core.NewValidationError(errAdminHasNoStatus, core.FieldError{
			Field: "account_status",
			Error: errAdminHasNoStatus.Error(),
		})
	}
	usr, err := svc.update(ctx, id, UpdateProfile{AccountStatus: &status})
	if err != nil {
		return Profile{}, err
	}
	if orig.AccountStatus != usr.AccountStatus {
		svc.notifyStatusChange(usr)
	}
	return usr, nil
}

func (svc *Service) notifyStatusChange(usr Profile) {
	if svc.mailSvc == nil || usr.Email == "" {
		return
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.DisplayName, Address: usr.Email}},
		Subject:      fmt.Sprintf("Your account is now %s", usr.AccountStatus.Label()),
		TemplateName: accountStatusTemplate,
		TemplateData: map[string]interface{}{
			"Name":   usr.DisplayName,
			"Role":   usr.Role.Label(),
			"Status": usr.AccountStatus.Label(),
		},
	}
	svc.mailSvc.SendMessages(msg)
}

const accountStatusTemplate = "account_status"

func init() {
	err := core.RegisterEmailTemplate(
		accountStatusTemplate,
		`Hello {{with .Data.Name}}{{.}}{{else}}there{{end}},

Your {{.Data.Role}} account status has been changed to: {{.Data.Status}}.

{{.FrontendBaseURL}}/login
`,
		`<p>Hello {{with .Data.Name}}{{.}}{{else}}there{{end}},</p>
<p>Your {{.Data.Role}} account status has been changed to: <strong>{{.Data.Status}}</strong>.</p>
<p><a href="{{.FrontendBaseURL}}/login">Sign in</a></p>
`)
	if err != nil {
		panic(err)
	}
}
