package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolgate/core"
	"github.com/trezcool/schoolgate/core/profile"
)

const profileColumns = "id, email, display_name, role, account_status, created_at, updated_at"

type (
	profileRow struct {
		ID            string      `db:"id"`
		Email         string      `db:"email"`
		DisplayName   string      `db:"display_name"`
		Role          string      `db:"role"`
		AccountStatus null.String `db:"account_status"`
		CreatedAt     time.Time   `db:"created_at"`
		UpdatedAt     time.Time   `db:"updated_at"`
	}

	profileRepository struct {
		db *sqlx.DB
	}
)

var _ profile.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(db *sqlx.DB) profile.Repository {
	return &profileRepository{db: db}
}

func (repo profileRepository) row(p profile.Profile) profileRow {
	return profileRow{
		ID:            p.ID,
		Email:         p.Email,
		DisplayName:   p.DisplayName,
		Role:          string(p.Role),
		AccountStatus: null.NewString(string(p.AccountStatus), p.AccountStatus != "" && !p.IsAdmin()),
	}
}

func (repo profileRepository) unrow(r profileRow) profile.Profile {
	return profile.Profile{
		ID:            r.ID,
		Email:         r.Email,
		DisplayName:   r.DisplayName,
		Role:          profile.Role(r.Role),
		AccountStatus: profile.AccountStatus(r.AccountStatus.String),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

// trapNoRowsErr maps psql "no rows" err to profile.ErrNotFound
func (repo profileRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return profile.ErrNotFound
	}
	return trapErr(err, msg)
}

func (repo profileRepository) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	var r profileRow
	err := repo.db.GetContext(ctx, &r, "SELECT "+profileColumns+" FROM profiles WHERE id = $1", id)
	if err != nil {
		return profile.Profile{}, repo.trapNoRowsErr(err, "finding profile")
	}
	return repo.unrow(r), nil
}

func (repo profileRepository) CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	q := `INSERT INTO profiles (id, email, display_name, role, account_status)
		VALUES (:id, :email, :display_name, :role, :account_status)
		RETURNING ` + profileColumns
	rows, err := repo.db.NamedQueryContext(ctx, q, repo.row(p))
	if err != nil {
		if pqErr, ok := isUniqueViolation(err); ok {
			if pqErr.Constraint == constraintSingleAdmin {
				return profile.Profile{}, errors.Wrap(core.ErrPermissionDenied, profile.ErrAdminExists.Error())
			}
			return profile.Profile{}, profile.ErrProfileExists
		}
		return profile.Profile{}, trapErr(err, "inserting profile")
	}
	defer func() { _ = rows.Close() }()

	var r profileRow
	if err = scanReturned(rows, &r); err != nil {
		return profile.Profile{}, trapErr(err, "inserting profile")
	}
	return repo.unrow(r), nil
}

func (repo profileRepository) UpdateProfile(ctx context.Context, id string, uu profile.UpdateProfile) (profile.Profile, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return profile.Profile{}, trapErr(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var orig profileRow
	err = tx.GetContext(ctx, &orig, "SELECT "+profileColumns+" FROM profiles WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return profile.Profile{}, repo.trapNoRowsErr(err, "finding profile")
	}

	r := repo.row(uu.Apply(repo.unrow(orig)))
	if orig.Role == string(profile.RoleAdmin) && r.Role != orig.Role {
		// admin rows stay locked until commit
		var admins []string
		err = tx.SelectContext(ctx, &admins, "SELECT id FROM profiles WHERE role = $1 FOR UPDATE", string(profile.RoleAdmin))
		if err != nil {
			return profile.Profile{}, trapErr(err, "locking admins")
		}
		if len(admins) <= 1 {
			return profile.Profile{}, errors.Wrap(core.ErrPermissionDenied, profile.ErrLastAdmin.Error())
		}
	}
	var updated profileRow
	err = tx.GetContext(ctx, &updated, `UPDATE profiles
		SET email = $2, display_name = $3, role = $4, account_status = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+profileColumns,
		id, r.Email, r.DisplayName, r.Role, r.AccountStatus,
	)
	if err != nil {
		if pqErr, ok := isUniqueViolation(err); ok && pqErr.Constraint == constraintSingleAdmin {
			return profile.Profile{}, errors.Wrap(core.ErrPermissionDenied, profile.ErrAdminExists.Error())
		}
		return profile.Profile{}, trapErr(err, "updating profile")
	}
	if err = tx.Commit(); err != nil {
		return profile.Profile{}, trapErr(err, "committing profile update")
	}
	return repo.unrow(updated), nil
}

// queryProfilesSQL builds the profile listing query of filter.
func queryProfilesSQL(filter profile.QueryFilter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	// profiles with Email or DisplayName matching the search keyword
	if filter.Search != "" {
		val := arg("%" + filter.Search + "%")
		where = append(where, "(email ILIKE "+val+" OR display_name ILIKE "+val+")")
	}
	if len(filter.Roles) > 0 {
		roles := make([]string, 0, len(filter.Roles))
		for _, r := range filter.Roles {
			roles = append(roles, string(r))
		}
		where = append(where, "role = ANY("+arg(pq.Array(roles))+")")
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		where = append(where, "account_status = ANY("+arg(pq.Array(statuses))+")")
	}

	q := "SELECT " + profileColumns + " FROM profiles"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	return q, args
}

func (repo profileRepository) QueryProfiles(ctx context.Context, filter profile.QueryFilter) ([]profile.Profile, error) {
	q, args := queryProfilesSQL(filter)
	var rows []profileRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, trapErr(err, "querying profiles")
	}
	profiles := make([]profile.Profile, 0, len(rows))
	for _, r := range rows {
		profiles = append(profiles, repo.unrow(r))
	}
	return profiles, nil
}

func (repo profileRepository) AdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM profiles WHERE role = $1)", string(profile.RoleAdmin))
	if err != nil {
		return false, trapErr(err, "checking admin existence")
	}
	return exists, nil
}
