package dummydb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolgate/core"
	"github.com/trezcool/schoolgate/core/profile"
)

type profileRepository struct {
	db *profileTable
}

var _ profile.Repository = (*profileRepository)(nil) // interface compliance check

func NewProfileRepository(db *DB) profile.Repository {
	return &profileRepository{db: db.profiles}
}

func (repo *profileRepository) query() []profile.Profile {
	profiles := make([]profile.Profile, 0, len(repo.db.table))
	for _, p := range repo.db.table {
		profiles = append(profiles, *p)
	}
	return profiles
}

func (repo *profileRepository) adminCount() int {
	n := 0
	for _, p := range repo.db.table {
		if p.IsAdmin() {
			n++
		}
	}
	return n
}

func (repo *profileRepository) adminExists() bool { return repo.adminCount() > 0 }

func (repo *profileRepository) GetProfile(_ context.Context, id string) (profile.Profile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.table[id]; ok {
		return *p, nil
	}
	return profile.Profile{}, profile.ErrNotFound
}

func (repo *profileRepository) CreateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[p.ID]; ok {
		return profile.Profile{}, profile.ErrProfileExists
	}
	// store rule: no unsolicited second admin
	if p.IsAdmin() && repo.adminExists() {
		return profile.Profile{}, errors.Wrap(core.ErrPermissionDenied, profile.ErrAdminExists.Error())
	}

	ts := now()
	p.CreatedAt = ts
	p.UpdatedAt = ts
	repo.db.table[p.ID] = &p
	return p, nil
}

func (repo *profileRepository) UpdateProfile(_ context.Context, id string, uu profile.UpdateProfile) (profile.Profile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[id]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	p := uu.Apply(*orig)
	switch {
	case p.IsAdmin() && !orig.IsAdmin() && repo.adminExists():
		return profile.Profile{}, errors.Wrap(core.ErrPermissionDenied, profile.ErrAdminExists.Error())
	case orig.IsAdmin() && !p.IsAdmin() && repo.adminCount() <= 1:
		return profile.Profile{}, errors.Wrap(core.ErrPermissionDenied, profile.ErrLastAdmin.Error())
	}
	p.ID = orig.ID
	p.CreatedAt = orig.CreatedAt
	p.UpdatedAt = now()
	repo.db.table[id] = &p
	return p, nil
}

func (repo *profileRepository) QueryProfiles(_ context.Context, filter profile.QueryFilter) ([]profile.Profile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	profiles := make([]profile.Profile, 0)
	for _, p := range repo.query() {
		if filter.Match(p) {
			profiles = append(profiles, p)
		}
	}
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].CreatedAt.Equal(profiles[j].CreatedAt) {
			return profiles[i].ID > profiles[j].ID
		}
		return profiles[i].CreatedAt.After(profiles[j].CreatedAt)
	})
	return profiles, nil
}

func (repo *profileRepository) AdminExists(_ context.Context) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.adminExists(), nil
}
