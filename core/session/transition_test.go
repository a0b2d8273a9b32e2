package session

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/schoolgate/core"
	"github.com/trezcool/schoolgate/core/profile"
)

var (
	alice        = Identity{ID: "alice", Email: "alice@school.cd", DisplayName: "Alice"}
	aliceProfile = profile.Profile{ID: "alice", Role: profile.RoleStudent, AccountStatus: profile.StatusActive}
	errNetwork   = core.NewTransportError("get profile", errors.New("connection reset"))
)

// run applies events in order, feeding nothing back.
func run(s Session, events ...Event) (Session, Effect) {
	var eff Effect
	for _, ev := range events {
		s, eff = Transition(s, ev)
	}
	return s, eff
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name       string
		events     []Event
		wantPhase  Phase
		wantEffect string
		check      func(t *testing.T, s Session)
	}{
		{
			name:       "provider reports signed out at start",
			events:     []Event{SignedOut{}},
			wantPhase:  PhaseInitializing,
			wantEffect: "check_admin",
		},
		{
			name:      "signed out, no admin",
			events:    []Event{SignedOut{}, AdminChecked{Epoch: 1, Exists: false}},
			wantPhase: PhaseBootstrapRequired,
			check: func(t *testing.T, s Session) {
				assert.True(t, s.BootstrapRequired)
				assert.Nil(t, s.Identity)
			},
		},
		{
			name:      "signed out, admin exists",
			events:    []Event{SignedOut{}, AdminChecked{Epoch: 1, Exists: true}},
			wantPhase: PhaseSignedOut,
		},
		{
			name:       "signed in",
			events:     []Event{SignedIn{Identity: alice}},
			wantPhase:  PhaseInitializing,
			wantEffect: "check_admin",
		},
		{
			name:       "signed in, admin exists",
			events:     []Event{SignedIn{Identity: alice}, AdminChecked{Epoch: 1, Exists: true}},
			wantPhase:  PhaseAwaitingProfile,
			wantEffect: "fetch_profile",
		},
		{
			name:      "signed in, no admin",
			events:    []Event{SignedIn{Identity: alice}, AdminChecked{Epoch: 1}},
			wantPhase: PhaseBootstrapRequired,
			check: func(t *testing.T, s Session) {
				assert.Equal(t, "alice", s.Identity.ID)
			},
		},
		{
			name:      "admin check fails closed",
			events:    []Event{SignedIn{Identity: alice}, AdminChecked{Epoch: 1, Err: errNetwork}},
			wantPhase: PhaseError,
			check: func(t *testing.T, s Session) {
				assert.Equal(t, profile.ErrBootstrapCheckFailed, errors.Cause(s.Err))
				assert.False(t, s.BootstrapRequired)
			},
		},
		{
			name: "profile loaded",
			events: []Event{
				SignedIn{Identity: alice},
				AdminChecked{Epoch: 1, Exists: true},
				ProfileLoaded{Epoch: 1, IdentityID: "alice", Profile: aliceProfile},
			},
			wantPhase: PhaseReady,
			check: func(t *testing.T, s Session) {
				assert.Equal(t, aliceProfile, *s.Profile)
			},
		},
		{
			name: "profile not found is provisioned",
			events: []Event{
				SignedIn{Identity: alice},
				AdminChecked{Epoch: 1, Exists: true},
				ProfileLoaded{Epoch: 1, IdentityID: "alice", Err: errors.Wrap(profile.ErrNotFound, "get")},
			},
			wantPhase:  PhaseAwaitingProfile,
			wantEffect: "create_profile",
		},
		{
			name: "profile created",
			events: []Event{
				SignedIn{Identity: alice},
				AdminChecked{Epoch: 1, Exists: true},
				ProfileLoaded{Epoch: 1, IdentityID: "alice", Err: profile.ErrNotFound},
				ProfileCreated{Epoch: 1, IdentityID: "alice", Profile: aliceProfile},
			},
			wantPhase: PhaseReady,
		},
		{
			name: "profile created concurrently",
			events: []Event{
				SignedIn{Identity: alice},
				AdminChecked{Epoch: 1, Exists: true},
				ProfileLoaded{Epoch: 1, IdentityID: "alice", Err: profile.ErrNotFound},
				ProfileCreated{Epoch: 1, IdentityID: "alice", Err: profile.ErrProfileExists},
			},
			wantPhase:  PhaseAwaitingProfile,
			wantEffect: "fetch_profile",
		},
		{
			name: "fetch failure is retried once",
			events: []Event{
				SignedIn{Identity: alice},
				AdminChecked{Epoch: 1, Exists: true},
				ProfileLoaded{Epoch: 1, IdentityID: "alice", Err: errNetwork},
			},
			wantPhase:  PhaseAwaitingProfile,
			wantEffect: "fetch_profile",
			check: func(t *testing.T, s Session) {
				assert.Equal(t, errNetwork, s.Err)
			},
		},
		{
			name: "second fetch failure is terminal",
			events: []Event{
				SignedIn{Identity: alice},
				AdminChecked{Epoch: 1, Exists: true},
				ProfileLoaded{Epoch: 1, IdentityID: "alice", Err: errNetwork},
				ProfileLoaded{Epoch: 1, IdentityID: "alice", Err: errNetwork},
			},
			wantPhase: PhaseError,
			check: func(t *testing.T, s Session) {
				assert.True(t, core.IsTransport(s.Err))
				assert.Nil(t, s.Profile)
			},
		},
		{
			name: "retry succeeds",
			events: []Event{
				SignedIn{Identity: alice},
				AdminChecked{Epoch: 1, Exists: true},
				ProfileLoaded{Epoch: 1, IdentityID: "alice", Err: errNetwork},
				ProfileLoaded{Epoch: 1, IdentityID: "alice", Profile: aliceProfile},
			},
			wantPhase: PhaseReady,
			check: func(t *testing.T, s Session) {
				assert.NoError(t, s.Err)
			},
		},
		{
			name: "refresh from error",
			events: []Event{
				SignedIn{Identity: alice},
				AdminChecked{Epoch: 1, Err: errNetwork},
				Refresh{},
			},
			wantPhase:  PhaseInitializing,
			wantEffect: "check_admin",
			check: func(t *testing.T, s Session) {
				assert.NoError(t, s.Err)
				assert.Equal(t, uint64(2), s.Epoch())
			},
		},
		{
			name: "signed out from ready",
			events: []Event{
				SignedIn{Identity: alice},
				AdminChecked{Epoch: 1, Exists: true},
				ProfileLoaded{Epoch: 1, IdentityID: "alice", Profile: aliceProfile},
				SignedOut{},
			},
			wantPhase: PhaseSignedOut,
			check: func(t *testing.T, s Session) {
				assert.Nil(t, s.Identity)
				assert.Nil(t, s.Profile)
			},
		},
		{
			name: "sign out completes with a known admin",
			events: []Event{
				SignedOut{},
				AdminChecked{Epoch: 1, Exists: true},
				SignOutCompleted{},
			},
			wantPhase: PhaseSignedOut,
		},
		{
			name: "sign out completes before any admin",
			events: []Event{
				SignedIn{Identity: alice},
				AdminChecked{Epoch: 1},
				SignedOut{},
				SignOutCompleted{},
			},
			wantPhase:  PhaseInitializing,
			wantEffect: "check_admin",
		},
		{
			name:      "sign out completed ignored outside signed out",
			events:    []Event{SignedIn{Identity: alice}, SignOutCompleted{}},
			wantPhase: PhaseInitializing,
		},
		{
			name: "stale profile is discarded",
			events: []Event{
				SignedIn{Identity: alice},
				AdminChecked{Epoch: 1, Exists: true},
				SignedIn{Identity: Identity{ID: "bob"}},
				ProfileLoaded{Epoch: 1, IdentityID: "alice", Profile: aliceProfile},
			},
			wantPhase: PhaseAwaitingProfile,
			check: func(t *testing.T, s Session) {
				assert.Equal(t, "bob", s.Identity.ID)
				assert.Nil(t, s.Profile)
			},
		},
		{
			name: "result for another identity is discarded",
			events: []Event{
				SignedIn{Identity: alice},
				AdminChecked{Epoch: 1, Exists: true},
				ProfileLoaded{Epoch: 1, IdentityID: "bob", Profile: aliceProfile},
			},
			wantPhase: PhaseAwaitingProfile,
		},
		{
			name: "stale admin check is discarded",
			events: []Event{
				SignedIn{Identity: alice},
				SignedOut{},
				AdminChecked{Epoch: 1},
			},
			wantPhase: PhaseInitializing,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, eff := run(New(), tt.events...)
			assert.Equal(t, tt.wantPhase, s.Phase)
			var effName string
			if eff != nil {
				effName = eff.effectName()
			}
			assert.Equal(t, tt.wantEffect, effName)
			if s.Phase == PhaseReady {
				assert.NotNil(t, s.Profile)
			}
			if tt.check != nil {
				tt.check(t, s)
			}
		})
	}
}

func TestTransition_BootstrapNeverReentered(t *testing.T) {
	s, _ := run(New(), SignedIn{Identity: alice}, AdminChecked{Epoch: 1, Exists: true})
	assert.True(t, s.adminKnown)

	// a brand-new identity signs in afterwards: no admin check, straight to its profile
	s, eff := run(s, SignedOut{}, SignOutCompleted{}, SignedIn{Identity: Identity{ID: "newcomer"}})
	assert.Equal(t, PhaseAwaitingProfile, s.Phase)
	assert.Equal(t, FetchProfile{Epoch: s.Epoch(), IdentityID: "newcomer"}, eff)

	// even a late "no admin" answer cannot flip the session back
	s, _ = Transition(s, AdminChecked{Epoch: s.Epoch(), Exists: false})
	assert.NotEqual(t, PhaseBootstrapRequired, s.Phase)
	s, _ = Transition(s, Refresh{})
	assert.NotEqual(t, PhaseBootstrapRequired, s.Phase)
}

func TestTransition_DoesNotMutateInput(t *testing.T) {
	s, _ := run(New(),
		SignedIn{Identity: alice},
		AdminChecked{Epoch: 1, Exists: true},
		ProfileLoaded{Epoch: 1, IdentityID: "alice", Profile: aliceProfile},
	)
	next, _ := Transition(s, SignedOut{})
	assert.Equal(t, PhaseReady, s.Phase)
	assert.Equal(t, "alice", s.Identity.ID)
	assert.Equal(t, PhaseSignedOut, next.Phase)
}
