package session

import "github.com/trezcool/schoolgate/core/profile"

type (
	// Event is anything that moves the state machine: identity-provider callbacks,
	// explicit user requests and the completion of effects.
	Event interface {
		eventName() string
	}

	SignedIn struct {
		Identity Identity
	}

	SignedOut struct{}

	SignOutCompleted struct{}

	// Refresh restarts the sign-in sequence for the current identity, e.g. after the first admin was created
	// or to retry from the Error phase.
	Refresh struct{}

	AdminChecked struct {
		Epoch  uint64
		Exists bool
		Err    error
	}

	ProfileLoaded struct {
		Epoch      uint64
		IdentityID string
		Profile    profile.Profile
		Err        error
	}

	ProfileCreated struct {
		Epoch      uint64
		IdentityID string
		Profile    profile.Profile
		Err        error
	}
)

func (SignedIn) eventName() string         { return "signed_in" }
func (SignedOut) eventName() string        { return "signed_out" }
func (SignOutCompleted) eventName() string { return "sign_out_completed" }
func (Refresh) eventName() string          { return "refresh" }
func (AdminChecked) eventName() string     { return "admin_checked" }
func (ProfileLoaded) eventName() string    { return "profile_loaded" }
func (ProfileCreated) eventName() string   { return "profile_created" }

type (
	// Effect is I/O requested by Transition. The Machine runs it and feeds the result back as an Event.
	Effect interface {
		effectName() string
	}

	CheckAdmin struct {
		Epoch uint64
	}

	FetchProfile struct {
		Epoch      uint64
		IdentityID string
	}

	CreateProfile struct {
		Epoch    uint64
		Identity Identity
	}
)

func (CheckAdmin) effectName() string    { return "check_admin" }
func (FetchProfile) effectName() string  { return "fetch_profile" }
func (CreateProfile) effectName() string { return "create_profile" }
