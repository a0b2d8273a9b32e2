package session

import (
	"encoding/json"

	"github.com/trezcool/schoolgate/core/profile"
)

// Identity is the principal authenticated by the external identity provider.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

type Phase string

const (
	PhaseInitializing      Phase = "initializing"
	PhaseAwaitingProfile   Phase = "awaiting_profile"
	PhaseReady             Phase = "ready"
	PhaseSignedOut         Phase = "signed_out"
	PhaseBootstrapRequired Phase = "bootstrap_required"
	PhaseError             Phase = "error"
)

var AllPhases = []Phase{
	PhaseInitializing,
	PhaseAwaitingProfile,
	PhaseReady,
	PhaseSignedOut,
	PhaseBootstrapRequired,
	PhaseError,
}

// Session is the authorized-session value. It is passed explicitly to whoever needs it.
//
// Phase Ready implies Profile != nil. Phase BootstrapRequired only reflects the last admin check.
type Session struct {
	Identity          *Identity
	Profile           *profile.Profile
	BootstrapRequired bool
	Phase             Phase
	Err               error

	epoch      uint64 // bumped by every provider event; effect results carry the epoch they were issued for
	retried    bool   // a failed profile fetch was already retried
	adminKnown bool   // an admin was observed once; bootstrap mode is never re-entered
}

// New returns the session of a freshly started process.
func New() Session {
	return Session{Phase: PhaseInitializing}
}

func (s Session) Epoch() uint64 { return s.epoch }

// copy returns s with its pointers detached from the original.
func (s Session) copy() Session {
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	if s.Profile != nil {
		p := *s.Profile
		s.Profile = &p
	}
	return s
}

type sessionJSON struct {
	Phase             Phase            `json:"phase"`
	Identity          *Identity        `json:"identity"`
	Profile           *profile.Profile `json:"profile"`
	BootstrapRequired bool             `json:"bootstrap_required"`
	Error             string           `json:"error,omitempty"`
}

func (s Session) MarshalJSON() ([]byte, error) {
	out := sessionJSON{
		Phase:             s.Phase,
		Identity:          s.Identity,
		Profile:           s.Profile,
		BootstrapRequired: s.BootstrapRequired,
	}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return json.Marshal(out)
}
