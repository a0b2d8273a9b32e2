package session

import (
	"github.com/pkg/errors"

	"github.com/trezcool/schoolgate/core/profile"
)

// Transition is the pure transition function of the session state machine.
// It returns the next session and the effect to run, if any. Results of effects issued
// for an older epoch are ignored.
func Transition(s Session, ev Event) (Session, Effect) {
	s = s.copy()

	switch ev := ev.(type) {
	case SignedIn:
		id := ev.Identity
		s = reset(s)
		s.Identity = &id
		return begin(s)

	case SignedOut:
		wasSettled := s.Phase == PhaseReady || s.Phase == PhaseBootstrapRequired || s.Phase == PhaseSignedOut
		s = reset(s)
		s.Identity = nil
		if wasSettled {
			s.Phase = PhaseSignedOut
			return s, nil
		}
		// the provider reported its initial state, or superseded a pending sign-in
		return begin(s)

	case SignOutCompleted:
		if s.Phase != PhaseSignedOut {
			return s, nil
		}
		s = reset(s)
		return begin(s)

	case Refresh:
		s = reset(s)
		return begin(s)

	case AdminChecked:
		if ev.Epoch != s.epoch || s.Phase != PhaseInitializing {
			return s, nil
		}
		if ev.Err != nil {
			// fail closed: never assume that no admin exists
			return fail(s, errors.Wrap(profile.ErrBootstrapCheckFailed, ev.Err.Error())), nil
		}
		if ev.Exists {
			s.adminKnown = true
		}
		return afterAdminCheck(s, ev.Exists)

	case ProfileLoaded:
		if !s.awaiting(ev.Epoch, ev.IdentityID) {
			return s, nil
		}
		if ev.Err == nil {
			return ready(s, ev.Profile), nil
		}
		if isNotFound(ev.Err) {
			return s, CreateProfile{Epoch: s.epoch, Identity: *s.Identity}
		}
		return retry(s, ev.Err)

	case ProfileCreated:
		if !s.awaiting(ev.Epoch, ev.IdentityID) {
			return s, nil
		}
		if ev.Err == nil {
			return ready(s, ev.Profile), nil
		}
		if errors.Cause(ev.Err) == profile.ErrProfileExists {
			// created concurrently by another session of the same identity
			return s, FetchProfile{Epoch: s.epoch, IdentityID: s.Identity.ID}
		}
		return retry(s, ev.Err)
	}

	return s, nil
}

// reset starts a new epoch, dropping everything but the identity and what is known about admins.
func reset(s Session) Session {
	s.epoch++
	s.Profile = nil
	s.BootstrapRequired = false
	s.Err = nil
	s.retried = false
	return s
}

// begin runs the admin bootstrap check, skipped once an admin is known to exist.
func begin(s Session) (Session, Effect) {
	if s.adminKnown {
		return afterAdminCheck(s, true)
	}
	s.Phase = PhaseInitializing
	return s, CheckAdmin{Epoch: s.epoch}
}

func afterAdminCheck(s Session, adminExists bool) (Session, Effect) {
	switch {
	case !adminExists:
		s.Phase = PhaseBootstrapRequired
		s.BootstrapRequired = true
		return s, nil
	case s.Identity == nil:
		s.Phase = PhaseSignedOut
		return s, nil
	}
	s.Phase = PhaseAwaitingProfile
	return s, FetchProfile{Epoch: s.epoch, IdentityID: s.Identity.ID}
}

func (s Session) awaiting(epoch uint64, identityID string) bool {
	return epoch == s.epoch &&
		s.Phase == PhaseAwaitingProfile &&
		s.Identity != nil &&
		s.Identity.ID == identityID
}

func ready(s Session, p profile.Profile) Session {
	s.Phase = PhaseReady
	s.Profile = &p
	s.Err = nil
	s.retried = false
	return s
}

// retry re-runs the sign-in sequence once, then lands in the Error phase.
func retry(s Session, err error) (Session, Effect) {
	if s.retried {
		return fail(s, err), nil
	}
	s.retried = true
	s.Err = err
	s.Phase = PhaseInitializing
	return begin(s)
}

func fail(s Session, err error) Session {
	s.Phase = PhaseError
	s.Err = err
	s.Profile = nil
	s.BootstrapRequired = false
	return s
}

func isNotFound(err error) bool {
	return errors.Cause(err) == profile.ErrNotFound
}
