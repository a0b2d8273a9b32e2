package session

import (
	"context"
	"sync"

	"github.com/trezcool/schoolgate/core"
	"github.com/trezcool/schoolgate/core/profile"
)

type (
	// AdminChecker is the admin bootstrap check.
	AdminChecker interface {
		ExistsAdmin(ctx context.Context) (bool, error)
	}

	// ProfileStore is the part of profile.Service the machine drives.
	ProfileStore interface {
		Get(ctx context.Context, id string) (profile.Profile, error)
		Create(ctx context.Context, id string, np profile.NewProfile) (profile.Profile, error)
	}

	// Machine feeds identity-provider events into Transition and runs the resulting effects.
	// Effects run without holding the lock, so a newer event can supersede a pending fetch.
	Machine struct {
		admins   AdminChecker
		profiles ProfileStore
		logger   core.Logger
		metrics  core.Metrics

		mu    sync.Mutex
		state Session
	}
)

var (
	_ AdminChecker = (*profile.Service)(nil)
	_ ProfileStore = (*profile.Service)(nil)
)

func NewMachine(admins AdminChecker, profiles ProfileStore, logger core.Logger, metrics core.Metrics) *Machine {
	if logger == nil {
		logger = core.NopLogger()
	}
	if metrics == nil {
		metrics = core.NopMetrics()
	}
	return &Machine{
		admins:   admins,
		profiles: profiles,
		logger:   logger,
		metrics:  metrics,
		state:    New(),
	}
}

// Session returns a snapshot of the current session.
func (m *Machine) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.copy()
}

// Dispatch applies ev and every effect it leads to, then returns the resulting session.
func (m *Machine) Dispatch(ctx context.Context, ev Event) Session {
	for ev != nil {
		eff := m.apply(ev)
		if eff == nil {
			break
		}
		ev = m.run(ctx, eff)
	}
	return m.Session()
}

func (m *Machine) apply(ev Event) Effect {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state.Phase
	next, eff := Transition(m.state, ev)
	m.state = next

	if from != next.Phase {
		m.metrics.SessionTransition(string(from), string(next.Phase))
		m.logger.Debug("session transition", map[string]interface{}{
			"event": ev.eventName(),
			"from":  from,
			"to":    next.Phase,
			"epoch": next.epoch,
		})
	}
	if next.Phase == PhaseError && from != PhaseError {
		m.logger.Warn("session failed", next.Err)
	}
	return eff
}

func (m *Machine) run(ctx context.Context, eff Effect) Event {
	switch eff := eff.(type) {
	case CheckAdmin:
		exists, err := m.admins.ExistsAdmin(ctx)
		return AdminChecked{Epoch: eff.Epoch, Exists: exists, Err: err}

	case FetchProfile:
		p, err := m.profiles.Get(ctx, eff.IdentityID)
		if err != nil && !isNotFound(err) {
			m.logger.Warn("fetching profile failed", err, map[string]interface{}{"identity": eff.IdentityID})
		}
		return ProfileLoaded{Epoch: eff.Epoch, IdentityID: eff.IdentityID, Profile: p, Err: err}

	case CreateProfile:
		id := eff.Identity
		p, err := m.profiles.Create(ctx, id.ID, profile.DefaultProfile(id.Email, id.DisplayName))
		if err == nil {
			m.logger.Info("profile provisioned", p)
		}
		return ProfileCreated{Epoch: eff.Epoch, IdentityID: id.ID, Profile: p, Err: err}
	}
	return nil
}
