package session

import (
	"time"

	"github.com/trezcool/escola/core/access"
)

type Status int

const (
	Unauthenticated Status = iota
	PendingCorroboration
	Authenticated
)

func (s Status) String() string {
	switch s {
	case PendingCorroboration:
		return "pending"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// State is the caller's session as seen by the application.
// Role is only a hint unless Status is Authenticated.
type State struct {
	Status    Status      `json:"-"`
	Role      access.Role `json:"role"`
	Identity  Identity    `json:"identity"`
	Token     string      `json:"-"`
	ExpiresAt time.Time   `json:"expires_at,omitempty"`
}

func (s State) IsAuthenticated() bool { return s.Status == Authenticated }

func (s State) Corroboration() access.Corroboration {
	switch s.Status {
	case PendingCorroboration:
		return access.Pending
	case Authenticated:
		return access.Corroborated
	default:
		return access.Uncorroborated
	}
}

func (s State) Viewer() access.Viewer {
	if !s.IsAuthenticated() {
		return access.Viewer{}
	}
	return access.Viewer{Role: s.Role, UserID: s.Identity.UserID, Email: s.Identity.Email}
}

// Event is anything that may move the State.
type Event interface {
	isEvent()
}

type (
	// RoleSelected is a local role choice.
	RoleSelected struct {
		Role access.Role
	}

	// RoleRestored is the persisted role hint, loaded along with the caller's token.
	RoleRestored struct {
		Role       access.Role
		Token      string
		AdminEmail string
	}

	LoginSucceeded struct {
		Role     access.Role
		Identity Identity
		Token    string
		Expires  time.Time
	}

	LoggedOut struct{}

	// SessionChanged is an external notification about the session behind Token; nil Session means it is gone.
	SessionChanged struct {
		Token   string
		Session *Session
	}

	CorroborationFailed struct{}
)

func (RoleSelected) isEvent()        {}
func (RoleRestored) isEvent()        {}
func (LoginSucceeded) isEvent()      {}
func (LoggedOut) isEvent()           {}
func (SessionChanged) isEvent()      {}
func (CorroborationFailed) isEvent() {}

// adminIdentity is the identity of the static admin login.
func adminIdentity(email string) Identity {
	return Identity{UserID: string(access.RoleAdmin), Email: email}
}

// Reduce returns the State that follows `s` after `e`. It has no side effects.
func Reduce(s State, e Event) State {
	switch ev := e.(type) {
	case RoleSelected:
		if s.IsAuthenticated() && s.Role == ev.Role {
			return s
		}
		return State{Status: Unauthenticated, Role: ev.Role}

	case RoleRestored:
		switch {
		case ev.Role == access.RoleAdmin:
			return State{Status: Authenticated, Role: access.RoleAdmin, Identity: adminIdentity(ev.AdminEmail)}
		case ev.Role.Valid() && ev.Token != "":
			return State{Status: PendingCorroboration, Role: ev.Role, Token: ev.Token}
		default:
			return State{Status: Unauthenticated, Role: ev.Role}
		}

	case LoginSucceeded:
		return State{
			Status:    Authenticated,
			Role:      ev.Role,
			Identity:  ev.Identity,
			Token:     ev.Token,
			ExpiresAt: ev.Expires,
		}

	case LoggedOut:
		return State{Status: Unauthenticated}

	case SessionChanged:
		if s.Role == access.RoleAdmin || s.Status == Unauthenticated || ev.Token != s.Token {
			return s
		}
		if ev.Session == nil || ev.Session.Role != s.Role {
			return State{Status: Unauthenticated, Role: s.Role}
		}
		return State{
			Status:    Authenticated,
			Role:      s.Role,
			Identity:  Identity{UserID: ev.Session.UserID, Email: ev.Session.Email},
			Token:     ev.Session.Token,
			ExpiresAt: ev.Session.ExpiresAt,
		}

	case CorroborationFailed:
		if s.Status != PendingCorroboration {
			return s
		}
		return State{Status: Unauthenticated, Role: s.Role}
	}
	return s
}
