package access

type Decision int

const (
	Loading Decision = iota
	Allow
	RedirectLogin
	RedirectHome
)

func (d Decision) String() string {
	switch d {
	case Loading:
		return "loading"
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	}
	return "unknown"
}

// Check decides whether a caller holding `current` may enter an area requiring one of `required`.
// Admin is a static login and never waits for corroboration.
func Check(required RoleSet, current Role, corroboration Corroboration) Decision {
	if corroboration == Pending {
		return Loading
	}
	if current == RoleNone || (corroboration != Corroborated && current != RoleAdmin) {
		return RedirectLogin
	}
	if !required.Has(current) {
		return RedirectHome
	}
	return Allow
}
