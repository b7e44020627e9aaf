package appreg

// Application is a known application identity. An alias shares the
// underlying application of its canonical identity but is addressed by a
// different id.
type Application struct {
	id         string
	nonAliased *Application
}

// New returns a canonical application.
func New(id string) *Application {
	return &Application{id: id}
}

// NewAlias returns an alias identity for canonical.
func NewAlias(id string, canonical *Application) *Application {
	return &Application{id: id, nonAliased: canonical}
}

// ID returns the identity this application was addressed by.
func (a *Application) ID() string {
	if a == nil {
		return ""
	}
	return a.id
}

// IsAlias reports whether a refers to another application.
func (a *Application) IsAlias() bool {
	return a != nil && a.nonAliased != nil
}

// NonAliased returns the canonical identity for an alias and nil otherwise.
func (a *Application) NonAliased() *Application {
	if a == nil {
		return nil
	}
	return a.nonAliased
}

// Canonical returns the non-aliased form of a, which is a itself when a is
// not an alias.
func (a *Application) Canonical() *Application {
	if a == nil {
		return nil
	}
	if a.nonAliased != nil {
		return a.nonAliased
	}
	return a
}

// Same reports whether a and b share a canonical identity. Identities are
// compared by id, so an application rebuilt by a reload still matches the
// one a window was created with.
func (a *Application) Same(b *Application) bool {
	if a == nil || b == nil {
		return false
	}
	return a == b || a.Canonical().id == b.Canonical().id
}
