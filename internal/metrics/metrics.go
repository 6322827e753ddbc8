package metrics

import "sync/atomic"

// Registry holds counters for the engine's hot paths. All increments
// are atomic and allocation-free.
type Registry struct {
	logins        atomic.Uint64
	loginFailures atomic.Uint64
	registrations atomic.Uint64
	refreshes     atomic.Uint64
	reuseDetected atomic.Uint64
	logouts       atomic.Uint64
	csrfRejected  atomic.Uint64
}

// NewRegistry returns a zeroed Registry.
func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) Login()         { r.logins.Add(1) }
func (r *Registry) LoginFailure()  { r.loginFailures.Add(1) }
func (r *Registry) Registration()  { r.registrations.Add(1) }
func (r *Registry) Refresh()       { r.refreshes.Add(1) }
func (r *Registry) ReuseDetected() { r.reuseDetected.Add(1) }
func (r *Registry) Logout()        { r.logouts.Add(1) }
func (r *Registry) CSRFRejected()  { r.csrfRejected.Add(1) }

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Logins        uint64
	LoginFailures uint64
	Registrations uint64
	Refreshes     uint64
	ReuseDetected uint64
	Logouts       uint64
	CSRFRejected  uint64
}

// Snapshot reads all counters. Values are individually atomic; the
// snapshot as a whole is not a consistent cut, which is fine for
// monitoring.
func (r *Registry) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		Logins:        r.logins.Load(),
		LoginFailures: r.loginFailures.Load(),
		Registrations: r.registrations.Load(),
		Refreshes:     r.refreshes.Load(),
		ReuseDetected: r.reuseDetected.Load(),
		Logouts:       r.logouts.Load(),
		CSRFRejected:  r.csrfRejected.Load(),
	}
}
