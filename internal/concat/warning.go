package concat

import (
	"sync"

	"github.com/efebarandurmaz/hoist/internal/ir"
)

const bailoutPrefix = "ModuleConcatenation bailout: "

func formatBailoutReason(msg string) string {
	return bailoutPrefix + msg
}

// Warning explains why a module could not join a configuration. It is
// either a problem text or a reference to a module whose own classification
// reason blocked it.
type Warning struct {
	Problem string
	Blocker ir.ModuleID
}

func problemWarning(p string) Warning { return Warning{Problem: p} }

func blockedBy(id ir.ModuleID) Warning { return Warning{Blocker: id} }

// reasonStore keeps the classification reason of each disqualified module
// so blockedBy warnings can be rendered later. Writers are the parallel
// classification workers.
type reasonStore struct {
	mu      sync.RWMutex
	reasons map[ir.ModuleID]string
}

func newReasonStore() *reasonStore {
	return &reasonStore{reasons: make(map[ir.ModuleID]string)}
}

func (s *reasonStore) set(id ir.ModuleID, reason string) {
	s.mu.Lock()
	s.reasons[id] = reason
	s.mu.Unlock()
}

func (s *reasonStore) get(id ir.ModuleID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reasons[id]
	return r, ok
}

// format renders the warning recorded for module as a bailout diagnostic.
func (s *reasonStore) format(module ir.ModuleID, w Warning) string {
	if w.Blocker == "" {
		return formatBailoutReason("Cannot concat with " + string(module) + ": " + w.Problem)
	}
	suffix := ""
	if reason, ok := s.get(w.Blocker); ok {
		suffix = ": " + reason
	}
	if w.Blocker == module {
		return formatBailoutReason("Cannot concat with " + string(module) + suffix)
	}
	return formatBailoutReason("Cannot concat with " + string(module) + " because of " + string(w.Blocker) + suffix)
}
