package impl

import (
	"errors"
	"sync"

	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/peer/impl/engine"
)

type runEntry struct {
	session *engine.Session
	done    bool
	err     *peer.RunError
}

// SafeRunTable implements a thread-safe table of the runs of a party
type SafeRunTable struct {
	*sync.RWMutex
	order []string
	table map[string]*runEntry
}

func (t *SafeRunTable) add(s *engine.Session) {
	t.Lock()
	defer t.Unlock()

	_, found := t.table[s.RunID()]
	if !found {
		t.order = append(t.order, s.RunID())
	}
	t.table[s.RunID()] = &runEntry{session: s}
}
func (t *SafeRunTable) finish(runID string, err error) {
	t.Lock()
	defer t.Unlock()

	entry, found := t.table[runID]
	if !found {
		return
	}
	entry.done = true

	var runErr *peer.RunError
	if errors.As(err, &runErr) {
		entry.err = runErr
	} else if err != nil {
		entry.err = peer.NewRunError(runID, entry.session.Phase(), err)
	}
}
func (t *SafeRunTable) getAll() []peer.RunStatus {
	t.RLock()
	defer t.RUnlock()

	res := make([]peer.RunStatus, 0, len(t.order))
	for _, runID := range t.order {
		res = append(res, t.table[runID].status(runID))
	}
	return res
}
func NewSafeRunTable() *SafeRunTable {
	return &SafeRunTable{&sync.RWMutex{}, []string{}, map[string]*runEntry{}}
}

func (e *runEntry) status(runID string) peer.RunStatus {
	status := peer.RunStatus{
		RunID:  runID,
		Phase:  e.session.Phase(),
		Done:   e.done,
		Rounds: e.session.Trace().Rounds(),
	}
	if e.err != nil {
		status.Phase = e.err.Phase
		status.Class = e.err.Class
		status.Error = e.err.Error()
	}
	return status
}
