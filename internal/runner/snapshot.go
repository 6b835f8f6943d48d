package runner

import "wfrunner/internal/storage"

// Snapshot returns a copy of the scheduler state. Safe to call from any
// goroutine; the HTTP status surface polls this.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Enabled:     s.cfg.Enabled,
		Descriptor:  s.trig.String(),
		Timezone:    s.loc.String(),
		State:       s.state,
		Running:     s.state == StateFiring,
		LastRunAt:   s.lastRun,
		NextDueAt:   s.nextDue,
		Runs:        s.runs,
		Failures:    s.failures,
		LastOutcome: s.lastOutcome,
		LastError:   s.lastErr,
	}
}

func storageRecord(ev RunEvent, ok bool) storage.RunRecord {
	return storage.RunRecord{
		At:         ev.At,
		Descriptor: ev.Descriptor,
		Manual:     ev.Manual,
		Attempts:   ev.Attempts,
		TookMS:     ev.Took.Milliseconds(),
		OK:         ok,
		Error:      ev.Error,
	}
}
