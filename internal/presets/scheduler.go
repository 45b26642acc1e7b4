package presets

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// Applier installs a preset's pattern on its saved lamps; it is
// satisfied by device.Controller's Set method.
type Applier func(lamps []int, pattern string) (uint16, error)

// Scheduler fires named presets on cron schedules, e.g. a "sunset"
// scene every evening.
type Scheduler struct {
	cron    *cron.Cron
	store   *Store
	apply   Applier
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewScheduler(store *Store, apply Applier) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		store:   store,
		apply:   apply,
		entries: make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) Start() { s.cron.Start() }
func (s *Scheduler) Stop()  { s.cron.Stop() }

// Schedule installs presetName to run on cronExpr, replacing any
// existing schedule under the same name.
func (s *Scheduler) Schedule(name, presetName, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
	}

	id, err := s.cron.AddFunc(cronExpr, func() {
		p, err := s.store.Get(presetName)
		if err != nil {
			return
		}
		s.apply(p.Lamps, p.Pattern)
	})
	if err != nil {
		return fmt.Errorf("presets: scheduling %q: %w", name, err)
	}
	s.entries[name] = id
	return nil
}

func (s *Scheduler) Unschedule(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}
