package userstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

// Store keeps all user records in one JSON file keyed by chat ID.
// Every mutation rewrites the file atomically under the lock, so a
// crash never leaves a half-written store.
type Store struct {
	mu    sync.RWMutex
	path  string
	users map[int64]*User
	log   logx.Logger
}

func NewStore(path string, log logx.Logger) *Store {
	return &Store{path: path, users: make(map[int64]*User), log: log}
}

// Load reads the store file. A missing file is an empty store, not an
// error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Info("user store file missing, starting empty", logx.String("path", s.path))
			return nil
		}
		return fmt.Errorf("read user store: %w", err)
	}
	var raw map[string]*User
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse user store %s: %w", s.path, err)
	}
	users := make(map[int64]*User, len(raw))
	for key, u := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			s.log.Warn("skipping user record with bad id", logx.String("key", key))
			continue
		}
		u.ID = id
		if u.UILang == "" {
			u.UILang = DefaultUILang
		}
		if u.LinkLang == "" {
			u.LinkLang = DefaultLinkLang
		}
		if u.Notifications == nil {
			u.Notifications = DefaultNotifications()
		}
		users[id] = u
	}
	s.users = users
	s.log.Info("user store loaded", logx.Int("users", len(users)))
	return nil
}

// Get returns a copy of the record, or nil when the user is unknown.
func (s *Store) Get(id int64) *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	return cloneUser(u)
}

// Register returns the user's record, inserting and persisting a
// default one on first contact so the user shows up in List (and so
// receives notifications) even before touching any setting. The
// second return reports whether the record was just created.
func (s *Store) Register(id int64) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return cloneUser(u), false
	}
	u := NewUser(id)
	s.users[id] = u
	if err := s.saveLocked(); err != nil {
		s.log.Warn("persisting new user failed", logx.Int64("user", id), logx.Err(err))
	}
	return cloneUser(u), true
}

// List returns copies of all records, ordered by ID for deterministic
// iteration.
func (s *Store) List() []*User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Update applies fn to the user's record (creating a default record
// first if needed) and persists the whole store. fn returning an error
// aborts without saving.
func (s *Store) Update(id int64, fn func(*User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		u = NewUser(id)
	}
	work := cloneUser(u)
	if err := fn(work); err != nil {
		return err
	}
	s.users[id] = work
	return s.saveLocked()
}

// Delete removes the record; unknown IDs are a no-op.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return nil
	}
	delete(s.users, id)
	return s.saveLocked()
}

// ToggleNotification flips one label and returns the new state.
func (s *Store) ToggleNotification(id int64, label string) (bool, error) {
	var state bool
	err := s.Update(id, func(u *User) error {
		if u.Notifications == nil {
			u.Notifications = DefaultNotifications()
		}
		u.Notifications[label] = !u.NotificationEnabled(label)
		state = u.Notifications[label]
		return nil
	})
	return state, err
}

// SetGroup records the user's league group from a short code.
func (s *Store) SetGroup(id int64, code string) (Group, error) {
	g, err := ParseGroup(code)
	if err != nil {
		return Group{}, err
	}
	return g, s.Update(id, func(u *User) error {
		u.Group = g
		return nil
	})
}

// SetCustomSlot validates and stores a custom reminder offset.
func (s *Store) SetCustomSlot(id int64, idx, minutes int) error {
	if idx < 0 || idx >= CustomSlotCount {
		return fmt.Errorf("custom slot index out of range: %d", idx)
	}
	if err := ValidateCustomMinutes(minutes); err != nil {
		return err
	}
	return s.Update(id, func(u *User) error {
		u.CustomSlots[idx] = CustomSlot{Enabled: true, MinutesBefore: minutes}
		return nil
	})
}

// DisableCustomSlot turns a slot off, keeping its configured offset.
func (s *Store) DisableCustomSlot(id int64, idx int) error {
	if idx < 0 || idx >= CustomSlotCount {
		return fmt.Errorf("custom slot index out of range: %d", idx)
	}
	return s.Update(id, func(u *User) error {
		u.CustomSlots[idx].Enabled = false
		return nil
	})
}

// MarkQualiDone records that the user already qualified for this race,
// suppressing its remaining standard reminders.
func (s *Store) MarkQualiDone(id int64, raceID int) error {
	return s.Update(id, func(u *User) error {
		u.CompletedQuali = raceID
		return nil
	})
}

// ResetQuali clears the done mark.
func (s *Store) ResetQuali(id int64) error {
	return s.Update(id, func(u *User) error {
		u.CompletedQuali = 0
		return nil
	})
}

func (s *Store) saveLocked() error {
	raw := make(map[string]*User, len(s.users))
	for id, u := range s.users {
		raw[strconv.FormatInt(id, 10)] = u
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user store: %w", err)
	}
	tmp := s.path + ".tmp"
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create user store dir: %w", err)
		}
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write user store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace user store: %w", err)
	}
	return nil
}

func cloneUser(u *User) *User {
	c := *u
	if u.Notifications != nil {
		c.Notifications = make(map[string]bool, len(u.Notifications))
		for k, v := range u.Notifications {
			c.Notifications[k] = v
		}
	}
	return &c
}
