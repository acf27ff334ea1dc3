package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"sync"

	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

var ErrRaceNotFound = errors.New("race not found")

// Store keeps the current and (optionally) next season in memory and
// mirrors them to cache files. Season replacement and weather writes
// go through the store so readers always see a consistent snapshot.
type Store struct {
	mu      sync.RWMutex
	current []*Race
	next    []*Race

	path     string
	nextPath string
	log      logx.Logger
}

func NewStore(path, nextPath string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{path: path, nextPath: nextPath, log: log}
}

// Load reads both season caches. A missing current-season file is not
// an error; the bot just has no calendar until the first refresh.
func (s *Store) Load() error {
	races, err := readSeasonFile(s.path)
	switch {
	case err == nil:
		s.mu.Lock()
		s.current = races
		s.mu.Unlock()
		s.log.Info("calendar loaded", logx.Int("races", len(races)))
	case os.IsNotExist(err):
		s.log.Warn("no calendar cache; waiting for first refresh", logx.String("path", s.path))
	default:
		return fmt.Errorf("load calendar: %w", err)
	}

	if s.nextPath != "" {
		next, err := readSeasonFile(s.nextPath)
		if err == nil {
			s.mu.Lock()
			s.next = next
			s.mu.Unlock()
			s.log.Info("next season loaded", logx.Int("races", len(next)))
		} else if !os.IsNotExist(err) {
			s.log.Warn("next season cache unreadable", logx.Err(err))
		}
	}
	return nil
}

// CurrentSeason returns the current season ordered by date. The slice
// is a copy; the races are shared and must only be mutated through
// PersistWeather.
func (s *Store) CurrentSeason() []*Race {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Race(nil), s.current...)
}

// NextSeason returns the next season, or nil when unpublished.
func (s *Store) NextSeason() []*Race {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.next == nil {
		return nil
	}
	return append([]*Race(nil), s.next...)
}

func (s *Store) RaceByID(id int) (*Race, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.current {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// ReplaceCurrent swaps in a freshly fetched season and persists it.
func (s *Store) ReplaceCurrent(races []*Race) error {
	s.mu.Lock()
	s.current = races
	s.mu.Unlock()
	return writeSeasonFile(s.path, races)
}

// ReplaceNext swaps the next season; nil clears it and removes the cache.
func (s *Store) ReplaceNext(races []*Race) error {
	s.mu.Lock()
	s.next = races
	s.mu.Unlock()
	if s.nextPath == "" {
		return nil
	}
	if races == nil {
		err := os.Remove(s.nextPath)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return writeSeasonFile(s.nextPath, races)
}

// PersistWeather attaches a forecast to a race and rewrites the cache
// so it survives a restart.
func (s *Store) PersistWeather(raceID int, fc *Forecast) error {
	s.mu.Lock()
	var found *Race
	for _, r := range s.current {
		if r.ID == raceID {
			found = r
			break
		}
	}
	if found == nil {
		s.mu.Unlock()
		return fmt.Errorf("persist weather: race %d: %w", raceID, ErrRaceNotFound)
	}
	found.Weather = fc
	found.WeatherUnavailable = fc == nil
	races := append([]*Race(nil), s.current...)
	s.mu.Unlock()

	return writeSeasonFile(s.path, races)
}

// seasonEntry is the on-disk shape, keyed by race number, matching the
// cache layout the bot has always used.
type seasonEntry struct {
	Track              string    `json:"track"`
	QualiClose         time.Time `json:"quali_close"`
	Date               time.Time `json:"date"`
	Group              string    `json:"group"`
	Weather            *Forecast `json:"weather,omitempty"`
	WeatherUnavailable bool      `json:"weather_unavailable,omitempty"`
}

func readSeasonFile(path string) ([]*Race, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]seasonEntry
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}

	races := make([]*Race, 0, len(raw))
	for idStr, e := range raw {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		races = append(races, &Race{
			ID:                 id,
			Track:              e.Track,
			QualiClose:         e.QualiClose,
			Start:              e.Date,
			Group:              e.Group,
			Weather:            e.Weather,
			WeatherUnavailable: e.WeatherUnavailable,
		})
	}
	sort.Slice(races, func(i, j int) bool { return races[i].ID < races[j].ID })
	return races, nil
}

func writeSeasonFile(path string, races []*Race) error {
	raw := make(map[string]seasonEntry, len(races))
	for _, r := range races {
		raw[strconv.Itoa(r.ID)] = seasonEntry{
			Track:              r.Track,
			QualiClose:         r.QualiClose,
			Date:               r.Start,
			Group:              r.Group,
			Weather:            r.Weather,
			WeatherUnavailable: r.WeatherUnavailable,
		}
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: tmp + rename, so a crash never leaves a torn cache.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
