// Package userstore persists subscriber records: language choices,
// group selection, notification toggles, and custom reminder slots.
package userstore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Notification labels. Standard windows plus event-driven sends; each
// is a per-user toggle and a dedup-key component.
const (
	Label48h       = "48h"
	Label24h       = "24h"
	Label2h        = "2h"
	Label10min     = "10min"
	LabelOpensSoon = "opens_soon"
	LabelRaceLive  = "race_live"
	LabelReplay    = "race_replay"
	LabelResults   = "race_results"
)

// CustomSlotCount is how many custom reminder slots each user has.
const CustomSlotCount = 2

// CustomSlotLabel returns the dedup label for a slot index (0-based).
func CustomSlotLabel(idx int) string {
	return "custom_" + strconv.Itoa(idx+1)
}

type GroupKind string

const (
	GroupUnset   GroupKind = ""
	GroupElite   GroupKind = "elite"
	GroupMaster  GroupKind = "master"
	GroupPro     GroupKind = "pro"
	GroupAmateur GroupKind = "amateur"
	GroupRookie  GroupKind = "rookie"
)

// Group is the user's league group. Elite carries no number; the other
// kinds have a division number between 1 and 999.
type Group struct {
	Kind   GroupKind `json:"kind,omitempty"`
	Number int       `json:"number,omitempty"`
}

func (g Group) IsSet() bool { return g.Kind != GroupUnset }

var groupCodeRe = regexp.MustCompile(`^([EMPAR])(\d{0,3})$`)

// ParseGroup parses the short code users enter: "E", "M3", "R11".
func ParseGroup(code string) (Group, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Group{}, nil
	}
	m := groupCodeRe.FindStringSubmatch(code)
	if m == nil {
		return Group{}, fmt.Errorf("invalid group code %q", code)
	}
	if m[1] == "E" {
		if m[2] != "" {
			return Group{}, fmt.Errorf("invalid group code %q: elite has no number", code)
		}
		return Group{Kind: GroupElite}, nil
	}
	if m[2] == "" {
		return Group{}, fmt.Errorf("invalid group code %q: missing number", code)
	}
	n, _ := strconv.Atoi(m[2])
	if n < 1 || n > 999 {
		return Group{}, fmt.Errorf("invalid group number %d", n)
	}
	kind := map[string]GroupKind{
		"M": GroupMaster, "P": GroupPro, "A": GroupAmateur, "R": GroupRookie,
	}[m[1]]
	return Group{Kind: kind, Number: n}, nil
}

// Code returns the short form used in links ("E", "M3", ...), or ""
// when unset.
func (g Group) Code() string {
	switch g.Kind {
	case GroupElite:
		return "E"
	case GroupMaster:
		return "M" + strconv.Itoa(g.Number)
	case GroupPro:
		return "P" + strconv.Itoa(g.Number)
	case GroupAmateur:
		return "A" + strconv.Itoa(g.Number)
	case GroupRookie:
		return "R" + strconv.Itoa(g.Number)
	default:
		return ""
	}
}

// CustomSlot is one user-defined reminder offset before quali close.
type CustomSlot struct {
	Enabled       bool `json:"enabled"`
	MinutesBefore int  `json:"minutes_before,omitempty"`
}

// User is one subscriber record. The engine treats it as read-only;
// command handlers mutate it through Store's atomic save.
type User struct {
	ID             int64                       `json:"-"`
	UILang         string                      `json:"ui_lang"`
	LinkLang       string                      `json:"gpro_lang"`
	Group          Group                       `json:"group"`
	Notifications  map[string]bool             `json:"notifications"`
	CustomSlots    [CustomSlotCount]CustomSlot `json:"custom_notifications"`
	CompletedQuali int                         `json:"completed_quali,omitempty"`
}

const (
	DefaultUILang   = "en"
	DefaultLinkLang = "gb"
)

// DefaultNotifications: everything enabled.
func DefaultNotifications() map[string]bool {
	return map[string]bool{
		Label48h:       true,
		Label24h:       true,
		Label2h:        true,
		Label10min:     true,
		LabelOpensSoon: true,
		LabelRaceLive:  true,
		LabelReplay:    true,
		LabelResults:   true,
	}
}

// NewUser returns a record with all defaults applied.
func NewUser(id int64) *User {
	return &User{
		ID:            id,
		UILang:        DefaultUILang,
		LinkLang:      DefaultLinkLang,
		Notifications: DefaultNotifications(),
	}
}

// NotificationEnabled reports the toggle for a label; unknown labels
// default to enabled, matching the defaults for new label rollouts.
func (u *User) NotificationEnabled(label string) bool {
	if u.Notifications == nil {
		return true
	}
	v, ok := u.Notifications[label]
	if !ok {
		return true
	}
	return v
}

// QualiDone reports whether the user marked this race's quali as
// completed, which suppresses further standard reminders for it.
func (u *User) QualiDone(raceID int) bool {
	return u.CompletedQuali == raceID
}
