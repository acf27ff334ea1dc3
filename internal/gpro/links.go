package gpro

import (
	"regexp"
	"strings"
)

// LinkKind selects which upstream page a personalized link points to.
type LinkKind string

const (
	LinkQualify  LinkKind = "qualify"
	LinkLive     LinkKind = "live"
	LinkReplay   LinkKind = "replay"
	LinkSummary  LinkKind = "summary"
	LinkAnalysis LinkKind = "analysis"
)

var validLangs = map[string]bool{
	"gb": true, "de": true, "es": true, "ro": true, "it": true, "fr": true,
	"pl": true, "bg": true, "mk": true, "nl": true, "fi": true, "hu": true,
	"tr": true, "gr": true, "dk": true, "pt": true, "ru": true, "rs": true,
	"se": true, "lt": true, "ee": true, "al": true, "hr": true, "ch": true,
	"my": true, "in": true, "pi": true, "be": true, "br": true, "cz": true,
	"sk": true,
}

// IsValidLang reports whether a link-language code is supported.
func IsValidLang(lang string) bool { return validLangs[lang] }

const DefaultLang = "gb"

var groupCodeRe = regexp.MustCompile(`^([MPAR])(\d{1,3})$`)

var groupNames = map[string]string{
	"M": "Master",
	"P": "Pro",
	"A": "Amateur",
	"R": "Rookie",
}

// BuildLink produces a personalized upstream URL. The group code is
// the short form users enter ("E" for Elite, "M3", "R11", ...); an
// empty or malformed code yields the unfiltered page so the link is
// still useful.
func BuildLink(group, lang string, kind LinkKind) string {
	if !IsValidLang(lang) {
		lang = DefaultLang
	}
	base := "https://gpro.net/" + lang + "/"

	switch kind {
	case LinkQualify:
		return base + "Qualify.asp"
	case LinkAnalysis:
		return base + "RaceAnalysis.asp"
	}

	var endpoint string
	switch kind {
	case LinkLive:
		endpoint = "racescreenlive.asp"
	case LinkSummary:
		endpoint = "RaceSummary.asp"
	default: // LinkReplay
		endpoint = "racescreen.asp"
	}
	url := base + endpoint + "?Group="

	group = strings.ToUpper(strings.TrimSpace(group))
	if group == "" {
		return url
	}
	if group == "E" {
		return url + "Elite"
	}

	m := groupCodeRe.FindStringSubmatch(group)
	if m == nil {
		return url
	}
	// "Rookie - 11" URL-encoded.
	return url + groupNames[m[1]] + "%20-%20" + m[2]
}
