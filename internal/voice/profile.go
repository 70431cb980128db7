// Package voice turns response text into speech: it applies the active
// personality profile, picks a voice and enforces that at most one output
// runs at a time.
package voice

import (
	"math/rand/v2"
	"strings"

	"github.com/nadzzz/jarvis/internal/tts"
)

// FilterKind selects the text transform a profile applies before speaking.
type FilterKind int

const (
	// FilterPass leaves text unchanged.
	FilterPass FilterKind = iota

	// FilterQuip prepends a randomly chosen quip.
	FilterQuip

	// FilterLaugh appends a laugh marker with probability 0.3.
	FilterLaugh
)

// DefaultKey is the profile used when a personality key is unknown.
const DefaultKey = "jarvis"

// Quips are the prefixes used by FilterQuip.
var Quips = []string{
	"Well, ",
	"Listen here, ",
	"Yeah, so basically, ",
	"Here's the thing, ",
}

// LaughMarker is the suffix used by FilterLaugh.
const LaughMarker = " *laughs* "

// Profile is a personality: a display name, speech rate and pitch, and a
// text filter.
type Profile struct {
	Key    string
	Name   string
	Rate   float64
	Pitch  float64
	Filter FilterKind
}

// Profiles is the fixed catalog, in presentation order.
var Profiles = []Profile{
	{Key: "jarvis", Name: "Jarvis", Rate: 0.9, Pitch: 0.4, Filter: FilterPass},
	{Key: "tony", Name: "Tony Stark", Rate: 1.1, Pitch: 0.5, Filter: FilterQuip},
	{Key: "funny", Name: "Funny Assistant", Rate: 1.0, Pitch: 0.6, Filter: FilterLaugh},
	{Key: "calm", Name: "Calm Assistant", Rate: 0.7, Pitch: 0.3, Filter: FilterPass},
}

// Lookup returns the profile for key and whether it exists. Unknown keys
// return the jarvis profile.
func Lookup(key string) (Profile, bool) {
	for _, p := range Profiles {
		if p.Key == key {
			return p, true
		}
	}
	p, _ := Lookup(DefaultKey)
	return p, false
}

// Apply runs the profile's filter over text using rng for any randomness.
func (p Profile) Apply(text string, rng *rand.Rand) string {
	switch p.Filter {
	case FilterQuip:
		return Quips[rng.IntN(len(Quips))] + text
	case FilterLaugh:
		if rng.Float64() > 0.7 {
			return text + LaughMarker
		}
		return text
	default:
		return text
	}
}

// PreferredVoices are voice names tried first, matched case-insensitively
// as substrings.
var PreferredVoices = []string{
	"Google UK English Male",
	"Google US English",
	"Microsoft David Desktop - English (United States)",
	"Microsoft Mark Desktop - English (United States)",
	"Google हिंदी Male",
}

var femaleMarkers = []string{"female", "zira", "aria"}

// SelectVoice picks a voice from voices: the first one matching a preferred
// name, else the first voice of lang whose name has no female marker. It
// returns nil when nothing matches, meaning the speaker's default voice.
func SelectVoice(voices []tts.Voice, lang string) *tts.Voice {
	for i, v := range voices {
		name := strings.ToLower(v.Name)
		for _, pref := range PreferredVoices {
			if strings.Contains(name, strings.ToLower(pref)) {
				return &voices[i]
			}
		}
	}

	lang = strings.ToLower(lang)
	for i, v := range voices {
		if !strings.HasPrefix(strings.ToLower(v.Lang), lang) {
			continue
		}
		if hasFemaleMarker(v.Name) {
			continue
		}
		return &voices[i]
	}
	return nil
}

func hasFemaleMarker(name string) bool {
	name = strings.ToLower(name)
	for _, m := range femaleMarkers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}
