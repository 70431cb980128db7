// Package command classifies recognized utterances into assistant actions.
//
// Classification is phrase matching against an ordered rule table. A phrase
// matches when it starts on a word boundary and ends on one, optionally after
// a plural "s": "jokes" triggers the "joke" rule, while "timer" does not
// trigger "time" and "they" does not trigger "hey". The first
// rule with a matching phrase wins, so the order of Rules is part of the
// behavior: "what is the time" resolves to ReportTime because the "time" rule
// precedes the general-knowledge rule.
package command

import (
	"strconv"
	"strings"
)

// Kind tags the variant carried by an Action.
type Kind string

const (
	KindNoop             Kind = "noop"
	KindGreet            Kind = "greet"
	KindIdentify         Kind = "identify"
	KindOpenSite         Kind = "open_site"
	KindReportTime       Kind = "report_time"
	KindReportDate       Kind = "report_date"
	KindTellJoke         Kind = "tell_joke"
	KindSetTimer         Kind = "set_timer"
	KindInvalidTimer     Kind = "invalid_timer"
	KindShoppingAdd      Kind = "shopping_add"
	KindShoppingAddEmpty Kind = "shopping_add_empty"
	KindShoppingShow     Kind = "shopping_show"
	KindShoppingClear    Kind = "shopping_clear"
	KindSearch           Kind = "search"
	KindVolumeUp         Kind = "volume_up"
	KindVolumeDown       Kind = "volume_down"
	KindShutdown         Kind = "shutdown"
	KindListCommands     Kind = "list_commands"
	KindAskExternal      Kind = "ask_external"
)

// Action is the outcome of classifying one utterance. Only the field that
// belongs to Kind is populated.
type Action struct {
	Kind Kind `json:"kind"`

	// Site is set for KindOpenSite.
	Site Site `json:"site,omitempty"`

	// Minutes is set for KindSetTimer.
	Minutes int `json:"minutes,omitempty"`

	// Item is set for KindShoppingAdd.
	Item string `json:"item,omitempty"`

	// Query is set for KindSearch (raw, not yet encoded) and KindAskExternal
	// (the full utterance).
	Query string `json:"query,omitempty"`
}

// Site is a destination for KindOpenSite.
type Site struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Rule maps a set of trigger phrases to an action builder.
type Rule struct {
	// Name identifies the rule in logs and tests.
	Name string

	// Phrases trigger the rule when any of them occurs in the utterance.
	Phrases []string

	// Build produces the action; phrase is the trigger that matched.
	Build func(text, phrase string) Action
}

// Rules is the priority-ordered rule table. Earlier entries pre-empt later
// ones on overlapping input. Anything unmatched is forwarded as AskExternal.
var Rules = []Rule{
	{Name: "greet", Phrases: []string{"hello", "hey"}, Build: constant(KindGreet)},
	{Name: "identify", Phrases: []string{"your name"}, Build: constant(KindIdentify)},
	{Name: "open_site", Phrases: []string{"open google", "open youtube", "open facebook"}, Build: openSite},
	{Name: "time", Phrases: []string{"time"}, Build: constant(KindReportTime)},
	{Name: "date", Phrases: []string{"date"}, Build: constant(KindReportDate)},
	{Name: "joke", Phrases: []string{"joke"}, Build: constant(KindTellJoke)},
	{Name: "timer", Phrases: []string{timerPhrase}, Build: setTimer},
	{Name: "shopping_add", Phrases: []string{shoppingAddPhrase}, Build: shoppingAdd},
	{Name: "shopping_show", Phrases: []string{"show my shopping list"}, Build: constant(KindShoppingShow)},
	{Name: "shopping_clear", Phrases: []string{"clear my shopping list"}, Build: constant(KindShoppingClear)},
	{Name: "ask", Phrases: []string{"what is", "who is", "what are"}, Build: askExternal},
	{Name: "search", Phrases: []string{searchPhrase}, Build: search},
	{Name: "volume_up", Phrases: []string{"volume up"}, Build: constant(KindVolumeUp)},
	{Name: "volume_down", Phrases: []string{"volume down"}, Build: constant(KindVolumeDown)},
	{Name: "shutdown", Phrases: []string{"shutdown"}, Build: constant(KindShutdown)},
	{Name: "commands", Phrases: []string{"commands"}, Build: constant(KindListCommands)},
}

// MaxTimerMinutes bounds timers to one year.
const MaxTimerMinutes = 365 * 24 * 60

const (
	timerPhrase       = "set a timer for"
	shoppingAddPhrase = "add to my shopping list"
	searchPhrase      = "search for"
)

// Sites lists the destinations reachable through "open <name>".
var Sites = map[string]Site{
	"open google":   {Name: "Google", URL: "https://google.com"},
	"open youtube":  {Name: "YouTube", URL: "https://youtube.com"},
	"open facebook": {Name: "Facebook", URL: "https://facebook.com"},
}

// Normalize lower-cases and trims an utterance the way the recognizer output
// is prepared before classification.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Classify maps an utterance to an action. Input is normalized first; empty
// or whitespace-only text yields KindNoop.
func Classify(text string) Action {
	text = Normalize(text)
	if text == "" {
		return Action{Kind: KindNoop}
	}
	for _, r := range Rules {
		for _, p := range r.Phrases {
			if containsPhrase(text, p) {
				return r.Build(text, p)
			}
		}
	}
	return askExternal(text, "")
}

// containsPhrase reports whether phrase occurs in text with no letter or digit
// immediately before it and none after it, other than a plural "s".
func containsPhrase(text, phrase string) bool {
	for from := 0; from <= len(text)-len(phrase); {
		i := strings.Index(text[from:], phrase)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(phrase)
		if (start == 0 || !isWordByte(text[start-1])) && wordEnd(text, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func wordEnd(text string, end int) bool {
	if end < len(text) && text[end] == 's' {
		end++
	}
	return end == len(text) || !isWordByte(text[end])
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b >= 0x80
}

func constant(k Kind) func(string, string) Action {
	return func(string, string) Action { return Action{Kind: k} }
}

func openSite(_, phrase string) Action {
	return Action{Kind: KindOpenSite, Site: Sites[phrase]}
}

func askExternal(text, _ string) Action {
	return Action{Kind: KindAskExternal, Query: text}
}

// setTimer strips the trigger phrase and the word "minutes" and parses the
// leading integer of what remains. Durations above MaxTimerMinutes are
// rejected.
func setTimer(text, _ string) Action {
	rest := strings.Replace(text, timerPhrase, "", 1)
	rest = strings.Replace(rest, "minutes", "", 1)
	minutes, ok := leadingInt(strings.TrimSpace(rest))
	if !ok || minutes <= 0 || minutes > MaxTimerMinutes {
		return Action{Kind: KindInvalidTimer}
	}
	return Action{Kind: KindSetTimer, Minutes: minutes}
}

func shoppingAdd(text, _ string) Action {
	item := strings.TrimSpace(strings.Replace(text, shoppingAddPhrase, "", 1))
	if item == "" {
		return Action{Kind: KindShoppingAddEmpty}
	}
	return Action{Kind: KindShoppingAdd, Item: item}
}

func search(text, _ string) Action {
	return Action{Kind: KindSearch, Query: strings.TrimSpace(strings.Replace(text, searchPhrase, "", 1))}
}

// leadingInt parses an optional sign followed by the longest run of digits,
// ignoring anything after it ("5 min" -> 5).
func leadingInt(s string) (int, bool) {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
