package session

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nadzzz/jarvis/internal/capture"
	"github.com/nadzzz/jarvis/internal/command"
	"github.com/nadzzz/jarvis/internal/gateway"
	"github.com/nadzzz/jarvis/internal/store"
)

const (
	defaultUserName = "Sir"
	themeDark       = "dark"
	themeLight      = "light"

	searchURL     = "https://www.google.com/search?q="
	shutdownDelay = time.Second
)

// Jokes are told in random order.
var Jokes = []string{
	"Why don't scientists trust atoms? Because they make up everything!",
	"Why did the computer catch a cold? Because it left its Windows open.",
	"I told my AI to take a break, but it just kept running.",
	"Why did the developer go broke? Because he used up all his cache!",
	"How many programmers does it take to change a light bulb? None, that's a hardware problem!",
}

// Fixed responses.
const (
	msgIdentify       = "I am Jarvis, your AI assistant. But you can call me whatever you like."
	msgInvalidTimer   = "Sorry, I didn't understand the duration. Please specify a positive number of minutes."
	msgShoppingEmpty  = "What would you like to add?"
	msgListEmpty      = "Your shopping list is empty."
	msgListCleared    = "Your shopping list has been cleared."
	msgVolumeUp       = "Increasing volume."
	msgVolumeDown     = "Decreasing volume."
	msgShutdown       = "Shutting down. Goodbye."
	msgCommands       = "Here are a few commands you can use: hello, open youtube, tell me a joke, what is the time, add to my shopping list, and search for..."
	msgAskTimeout     = "Sorry, the response took too long. Please try again."
	msgAskFailed      = "Sorry, I could not fetch the response. Please try again."
	msgCaptureNetwork = "Network error. Please check your connection."
	msgCaptureOther   = "Error in speech recognition. Please try again."
)

func (o *Orchestrator) greet() {
	o.say(fmt.Sprintf("Initializing, %s.", o.userName))

	var greeting string
	switch hour := o.now().Hour(); {
	case hour < 12:
		greeting = fmt.Sprintf("Good Morning, %s. What can I do for you today?", o.userName)
	case hour < 17:
		greeting = fmt.Sprintf("Good Afternoon, %s. How may I assist you?", o.userName)
	default:
		greeting = fmt.Sprintf("Good Evening, %s. Ready to work.", o.userName)
	}
	o.disp.Greeting(greeting)
	o.say(greeting)
}

func (o *Orchestrator) handleFinal(text string) {
	text = command.Normalize(text)
	o.disp.Transcript(text, true)

	action := command.Classify(text)
	o.log.Info("command recognized", "kind", action.Kind, "text", text)
	o.execute(action)
}

func (o *Orchestrator) handleCaptureError(kind capture.ErrorKind) {
	if kind == capture.ErrNetwork {
		o.say(msgCaptureNetwork)
		return
	}
	o.say(msgCaptureOther)
}

func (o *Orchestrator) execute(a command.Action) {
	switch a.Kind {
	case command.KindNoop:

	case command.KindGreet:
		o.say(fmt.Sprintf("Hello, %s. How can I help you?", o.userName))

	case command.KindIdentify:
		o.say(msgIdentify)

	case command.KindOpenSite:
		o.open(a.Site.URL)
		o.say(fmt.Sprintf("Opening %s...", a.Site.Name))

	case command.KindReportTime:
		o.say("The current time is " + o.now().Format("3:04:05 PM"))

	case command.KindReportDate:
		o.say("Today's date is " + o.now().Format("January 2, 2006"))

	case command.KindTellJoke:
		o.say(Jokes[o.rng.IntN(len(Jokes))])

	case command.KindSetTimer:
		minutes := a.Minutes
		o.say(fmt.Sprintf("Setting a timer for %d minutes.", minutes))
		o.after(time.Duration(minutes)*time.Minute, func() {
			o.log.Info("timer expired", "minutes", minutes)
			o.say(fmt.Sprintf("The timer for %d minutes is up, %s!", minutes, o.userName))
		})

	case command.KindInvalidTimer:
		o.say(msgInvalidTimer)

	case command.KindShoppingAdd:
		o.shopping = append(o.shopping, a.Item)
		o.kv.SetList(store.KeyShoppingList, o.shopping)
		o.say(fmt.Sprintf("%s has been added to your shopping list.", a.Item))

	case command.KindShoppingAddEmpty:
		o.say(msgShoppingEmpty)

	case command.KindShoppingShow:
		if len(o.shopping) == 0 {
			o.say(msgListEmpty)
			return
		}
		o.say(fmt.Sprintf("Your shopping list contains: %s.", strings.Join(o.shopping, ", ")))

	case command.KindShoppingClear:
		o.shopping = []string{}
		o.kv.SetList(store.KeyShoppingList, o.shopping)
		o.say(msgListCleared)

	case command.KindSearch:
		o.open(searchURL + url.QueryEscape(a.Query))
		o.say(fmt.Sprintf("Searching for %s.", a.Query))

	case command.KindVolumeUp:
		o.say(msgVolumeUp)

	case command.KindVolumeDown:
		o.say(msgVolumeDown)

	case command.KindShutdown:
		o.say(msgShutdown)
		o.after(shutdownDelay, func() { o.stop = true })

	case command.KindListCommands:
		o.say(msgCommands)

	case command.KindAskExternal:
		o.ask(a.Query)

	default:
		o.log.Warn("unhandled action", "kind", a.Kind)
	}
}

func (o *Orchestrator) open(u string) {
	if err := o.opener.Open(u); err != nil {
		o.log.Warn("failed to open url", "url", u, "error", err)
	}
}

// ask forwards query to the gateway. Only the newest query's reply is acted
// upon; the gateway cancels older ones.
func (o *Orchestrator) ask(query string) {
	o.askSeq++
	seq := o.askSeq
	o.pending = true
	o.refreshStatus()

	ctx := o.ctx
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ans, err := o.asker.Ask(ctx, query)
		o.post(func() { o.answer(seq, ans, err) })
	}()
}

func (o *Orchestrator) answer(seq uint64, ans gateway.Answer, err error) {
	if seq != o.askSeq {
		o.log.Debug("dropping stale answer", "seq", seq, "current", o.askSeq)
		return
	}
	o.pending = false
	o.refreshStatus()

	switch {
	case err == nil:
		o.disp.Answer(ans.Display)
		o.say(ans.Spoken)
	case errors.Is(err, gateway.ErrTimeout):
		o.log.Warn("answer service timed out")
		o.say(msgAskTimeout)
	default:
		o.log.Warn("answer service failed", "error", err)
		o.say(msgAskFailed)
	}
}
