package dispatch

import (
	"strings"
)

// Verb is a command name understood by the automation backend.
type Verb string

const (
	VerbGet    Verb = "get"
	VerbReboot Verb = "reboot"
	VerbSim    Verb = "sim"
	VerbStatus Verb = "status"
	VerbLatest Verb = "latest"
	VerbSleep  Verb = "sleep"
	VerbSet    Verb = "set"
)

const (
	MinSleepSeconds     = 1
	MaxSleepSeconds     = 3600
	DefaultSleepSeconds = 60
)

// Verbs lists the command vocabulary in display order.
func Verbs() []Verb {
	return []Verb{VerbGet, VerbReboot, VerbSim, VerbStatus, VerbLatest, VerbSleep, VerbSet}
}

// ParseVerb normalizes a verb, accepting an optional leading slash.
func ParseVerb(value string) (Verb, bool) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "/")
	verb := Verb(value)
	for _, known := range Verbs() {
		if verb == known {
			return verb, true
		}
	}
	return "", false
}

// Site identifies a remote finca.
type Site string

// Command is a single rendered instruction for one site.
type Command struct {
	Verb  Verb   `json:"verb"`
	Site  Site   `json:"site"`
	Extra string `json:"extra,omitempty"`
}

// Text renders the command as "/<verb> <site>[ <extra>]".
func (c Command) Text() string {
	var b strings.Builder
	b.WriteString("/")
	b.WriteString(string(c.Verb))
	b.WriteString(" ")
	b.WriteString(string(c.Site))
	if c.Extra != "" {
		b.WriteString(" ")
		b.WriteString(c.Extra)
	}
	return b.String()
}

// String implements fmt.Stringer.
func (c Command) String() string {
	return c.Text()
}
