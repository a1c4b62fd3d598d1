package commands

import "errors"

// ErrUnknownCommand is the outcome for input that names no command.
var ErrUnknownCommand = errors.New("unknown command")

// Kind is the closed enumeration of commands the service exposes.
type Kind int

const (
	KindUnknown Kind = iota
	KindBindChannel
	KindSetRole
	KindSetGames
	KindSetInterval
	KindResetSeen
	KindResetConfig
	KindShowConfig
	KindListRecent
	KindPollNow
	KindDebugGames
)

var kindNames = map[string]Kind{
	"bindchannel": KindBindChannel,
	"setrole":     KindSetRole,
	"setgames":    KindSetGames,
	"setinterval": KindSetInterval,
	"resetseen":   KindResetSeen,
	"resetconfig": KindResetConfig,
	"config":      KindShowConfig,
	"recent":      KindListRecent,
	"pollnow":     KindPollNow,
	"debuggames":  KindDebugGames,
}

// ParseKind maps a command name to its Kind; unrecognized names yield
// KindUnknown.
func ParseKind(name string) Kind {
	if k, ok := kindNames[name]; ok {
		return k
	}
	return KindUnknown
}

// AdminOnly reports whether a command mutates state and therefore
// requires administrator access.
func (k Kind) AdminOnly() bool {
	switch k {
	case KindBindChannel, KindSetRole, KindSetGames, KindSetInterval, KindResetSeen, KindResetConfig:
		return true
	}
	return false
}

// String returns the command's wire name.
func (k Kind) String() string {
	for name, kind := range kindNames {
		if kind == k {
			return name
		}
	}
	return "unknown"
}
