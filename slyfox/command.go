package slyfox

import (
	"log/slog"
	"strings"
)

const (
	CommandRestart      CommandKind = "restart"
	CommandListPrefixes CommandKind = "prefixes"
	CommandListCommands CommandKind = "commands"
	CommandFurryRoll    CommandKind = "furry"
	CommandHug          CommandKind = "hug"
	CommandBroadcast    CommandKind = "broadcast"
	CommandChat         CommandKind = "chat"
)

// CommandKind tags the variant of a classified Command.
type CommandKind string

// Command is the result of classifying an inbound message. Exactly one
// handler consumes each Command; they are never persisted.
type Command struct {
	Kind CommandKind

	// Arg is the trimmed remainder for argument-taking commands
	// (hug, broadcast). Empty when omitted.
	Arg string

	// Prompt is the completion prompt for CommandChat.
	Prompt string
}

func (c Command) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", string(c.Kind)),
		slog.String("arg", c.Arg),
		slog.String("prompt", truncate(c.Prompt, 100)),
	)
}

// exactCommands are matched case-insensitively against the full
// message body (after the sigil). They take no arguments.
var exactCommands = map[string]CommandKind{
	"restart":  CommandRestart,
	"prefixes": CommandListPrefixes,
	"commands": CommandListCommands,
	"furry":    CommandFurryRoll,
}

// argCommands are matched case-insensitively as a prefix; the
// remainder of the message, trimmed, becomes the argument.
var argCommands = []struct {
	name string
	kind CommandKind
}{
	{"hug", CommandHug},
	{"broadcast", CommandBroadcast},
}

// Classifier parses raw message text into a Command. It's pure: no
// side effects, no I/O.
type Classifier struct {
	sigil string
}

func NewClassifier(sigil string) *Classifier {
	if sigil == "" {
		sigil = DefaultCommandPrefix
	}
	return &Classifier{sigil: sigil}
}

// Parse classifies the given message content. The second return value
// is false when the message is not a command at all: the author is a
// bot, or the content doesn't start with the sigil. Sigil-prefixed
// text matching no known command is forwarded as a chat prompt rather
// than rejected.
func (c *Classifier) Parse(content string, authorIsBot bool) (Command, bool) {
	if authorIsBot {
		return Command{}, false
	}
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, c.sigil) {
		return Command{}, false
	}
	body := trimmed[len(c.sigil):]

	if kind, ok := exactCommands[strings.ToLower(body)]; ok {
		return Command{Kind: kind}, true
	}

	for _, ac := range argCommands {
		if len(body) < len(ac.name) {
			continue
		}
		if !strings.EqualFold(body[:len(ac.name)], ac.name) {
			continue
		}
		rest := body[len(ac.name):]
		if rest != "" && !strings.HasPrefix(rest, " ") {
			continue
		}
		return Command{Kind: ac.kind, Arg: strings.TrimSpace(rest)}, true
	}

	return Command{Kind: CommandChat, Prompt: trimmed}, true
}
