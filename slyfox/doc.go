// Package slyfox implements a Discord chat bot that forwards free-form
// prompts to OpenAI chat completions and answers a small set of built-in
// commands.
//
// Messages beginning with the command sigil (by default `!`) are
// classified into either a built-in command or a prompt for the
// completion provider. While a completion is in flight, the bot shows a
// transient placeholder message which is always edited into either the
// final reply or a generic error message.
//
// Key components of the package include:
//
//   - SlyFox: The main struct that wires the bot together.
//   - Classifier: Parses raw message text into a Command.
//   - ConversationStore: Per-channel restart flag with atomic
//     read-and-clear semantics.
//   - OpenAI: Manages completion calls, per-conversation history and
//     bounded retry.
//   - Discord: Handles the gateway connection and channel message I/O.
//   - API: A small read-only status HTTP API.
//
// The bot supports the commands:
//
//   - !restart: Discard the channel's conversation context before the
//     next completion.
//   - !prefixes: List configured reply prefixes and their owners.
//   - !commands: Show help text.
//   - !furry: Roll a random "furry percentage".
//   - !hug <name>: Hug someone.
//   - !broadcast <message>: Owner-only fanout to configured channels.
//
// Anything else starting with the sigil is forwarded to the completion
// provider as a prompt.
package slyfox
