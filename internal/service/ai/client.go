package ai

import (
	"context"

	"github.com/zhouzirui/aichat/internal/model/chat"
)

// FragmentKind classifies one step of a streamed reply.
type FragmentKind int

const (
	// FragmentText carries zero or more characters of reply text.
	FragmentText FragmentKind = iota
	// FragmentSkip marks a malformed fragment that was dropped.
	FragmentSkip
	// FragmentDone marks the end of the reply.
	FragmentDone
	// FragmentFatal marks a transport or remote failure; the stream is over.
	FragmentFatal
)

func (k FragmentKind) String() string {
	switch k {
	case FragmentText:
		return "text"
	case FragmentSkip:
		return "skip"
	case FragmentDone:
		return "done"
	case FragmentFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Fragment is the result of reading one piece of a streamed reply.
type Fragment struct {
	Kind FragmentKind
	Text string
	Err  error
}

func textFragment(s string) Fragment { return Fragment{Kind: FragmentText, Text: s} }
func skipFragment(err error) Fragment { return Fragment{Kind: FragmentSkip, Err: err} }
func doneFragment() Fragment { return Fragment{Kind: FragmentDone} }
func fatalFragment(err error) Fragment { return Fragment{Kind: FragmentFatal, Err: err} }

// Stream yields the fragments of one reply in delivery order. After a Done or
// Fatal fragment every further call returns the same fragment.
type Stream interface {
	Next() Fragment
	Close() error
}

// Client issues streamed chat-completion requests.
type Client interface {
	Stream(ctx context.Context, messages []chat.Message) (Stream, error)
}

// BuildMessages prepends the persona instruction to the stored history.
func BuildMessages(personaPrompt string, history []chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(history)+1)
	out = append(out, chat.SystemMessage(personaPrompt))
	return append(out, history...)
}

// splitSystem separates a leading system message from the rest of the request.
func splitSystem(messages []chat.Message) (string, []chat.Message) {
	if len(messages) > 0 && messages[0].Role == chat.RoleSystem {
		return messages[0].Content, messages[1:]
	}
	return "", messages
}
