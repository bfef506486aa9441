package storyweaver

// Message roles mirror the chat-completion wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry in the conversation with the model.
// Immutable once appended; ordering is significant because the whole
// history is transmitted as the context window on every request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History is the append-only conversation log for a single story. It is
// owned exclusively by one Engine and mutated only on its transitions, so
// it carries no lock of its own.
type History struct {
	messages []Message
}

// Seed clears the history and installs the persona message followed by the
// master prompt. The persona entry stays first for the story's lifetime.
func (h *History) Seed(persona, masterPrompt string) {
	h.messages = []Message{
		{Role: RoleSystem, Content: persona},
		{Role: RoleUser, Content: masterPrompt},
	}
}

// Append adds one message to the end of the log.
func (h *History) Append(role, content string) {
	h.messages = append(h.messages, Message{Role: role, Content: content})
}

// Messages returns a copy of the log in insertion order.
func (h *History) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len reports the number of messages.
func (h *History) Len() int {
	return len(h.messages)
}

// Clear drops all messages. Used only on a full story reset.
func (h *History) Clear() {
	h.messages = nil
}
