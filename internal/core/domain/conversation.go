package domain

// Role identifies the author of a conversation turn.
// It is a closed enumeration: system, user, or assistant.
type Role string

// Conversation roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ConversationTurn is a single entry in a chat transcript.
// Content is mutable only for the most recent assistant turn while a
// generation is streaming into it.
type ConversationTurn struct {
	// Role is the author of the turn.
	Role Role

	// Content is the turn text.
	Content string
}
