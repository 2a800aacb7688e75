package chat

import "strings"

// Pure, synchronous filters over in-memory lists. An empty query returns the
// full source list (the "browse" state before the user types). Matching is
// case-insensitive substring over small in-memory lists.

// SearchUsers filters a user directory by username.
func SearchUsers(users []User, query string) []User {
	if query == "" {
		return append([]User(nil), users...)
	}
	q := strings.ToLower(query)
	var out []User
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Username), q) {
			out = append(out, u)
		}
	}
	return out
}

// SearchGroups filters group conversations by name or description.
func SearchGroups(convs []Conversation, query string) []*GroupConversation {
	q := strings.ToLower(query)
	var out []*GroupConversation
	for _, c := range convs {
		g, ok := c.(*GroupConversation)
		if !ok {
			continue
		}
		if query == "" ||
			strings.Contains(strings.ToLower(g.GroupName), q) ||
			strings.Contains(strings.ToLower(g.Description), q) {
			out = append(out, g)
		}
	}
	return out
}

// SearchConversations filters all conversations by their derived title:
// group name for groups, the other participant's username for 1:1 threads.
func SearchConversations(convs []Conversation, query string) []Conversation {
	if query == "" {
		return append([]Conversation(nil), convs...)
	}
	q := strings.ToLower(query)
	var out []Conversation
	for _, c := range convs {
		if strings.Contains(strings.ToLower(c.Title()), q) {
			out = append(out, c)
		}
	}
	return out
}
