package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Conversation identifies the unit of subscription and unread tracking:
// either a channel or the unordered pair of two users exchanging direct
// messages. The string form doubles as the change-feed partition key.
type Conversation string

const (
	conversationChannelPrefix = "channel:"
	conversationDirectPrefix  = "dm:"
)

// ChannelConversation builds the conversation key for a channel.
func ChannelConversation(channelID uint) Conversation {
	return Conversation(fmt.Sprintf("%s%d", conversationChannelPrefix, channelID))
}

// DirectConversation builds the conversation key for a DM pair. The pair is
// normalized so both participants derive the same key.
func DirectConversation(a, b string) Conversation {
	if b < a {
		a, b = b, a
	}
	return Conversation(conversationDirectPrefix + a + ":" + b)
}

// IsChannel reports whether the conversation refers to a channel.
func (c Conversation) IsChannel() bool {
	return strings.HasPrefix(string(c), conversationChannelPrefix)
}

// IsDirect reports whether the conversation refers to a DM pair.
func (c Conversation) IsDirect() bool {
	return strings.HasPrefix(string(c), conversationDirectPrefix)
}

// ChannelID extracts the channel identifier from a channel conversation key.
func (c Conversation) ChannelID() (uint, bool) {
	if !c.IsChannel() {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(string(c), conversationChannelPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// DirectPair extracts both participants from a DM conversation key.
func (c Conversation) DirectPair() (string, string, bool) {
	if !c.IsDirect() {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(string(c), conversationDirectPrefix), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Peer returns the other participant of a DM conversation.
func (c Conversation) Peer(userID string) (string, bool) {
	a, b, ok := c.DirectPair()
	if !ok {
		return "", false
	}
	switch userID {
	case a:
		return b, true
	case b:
		return a, true
	default:
		return "", false
	}
}

func (c Conversation) String() string {
	return string(c)
}

// ParseConversation validates and normalizes a raw conversation key.
func ParseConversation(raw string) (Conversation, error) {
	c := Conversation(strings.TrimSpace(raw))
	if _, ok := c.ChannelID(); ok {
		return c, nil
	}
	if a, b, ok := c.DirectPair(); ok {
		return DirectConversation(a, b), nil
	}
	return "", fmt.Errorf("invalid conversation key %q", raw)
}
