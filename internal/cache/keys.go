package cache

// Semantic key prefixes. These names are shared with other services reading
// the same Redis instance and must not change.
const (
	SessionPrefix           = "session:"
	ConversationPrefix      = "conversation:"
	UserConversationsPrefix = "user:conversations:"
	UserOnlinePrefix        = "user:online:"
	OnlineConnsPrefix       = "online:conns:"

	// OnlineUsersKey is the set of currently online user ids.
	OnlineUsersKey = "online:users"
)

// SessionKey builds the key for a cached session blob.
func SessionKey(token string) string {
	return SessionPrefix + token
}

// ConversationKey builds the key for a cached conversation.
func ConversationKey(conversationID string) string {
	return ConversationPrefix + conversationID
}

// UserConversationsKey builds the key for a user's cached conversation list.
func UserConversationsKey(userID string) string {
	return UserConversationsPrefix + userID
}

// UserOnlineKey builds the key for the short-TTL per-user presence blob.
func UserOnlineKey(userID string) string {
	return UserOnlinePrefix + userID
}

// OnlineConnsKey builds the key for a user's live-connection set. The user is
// online iff this set is non-empty.
func OnlineConnsKey(userID string) string {
	return OnlineConnsPrefix + userID
}
