package chat

import (
	"context"
	"sync"
	"time"

	"github.com/chatwire/chat-platform/internal/cache"
	"github.com/chatwire/chat-platform/internal/model"
	"github.com/chatwire/chat-platform/internal/notify"
	"github.com/chatwire/chat-platform/internal/store"
)

// fakeStore is an in-memory store.Store for handler tests.
type fakeStore struct {
	mu           sync.Mutex
	users        map[string]*model.User
	participants map[string][]model.Participant // conversationID -> participants
	messages     []*model.Message
	touched      map[string]time.Time

	failCreateMessage bool
	failIsParticipant bool
	online            map[string]bool
	markReadCalls     []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        make(map[string]*model.User),
		participants: make(map[string][]model.Participant),
		touched:      make(map[string]time.Time),
		online:       make(map[string]bool),
	}
}

func (s *fakeStore) addUser(id, username, name string) {
	s.users[id] = &model.User{ID: id, Username: username, Name: name}
}

func (s *fakeStore) addParticipant(conversationID, userID string) {
	user := s.users[userID]
	s.participants[conversationID] = append(s.participants[conversationID], model.Participant{
		ConversationID: conversationID,
		UserID:         userID,
		Username:       user.Username,
		Name:           user.Name,
	})
}

func (s *fakeStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *fakeStore) CreateConversation(ctx context.Context, conv *model.Conversation, participantIDs []string) error {
	return nil
}

func (s *fakeStore) FindDirectConversation(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	return nil, store.ErrNotFound
}

func (s *fakeStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	return nil, store.ErrNotFound
}

func (s *fakeStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[id] = at
	return nil
}

func (s *fakeStore) DeleteConversation(ctx context.Context, id string) error {
	return nil
}

func (s *fakeStore) ListConversationsByParticipant(ctx context.Context, userID string) ([]model.Conversation, error) {
	return nil, nil
}

func (s *fakeStore) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	if s.failIsParticipant {
		return false, errStoreDown
	}
	for _, p := range s.participants[conversationID] {
		if p.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) Participants(ctx context.Context, conversationID string) ([]model.Participant, error) {
	return s.participants[conversationID], nil
}

func (s *fakeStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	if s.failCreateMessage {
		return errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *fakeStore) ListMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]model.Message, error) {
	return nil, nil
}

func (s *fakeStore) MarkMessagesRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markReadCalls = append(s.markReadCalls, conversationID+"/"+readerID)
	return 1, nil
}

func (s *fakeStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) SetUserOnline(ctx context.Context, userID string, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[userID] = online
	return nil
}

// fakeCache implements cache.Cache with real set semantics and a record of
// deleted keys.
type fakeCache struct {
	mu      sync.Mutex
	kv      map[string][]byte
	sets    map[string]map[string]bool
	deleted []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		kv:   make(map[string][]byte),
		sets: make(map[string]map[string]bool),
	}
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.kv[key]; ok {
		return v, nil
	}
	return nil, cache.ErrMiss
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kv[key] = value
	return nil
}

func (c *fakeCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.kv, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}

func (c *fakeCache) DelByPrefix(ctx context.Context, prefix string) error {
	return nil
}

func (c *fakeCache) AddMember(ctx context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets[key] == nil {
		c.sets[key] = make(map[string]bool)
	}
	for _, m := range members {
		c.sets[key][m] = true
	}
	return nil
}

func (c *fakeCache) RemoveMember(ctx context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range members {
		delete(c.sets[key], m)
	}
	return nil
}

func (c *fakeCache) IsMember(ctx context.Context, key, member string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets[key][member], nil
}

func (c *fakeCache) Members(ctx context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	members := make([]string, 0, len(c.sets[key]))
	for m := range c.sets[key] {
		members = append(members, m)
	}
	return members, nil
}

func (c *fakeCache) Cardinality(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.sets[key])), nil
}

func (c *fakeCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

// evictSet drops a set key outright, the way Redis does when its TTL lapses.
func (c *fakeCache) evictSet(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sets, key)
}

func (c *fakeCache) wasDeleted(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.deleted {
		if k == key {
			return true
		}
	}
	return false
}

// fakeIndexer records search sink submissions.
type fakeIndexer struct {
	mu       sync.Mutex
	messages []string
	users    []string
}

func (i *fakeIndexer) IndexMessage(ctx context.Context, msg *model.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.messages = append(i.messages, msg.ID)
	return nil
}

func (i *fakeIndexer) UpdateUserOnline(ctx context.Context, userID string, online bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.users = append(i.users, userID)
	return nil
}

func (i *fakeIndexer) DeleteConversation(ctx context.Context, conversationID string) error {
	return nil
}

func (i *fakeIndexer) indexedMessages() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.messages)
}

// fakeDispatcher records notification jobs.
type fakeDispatcher struct {
	mu   sync.Mutex
	jobs []*notify.Job
}

func (d *fakeDispatcher) MessageNotification(ctx context.Context, job *notify.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *fakeDispatcher) jobsFor(userID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, j := range d.jobs {
		if j.RecipientID == userID {
			n++
		}
	}
	return n
}
