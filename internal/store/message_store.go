package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"eptp/internal/domain"
)

// MessageFileStore persists message history as one JSON file per
// conversation under dir.
type MessageFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewMessageFileStore returns a MessageFileStore rooted at dir.
func NewMessageFileStore(dir string) *MessageFileStore {
	return &MessageFileStore{dir: dir}
}

// Append adds one message to its conversation's history.
func (s *MessageFileStore) Append(msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.chatPath(msg.ChatID)
	var msgs []domain.Message
	if err := readJSON(path, &msgs); err != nil {
		return err
	}
	msgs = append(msgs, msg)
	return writeJSON(path, msgs, 0o600)
}

// History returns all stored messages for chatID in append order.
func (s *MessageFileStore) History(chatID domain.ChatID) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msgs []domain.Message
	if err := readJSON(s.chatPath(chatID), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkRead flips the matching message to StatusRead. A receipt for an
// unknown ID is a no-op: the message may predate this install.
func (s *MessageFileStore) MarkRead(chatID domain.ChatID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.chatPath(chatID)
	var msgs []domain.Message
	if err := readJSON(path, &msgs); err != nil {
		return err
	}
	changed := false
	for i := range msgs {
		if msgs[i].ID == messageID && msgs[i].Status != domain.StatusRead {
			msgs[i].Status = domain.StatusRead
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return writeJSON(path, msgs, 0o600)
}

// Contacts projects the latest chat message per conversation involving self.
// Keepalive and receipt frames are never persisted, so everything stored
// counts toward the projection.
func (s *MessageFileStore) Contacts(self domain.UserID) ([]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []domain.Contact
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, chatFilePrefix) || !strings.HasSuffix(name, chatFileSuffix) {
			continue
		}
		var msgs []domain.Message
		if err := readJSON(filepath.Join(s.dir, name), &msgs); err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			continue
		}
		last := msgs[len(msgs)-1]
		partner := last.From
		if partner == self {
			partner = last.To
		}
		out = append(out, domain.Contact{
			ID:              partner,
			Name:            partner.String(),
			LastMessage:     preview(last),
			LastMessageTime: last.Timestamp,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageTime > out[j].LastMessageTime })
	return out, nil
}

const (
	chatFilePrefix = "chat-"
	chatFileSuffix = ".json"
)

func (s *MessageFileStore) chatPath(chatID domain.ChatID) string {
	// User IDs are alphanumeric, so only the "::" separator needs rewriting
	// into something filename-safe.
	name := strings.ReplaceAll(chatID.String(), "::", "--")
	return filepath.Join(s.dir, chatFilePrefix+name+chatFileSuffix)
}

func preview(msg domain.Message) string {
	if msg.Type == domain.MessageImage {
		return "[image]"
	}
	return msg.Payload
}

// Compile-time assertion that MessageFileStore implements domain.MessageStore.
var _ domain.MessageStore = (*MessageFileStore)(nil)
