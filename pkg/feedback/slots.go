package feedback

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/valentinpelus/linkbrief/pkg/ledger"
)

// NotePrefix starts the deep-link payload that opens a note
const NotePrefix = "note_"

// NoteSlots holds, per user, the message a pending free-text note applies to.
// A slot is consumed by the user's next private message.
type NoteSlots struct {
	mu    sync.Mutex
	slots map[int64]ledger.MessageID
}

// NewNoteSlots creates an empty slot table
func NewNoteSlots() *NoteSlots {
	return &NoteSlots{slots: make(map[int64]ledger.MessageID)}
}

// Open creates or overwrites the slot of userID
func (s *NoteSlots) Open(userID int64, messageID ledger.MessageID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.slots[userID] = messageID
}

// Take removes and returns the slot of userID
func (s *NoteSlots) Take(userID int64) (ledger.MessageID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.slots[userID]
	if ok {
		delete(s.slots, userID)
	}
	return id, ok
}

// Len returns the number of open slots
func (s *NoteSlots) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.slots)
}

// DeepLink returns the t.me link that opens a private chat with the bot and
// starts a note for messageID.
func DeepLink(botUsername string, messageID ledger.MessageID) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%d", botUsername, NotePrefix, messageID)
}

// ParseStartPayload extracts the message id from a /start argument
func ParseStartPayload(payload string) (ledger.MessageID, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(payload), NotePrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id <= 0 {
		return 0, false
	}
	return ledger.MessageID(id), true
}
