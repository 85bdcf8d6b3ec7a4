// Package outbox sends messages optimistically. A placeholder appears in
// the message store before the network call, every attempt is journaled so
// failed sends survive a restart, and the placeholder is later swapped for
// the server's copy or left visible as failed.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/rest"
	"github.com/matheus3301/chatsync/internal/state"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

// ErrUnknownMessage is returned by Retry and Discard for a client id that
// has no unsent message.
var ErrUnknownMessage = errors.New("no unsent message with that client id")

// API is the REST surface used to send.
type API interface {
	Validate(req any) error
	SendMessage(ctx context.Context, req rest.SendMessageRequest) (model.Message, error)
}

// Journal records send attempts durably. *store.DB implements it.
type Journal interface {
	QueueOutbox(clientID, conversationID string, payload []byte) error
	MarkOutboxSending(clientID string) error
	MarkOutboxSent(clientID, serverMsgID string) error
	MarkOutboxFailed(clientID, errMsg string) error
	UnsentOutbox() ([]store.OutboxEntry, error)
	DeleteOutbox(clientID string) error
}

// Sender turns send requests into optimistic placeholders and REST calls.
type Sender struct {
	api           API
	journal       Journal
	messages      *state.MessageStore
	conversations *state.ConversationStore
	selfID        string
	bus           *bus.Bus
	logger        *zap.Logger

	mu      sync.Mutex
	pending map[string]rest.SendMessageRequest // by client id
}

// NewSender creates a sender. journal and conversations may be nil.
func NewSender(api API, journal Journal, messages *state.MessageStore, conversations *state.ConversationStore, selfID string, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		api:           api,
		journal:       journal,
		messages:      messages,
		conversations: conversations,
		selfID:        selfID,
		bus:           b,
		logger:        logger,
		pending:       make(map[string]rest.SendMessageRequest),
	}
}

// Send validates req, shows a placeholder with status sending and posts the
// message. On success the placeholder is replaced by the server's copy; on
// failure it is marked failed and the error is returned.
func (s *Sender) Send(ctx context.Context, req rest.SendMessageRequest) (model.Message, error) {
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	if err := s.api.Validate(req); err != nil {
		return model.Message{}, err
	}

	s.mu.Lock()
	s.pending[req.ClientID] = req
	s.mu.Unlock()

	s.messages.Upsert(placeholder(req, s.selfID, time.Now(), model.StatusSending))
	s.journalQueue(req)
	return s.attempt(ctx, req)
}

// Retry resends a failed message under its original client id.
func (s *Sender) Retry(ctx context.Context, clientID string) (model.Message, error) {
	s.mu.Lock()
	req, ok := s.pending[clientID]
	s.mu.Unlock()
	if !ok {
		return model.Message{}, fmt.Errorf("retry %s: %w", clientID, ErrUnknownMessage)
	}
	if !s.messages.MarkSending(req.ConversationID, clientID) {
		s.messages.Upsert(placeholder(req, s.selfID, time.Now(), model.StatusSending))
	}
	s.journalQueue(req)
	return s.attempt(ctx, req)
}

// Discard drops a failed message without sending it.
func (s *Sender) Discard(clientID string) error {
	s.mu.Lock()
	req, ok := s.pending[clientID]
	delete(s.pending, clientID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("discard %s: %w", clientID, ErrUnknownMessage)
	}
	s.messages.RemovePending(req.ConversationID, clientID)
	if s.journal != nil {
		if err := s.journal.DeleteOutbox(clientID); err != nil {
			return fmt.Errorf("discard %s: %w", clientID, err)
		}
	}
	return nil
}

// Pending returns the client ids of messages not yet confirmed.
func (s *Sender) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	return ids
}

// RestoreFailed puts every journaled unsent message back into the message
// store as a failed placeholder, so it can be retried after a restart.
// Attempts interrupted mid-flight are recorded as failed.
func (s *Sender) RestoreFailed() (int, error) {
	if s.journal == nil {
		return 0, nil
	}
	entries, err := s.journal.UnsentOutbox()
	if err != nil {
		return 0, fmt.Errorf("read outbox: %w", err)
	}

	restored := 0
	for _, e := range entries {
		var req rest.SendMessageRequest
		if err := json.Unmarshal(e.Payload, &req); err != nil {
			s.logger.Warn("dropping unreadable outbox entry", zap.String("client_id", e.ClientID), zap.Error(err))
			_ = s.journal.DeleteOutbox(e.ClientID)
			continue
		}
		req.ConversationID = e.ConversationID
		req.ClientID = e.ClientID

		if e.Status != store.OutboxFailed {
			if err := s.journal.MarkOutboxFailed(e.ClientID, "interrupted"); err != nil {
				s.logger.Warn("failed to mark interrupted send", zap.String("client_id", e.ClientID), zap.Error(err))
			}
		}

		s.mu.Lock()
		s.pending[req.ClientID] = req
		s.mu.Unlock()
		s.messages.Upsert(placeholder(req, s.selfID, e.CreatedAt, model.StatusFailed))
		restored++
	}
	if restored > 0 {
		s.logger.Info("restored unsent messages", zap.Int("count", restored))
	}
	return restored, nil
}

func (s *Sender) attempt(ctx context.Context, req rest.SendMessageRequest) (model.Message, error) {
	if s.journal != nil {
		if err := s.journal.MarkOutboxSending(req.ClientID); err != nil {
			s.logger.Warn("failed to mark sending", zap.String("client_id", req.ClientID), zap.Error(err))
		}
	}

	sent, err := s.api.SendMessage(ctx, req)
	if err != nil {
		s.messages.MarkFailed(req.ConversationID, req.ClientID)
		if s.journal != nil {
			if jerr := s.journal.MarkOutboxFailed(req.ClientID, err.Error()); jerr != nil {
				s.logger.Warn("failed to mark failed", zap.String("client_id", req.ClientID), zap.Error(jerr))
			}
		}
		s.logger.Warn("message send failed",
			zap.String("conversation_id", req.ConversationID),
			zap.String("client_id", req.ClientID),
			zap.Error(err),
		)
		s.bus.Emit(bus.MessageSendFailed, map[string]string{
			"conversation_id": req.ConversationID,
			"client_id":       req.ClientID,
			"error":           err.Error(),
		})
		return model.Message{}, fmt.Errorf("send message: %w", err)
	}

	if sent.ConversationID == "" {
		sent.ConversationID = req.ConversationID
	}
	sent.ClientID = req.ClientID
	sent.Status = model.StatusSent
	s.messages.ReplacePending(req.ConversationID, req.ClientID, sent)
	if s.conversations != nil {
		s.conversations.ApplyMessage(sent, s.selfID, true)
	}

	s.mu.Lock()
	delete(s.pending, req.ClientID)
	s.mu.Unlock()
	if s.journal != nil {
		if err := s.journal.MarkOutboxSent(req.ClientID, sent.ID); err != nil {
			s.logger.Warn("failed to mark sent", zap.String("client_id", req.ClientID), zap.Error(err))
		}
	}

	s.logger.Info("message sent", zap.String("client_id", req.ClientID), zap.String("message_id", sent.ID))
	s.bus.Emit(bus.MessageSendAck, map[string]string{
		"conversation_id": req.ConversationID,
		"client_id":       req.ClientID,
		"message_id":      sent.ID,
	})
	return sent, nil
}

func (s *Sender) journalQueue(req rest.SendMessageRequest) {
	if s.journal == nil {
		return
	}
	payload, err := json.Marshal(req)
	if err == nil {
		err = s.journal.QueueOutbox(req.ClientID, req.ConversationID, payload)
	}
	if err != nil {
		s.logger.Warn("failed to journal send", zap.String("client_id", req.ClientID), zap.Error(err))
	}
}

// placeholder builds the local copy of an unsent message.
func placeholder(req rest.SendMessageRequest, selfID string, at time.Time, status model.MessageStatus) model.Message {
	return model.Message{
		ClientID:          req.ClientID,
		ConversationID:    req.ConversationID,
		SenderID:          selfID,
		MessageType:       req.MessageType,
		Content:           req.Content,
		MediaURL:          req.MediaURL,
		MediaThumbnailURL: req.MediaThumbnailURL,
		FileName:          req.FileName,
		FileSize:          req.FileSize,
		MimeType:          req.MimeType,
		StickerID:         req.StickerID,
		ReplyToID:         req.ReplyToID,
		AlbumFiles:        model.SortAlbumFiles(req.AlbumFiles),
		Status:            status,
		CreatedAt:         at,
		UpdatedAt:         at,
	}
}
