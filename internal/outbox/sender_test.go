package outbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/rest"
	"github.com/matheus3301/chatsync/internal/state"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

// mockAPI records calls and returns configurable results.
type mockAPI struct {
	mu    sync.Mutex
	calls []rest.SendMessageRequest
	err   error
	gate  chan struct{} // if set, SendMessage waits for it
}

func (m *mockAPI) Validate(req any) error {
	r := req.(rest.SendMessageRequest)
	if r.MessageType == model.MessageText && r.Content == "" {
		return fmt.Errorf("%w: Content failed %q", rest.ErrValidation, "required_if")
	}
	return nil
}

func (m *mockAPI) SendMessage(ctx context.Context, req rest.SendMessageRequest) (model.Message, error) {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return model.Message{}, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return model.Message{}, m.err
	}
	return model.Message{
		ID:             fmt.Sprintf("srv-%d", len(m.calls)),
		ConversationID: req.ConversationID,
		SenderID:       "me",
		MessageType:    req.MessageType,
		Content:        req.Content,
		CreatedAt:      time.Now(),
	}, nil
}

func (m *mockAPI) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestSender(t *testing.T, api *mockAPI, db *store.DB) (*Sender, *state.MessageStore, *bus.Bus) {
	t.Helper()
	b := bus.New()
	logger, _ := zap.NewDevelopment()
	messages := state.NewMessageStore(nil, 50, b, logger)
	var journal Journal
	if db != nil {
		journal = db
	}
	return NewSender(api, journal, messages, nil, "me", b, logger), messages, b
}

func textTo(conversationID, text string) rest.SendMessageRequest {
	return rest.SendMessageRequest{ConversationID: conversationID, MessageType: model.MessageText, Content: text}
}

func TestSendReplacesPlaceholder(t *testing.T) {
	db := testDB(t)
	api := &mockAPI{}
	s, messages, b := newTestSender(t, api, db)

	ch, unsub := b.Subscribe(bus.MessageSendAck, 10)
	defer unsub()

	sent, err := s.Send(context.Background(), textTo("C1", "hello"))
	if err != nil {
		t.Fatal(err)
	}
	if sent.ID != "srv-1" || sent.ClientID == "" {
		t.Errorf("sent = %+v", sent)
	}

	msgs := messages.Messages("C1")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].ID != "srv-1" || msgs[0].Status != model.StatusSent {
		t.Errorf("message = %+v, want sent srv-1", msgs[0])
	}

	entry, err := db.GetOutbox(sent.ClientID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != store.OutboxSent || entry.ServerMsgID != "srv-1" {
		t.Errorf("outbox entry = %+v", entry)
	}

	select {
	case evt := <-ch:
		if evt.Payload.(map[string]string)["message_id"] != "srv-1" {
			t.Errorf("ack payload = %v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for send ack")
	}
}

// TestSendShowsSendingThenFailed covers sending "hi" with no network: the
// placeholder is visible while the call is pending, ends up failed, and is
// never duplicated.
func TestSendShowsSendingThenFailed(t *testing.T) {
	db := testDB(t)
	api := &mockAPI{err: errors.New("network unreachable"), gate: make(chan struct{})}
	s, messages, _ := newTestSender(t, api, db)

	done := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), textTo("C1", "hi"))
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for {
		msgs := messages.Messages("C1")
		if len(msgs) == 1 {
			if msgs[0].Status != model.StatusSending || msgs[0].Content != "hi" || msgs[0].SenderID != "me" {
				t.Fatalf("placeholder = %+v", msgs[0])
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("placeholder never appeared")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(api.gate)
	if err := <-done; err == nil {
		t.Fatal("expected send error")
	}

	msgs := messages.Messages("C1")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages after failure, want 1", len(msgs))
	}
	if msgs[0].Status != model.StatusFailed {
		t.Errorf("status = %q, want failed", msgs[0].Status)
	}

	unsent, err := db.UnsentOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(unsent) != 1 || unsent[0].Status != store.OutboxFailed {
		t.Errorf("unsent = %+v", unsent)
	}
}

func TestValidationRejectsBeforeNetwork(t *testing.T) {
	api := &mockAPI{}
	s, messages, _ := newTestSender(t, api, nil)

	_, err := s.Send(context.Background(), textTo("C1", ""))
	if !errors.Is(err, rest.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if api.callCount() != 0 {
		t.Error("network called for an invalid message")
	}
	if len(messages.Messages("C1")) != 0 {
		t.Error("placeholder created for an invalid message")
	}
}

func TestRetryAfterFailure(t *testing.T) {
	api := &mockAPI{err: errors.New("offline")}
	s, messages, _ := newTestSender(t, api, testDB(t))

	if _, err := s.Send(context.Background(), textTo("C1", "again")); err == nil {
		t.Fatal("expected failure")
	}
	pending := s.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending = %v", pending)
	}

	api.mu.Lock()
	api.err = nil
	api.mu.Unlock()

	sent, err := s.Retry(context.Background(), pending[0])
	if err != nil {
		t.Fatal(err)
	}
	if sent.ClientID != pending[0] {
		t.Errorf("retry used client id %q, want %q", sent.ClientID, pending[0])
	}
	msgs := messages.Messages("C1")
	if len(msgs) != 1 || msgs[0].Status != model.StatusSent {
		t.Errorf("messages after retry = %+v", msgs)
	}
	if len(s.Pending()) != 0 {
		t.Error("pending not cleared after retry")
	}

	if _, err := s.Retry(context.Background(), "unknown"); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("retry unknown err = %v", err)
	}
}

func TestEchoBeforeResponseIsNotDuplicated(t *testing.T) {
	api := &mockAPI{gate: make(chan struct{})}
	s, messages, _ := newTestSender(t, api, nil)

	done := make(chan model.Message, 1)
	go func() {
		m, _ := s.Send(context.Background(), textTo("C1", "race"))
		done <- m
	}()

	var clientID string
	deadline := time.After(2 * time.Second)
	for clientID == "" {
		if msgs := messages.Messages("C1"); len(msgs) == 1 {
			clientID = msgs[0].ClientID
			break
		}
		select {
		case <-deadline:
			t.Fatal("placeholder never appeared")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// The server's push arrives before the REST response.
	messages.Upsert(model.Message{ID: "srv-1", ConversationID: "C1", SenderID: "me", Content: "race", CreatedAt: time.Now()})
	close(api.gate)
	<-done

	msgs := messages.Messages("C1")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1: %+v", len(msgs), msgs)
	}
	if msgs[0].ID != "srv-1" || msgs[0].ClientID != clientID {
		t.Errorf("message = %+v", msgs[0])
	}
}

func TestRestoreFailedAfterRestart(t *testing.T) {
	db := testDB(t)
	api := &mockAPI{err: errors.New("offline")}
	first, _, _ := newTestSender(t, api, db)
	if _, err := first.Send(context.Background(), textTo("C1", "lost")); err == nil {
		t.Fatal("expected failure")
	}
	if err := db.QueueOutbox("11111111-1111-4111-8111-111111111111", "C2", []byte(`{"message_type":"text","content":"mid-flight"}`)); err != nil {
		t.Fatal(err)
	}

	second, messages, _ := newTestSender(t, &mockAPI{}, db)
	n, err := second.RestoreFailed()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("restored %d, want 2", n)
	}

	for _, conv := range []string{"C1", "C2"} {
		msgs := messages.Messages(conv)
		if len(msgs) != 1 || msgs[0].Status != model.StatusFailed {
			t.Errorf("%s messages = %+v, want one failed placeholder", conv, msgs)
		}
	}

	unsent, err := db.UnsentOutbox()
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range unsent {
		if e.Status != store.OutboxFailed {
			t.Errorf("entry %s status = %q, want failed", e.ClientID, e.Status)
		}
	}

	if err := second.Discard("11111111-1111-4111-8111-111111111111"); err != nil {
		t.Fatal(err)
	}
	if len(messages.Messages("C2")) != 0 {
		t.Error("discarded placeholder still visible")
	}
}
