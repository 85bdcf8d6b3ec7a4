package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/active"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/rest"
	"github.com/matheus3301/chatsync/internal/state"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/ws"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Outbox reports unsent messages. *outbox.Sender implements it.
type Outbox interface {
	Pending() []string
}

// Deps are the daemon components the service reads and drives. Pins,
// Notes, Drafts and Outbox may be nil.
type Deps struct {
	Session       string
	Machine       *status.Machine
	Bus           *bus.Bus
	Conversations *state.ConversationStore
	Messages      *state.MessageStore
	Pins          *state.PinStore
	Notes         *state.NoteStore
	Drafts        *state.DraftStore
	Active        *active.Context
	Outbox        Outbox
	Logger        *zap.Logger
}

// ControlService implements ControlServer over the daemon's stores.
type ControlService struct {
	d      Deps
	logger *zap.Logger
}

var _ ControlServer = (*ControlService)(nil)

// NewControlService creates the service.
func NewControlService(d Deps) *ControlService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ControlService{d: d, logger: logger}
}

func (s *ControlService) GetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	st := StatusReply{
		Session:            s.d.Session,
		State:              string(s.d.Machine.Current()),
		Since:              s.d.Machine.Since(),
		ActiveConversation: s.d.Active.ConversationID(),
		Conversations:      len(s.d.Conversations.List()),
		UnreadTotal:        s.d.Conversations.UnreadTotal(),
	}
	if s.d.Outbox != nil {
		st.PendingSends = s.d.Outbox.Pending()
	}
	return reply(st)
}

func (s *ControlService) ListConversations(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return reply(ConversationsReply{Conversations: s.d.Conversations.List()})
}

func (s *ControlService) ListMessages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.conversationID(in)
	if err != nil {
		return nil, err
	}
	msgs := s.d.Messages.Messages(id)
	if len(msgs) == 0 {
		if err := s.d.Messages.Fetch(ctx, id); err != nil {
			return nil, toStatus(err)
		}
		msgs = s.d.Messages.Messages(id)
	}
	return reply(MessagesReply{ConversationID: id, Messages: msgs})
}

func (s *ControlService) OpenConversation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ConversationRequest
	if err := decode(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	if req.ConversationID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "conversation_id is required")
	}
	if err := s.d.Active.Open(ctx, req.ConversationID); err != nil {
		return nil, toStatus(err)
	}
	c, _ := s.d.Active.Conversation()
	return reply(ConversationReply{Conversation: c})
}

func (s *ControlService) SendMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SendRequest
	if err := decode(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	var (
		m   model.Message
		err error
	)
	if req.ReplyTo != "" {
		m, err = s.d.Active.ReplyToMessage(ctx, req.ReplyTo, req.Text)
	} else {
		m, err = s.d.Active.SendMessage(ctx, req.Text)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(MessageReply{Message: m})
}

func (s *ControlService) ListTyping(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	id := s.d.Active.ConversationID()
	if id == "" {
		return nil, toStatus(active.ErrNoActiveConversation)
	}
	return reply(TypingReply{ConversationID: id, Users: s.d.Active.TypingUsers()})
}

func (s *ControlService) ListPinned(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.d.Pins == nil {
		return nil, grpcstatus.Error(codes.Unimplemented, "pins are not enabled")
	}
	id, err := s.conversationID(in)
	if err != nil {
		return nil, err
	}
	if id != s.d.Active.ConversationID() {
		if err := s.d.Pins.Fetch(ctx, id); err != nil {
			return nil, toStatus(err)
		}
	}
	return reply(PinsReply{ConversationID: id, Pins: s.d.Pins.Pinned(id)})
}

func (s *ControlService) ListNotes(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	if s.d.Notes == nil {
		return nil, grpcstatus.Error(codes.Unimplemented, "notes are not enabled")
	}
	return reply(NotesReply{Notes: s.d.Notes.Notes()})
}

func (s *ControlService) GetDraft(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.d.Drafts == nil {
		return nil, grpcstatus.Error(codes.Unimplemented, "drafts are not enabled")
	}
	id, err := s.conversationID(in)
	if err != nil {
		return nil, err
	}
	return reply(DraftReply{ConversationID: id, Text: s.d.Drafts.Get(id)})
}

func (s *ControlService) SetDraft(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.d.Drafts == nil {
		return nil, grpcstatus.Error(codes.Unimplemented, "drafts are not enabled")
	}
	var req DraftRequest
	if err := decode(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	if req.ConversationID == "" || req.ConversationID == s.d.Active.ConversationID() {
		if err := s.d.Active.SetDraft(req.Text); err != nil {
			return nil, toStatus(err)
		}
		req.ConversationID = s.d.Active.ConversationID()
	} else {
		s.d.Drafts.Set(req.ConversationID, req.Text)
	}
	return reply(DraftReply{ConversationID: req.ConversationID, Text: s.d.Drafts.Get(req.ConversationID)})
}

// Watch relays bus events whose kind starts with the requested prefix
// until the client goes away.
func (s *ControlService) Watch(in *structpb.Struct, stream grpc.ServerStream) error {
	var req WatchRequest
	if err := decode(in, &req); err != nil {
		return grpcstatus.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	ch, unsub := s.d.Bus.Subscribe(req.Prefix, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			out := Event{
				ID:         uuid.NewString(),
				Session:    s.d.Session,
				Kind:       evt.Kind,
				OccurredAt: evt.Timestamp,
			}
			if evt.Payload != nil {
				if data, err := json.Marshal(evt.Payload); err == nil {
					out.Payload = data
				}
			}
			msg, err := encode(out)
			if err != nil {
				s.logger.Warn("watch event not encodable", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *ControlService) conversationID(in *structpb.Struct) (string, error) {
	var req ConversationRequest
	if err := decode(in, &req); err != nil {
		return "", grpcstatus.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	if req.ConversationID == "" {
		req.ConversationID = s.d.Active.ConversationID()
	}
	if req.ConversationID == "" {
		return "", toStatus(active.ErrNoActiveConversation)
	}
	return req.ConversationID, nil
}

func reply(v any) (*structpb.Struct, error) {
	out, err := encode(v)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode reply: %v", err)
	}
	return out, nil
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	var apiErr *rest.APIError
	switch {
	case errors.Is(err, active.ErrNoActiveConversation):
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, active.ErrSuperseded):
		return grpcstatus.Error(codes.Aborted, err.Error())
	case errors.Is(err, rest.ErrValidation):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ws.ErrNotConnected):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return grpcstatus.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	case errors.As(err, &apiErr):
		return grpcstatus.Error(httpCode(apiErr.StatusCode), err.Error())
	}
	return grpcstatus.Error(codes.Internal, err.Error())
}

func httpCode(status int) codes.Code {
	switch {
	case status == http.StatusNotFound:
		return codes.NotFound
	case status == http.StatusUnauthorized:
		return codes.Unauthenticated
	case status == http.StatusForbidden:
		return codes.PermissionDenied
	case status == http.StatusConflict:
		return codes.AlreadyExists
	case status == http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case status >= 400 && status < 500:
		return codes.InvalidArgument
	}
	return codes.Unavailable
}
