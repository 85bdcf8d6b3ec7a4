package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/matheus3301/chatsync/internal/active"
	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/identity"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/rest"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/state"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"github.com/matheus3301/chatsync/internal/ws"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      *config.Config
	Paths       session.Paths
	SocketPath  string    // optional override for testing; empty = use default
	Console     io.Writer // console log output; nil = stderr
	Clock       clockwork.Clock
}

// Stores groups the in-memory caches of one daemon.
type Stores struct {
	Conversations *state.ConversationStore
	Messages      *state.MessageStore
	Pins          *state.PinStore
	Typing        *state.TypingStore
	Presence      *state.PresenceStore
	Friends       *state.FriendStore
	Notes         *state.NoteStore
	NoteEditor    *state.NoteEditor
	Scheduled     *state.ScheduledStore
	Activity      *state.ActivityStore
	Drafts        *state.DraftStore
	Settings      *state.SettingsStore
}

// Reconcilers groups the long-lived event stream subscribers. The active
// context owns the per-conversation ones.
type Reconcilers struct {
	Engine   *intsync.Engine
	Presence *intsync.PresenceWatcher
	Notes    *intsync.NoteReconciler
	Activity *intsync.ActivityLog
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideSelf,
			provideREST,
			provideStream,
			provideStores,
			provideSender,
			provideActive,
			provideReconcilers,
			provideControlService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func (p Params) clock() clockwork.Clock {
	if p.Clock == nil {
		return clockwork.NewRealClock()
	}
	return p.Clock
}

func provideLogger(p Params) (*zap.Logger, error) {
	console := p.Console
	if console == nil {
		console = os.Stderr
	}
	return logging.New(logging.Options{
		File:    p.Paths.LogFile(),
		Console: console,
		Level:   p.Config.LogLevel,
		Session: p.SessionName,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := p.Paths.Ensure(); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("path", p.Paths.Lock()))
	l, err := lock.Acquire(p.Paths.Lock(), p.SessionName)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is never opened by a second
// daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := p.Paths.DB()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideSelf(p Params, logger *zap.Logger) (identity.Self, error) {
	if p.Config.Server.Token == "" {
		return identity.Self{}, fmt.Errorf("no token configured: set server.token or %sTOKEN", config.EnvPrefix)
	}
	self, err := identity.FromToken(p.Config.Server.Token)
	if err != nil {
		return identity.Self{}, err
	}
	logger.Info("authenticated user", zap.String("user_id", self.UserID), zap.String("username", self.Username))
	return self, nil
}

func provideREST(p Params, logger *zap.Logger) (*rest.Client, error) {
	cfg := p.Config
	return rest.New(rest.Options{
		BaseURL: cfg.Server.BaseURL,
		Token:   cfg.Server.Token,
		Timeout: cfg.Server.RequestTimeout.Duration,
		Upload: rest.UploadLimits{
			MaxImageBytes: cfg.Uploads.MaxImageBytes,
			MaxFileBytes:  cfg.Uploads.MaxFileBytes,
			Presigned:     cfg.Uploads.Presigned,
		},
	}, logger.Named("rest"))
}

func provideStream(p Params, machine *status.Machine, logger *zap.Logger) *ws.Client {
	return ws.New(ws.Options{
		URL:          p.Config.Server.WSURL,
		Token:        p.Config.Server.Token,
		ReconnectMin: p.Config.Timing.ReconnectMin.Duration,
		ReconnectMax: p.Config.Timing.ReconnectMax.Duration,
	}, machine, logger.Named("ws"))
}

func provideStores(p Params, client *rest.Client, db *store.DB, self identity.Self, b *bus.Bus, logger *zap.Logger) *Stores {
	timing := p.Config.Timing
	clock := p.clock()
	l := logger.Named("state")
	messages := state.NewMessageStore(client, timing.PageSize, b, l)
	notes := state.NewNoteStore(client, timing.PageSize, b, l)
	return &Stores{
		Conversations: state.NewConversationStore(client, timing.PageSize, b, l),
		Messages:      messages,
		Pins:          state.NewPinStore(client, messages, b, l),
		Typing:        state.NewTypingStore(self.UserID, b, l),
		Presence:      state.NewPresenceStore(client, b, l),
		Friends:       state.NewFriendStore(client, self.UserID, b, l),
		Notes:         notes,
		NoteEditor:    state.NewNoteEditor(notes, clock, timing.NoteAutosave.Duration, l),
		Scheduled:     state.NewScheduledStore(client, b, l),
		Activity:      state.NewActivityStore(200, b, l),
		Drafts:        state.NewDraftStore(db, clock, timing.DraftDebounce.Duration, b, l),
		Settings:      state.NewSettingsStore(db, b, l),
	}
}

func provideSender(client *rest.Client, db *store.DB, stores *Stores, self identity.Self, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(client, db, stores.Messages, stores.Conversations, self.UserID, b, logger.Named("outbox"))
}

func provideActive(p Params, stream *ws.Client, stores *Stores, sender *outbox.Sender, client *rest.Client, self identity.Self, b *bus.Bus, logger *zap.Logger) *active.Context {
	return active.New(active.Deps{
		Stream:        stream,
		Conversations: stores.Conversations,
		Messages:      stores.Messages,
		Pins:          stores.Pins,
		Typing:        stores.Typing,
		Drafts:        stores.Drafts,
		Sender:        sender,
		Uploader:      client,
		SelfID:        self.UserID,
		Clock:         p.clock(),
		TypingOptions: intsync.TypingOptions{
			Timeout: p.Config.Timing.TypingTimeout.Duration,
			Idle:    p.Config.Timing.TypingIdle.Duration,
		},
		Bus:    b,
		Logger: logger.Named("active"),
	})
}

func provideReconcilers(p Params, stream *ws.Client, stores *Stores, machine *status.Machine, self identity.Self, b *bus.Bus, logger *zap.Logger) *Reconcilers {
	l := logger.Named("sync")
	return &Reconcilers{
		Engine: intsync.NewEngine(stream, intsync.Stores{
			Conversations: stores.Conversations,
			Messages:      stores.Messages,
			Pins:          stores.Pins,
			Friends:       stores.Friends,
		}, self.UserID, l),
		Presence: intsync.NewPresenceWatcher(stream, stores.Presence, machine, b, p.clock(), p.Config.Timing.PresencePoll.Duration, l),
		Notes:    intsync.NewNoteReconciler(stream, stores.Notes),
		Activity: intsync.NewActivityLog(stream, stores.Activity, self.UserID, p.clock()),
	}
}

func provideControlService(p Params, machine *status.Machine, b *bus.Bus, stores *Stores, act *active.Context, sender *outbox.Sender, logger *zap.Logger) *api.ControlService {
	return api.NewControlService(api.Deps{
		Session:       p.SessionName,
		Machine:       machine,
		Bus:           b,
		Conversations: stores.Conversations,
		Messages:      stores.Messages,
		Pins:          stores.Pins,
		Notes:         stores.Notes,
		Drafts:        stores.Drafts,
		Active:        act,
		Outbox:        sender,
		Logger:        logger.Named("api"),
	})
}

type lifecycleParams struct {
	fx.In

	Params      Params
	Server      *Server
	Lock        *lock.Lock
	DB          *store.DB
	Stream      *ws.Client
	Stores      *Stores
	Reconcilers *Reconcilers
	Sender      *outbox.Sender
	Active      *active.Context
	Self        identity.Self
	Bus         *bus.Bus
	Logger      *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, lp lifecycleParams) {
	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	logger := lp.Logger
	rec := lp.Reconcilers

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())

			// Failed sends from the previous run reappear before anything
			// else touches the message store.
			if n, err := lp.Sender.RestoreFailed(); err != nil {
				logger.Warn("restoring unsent messages failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("unsent messages restored as failed", zap.Int("count", n))
			}

			rec.Engine.SetActive(lp.Active.ConversationID)
			rec.Engine.Start(runCtx)
			rec.Notes.Start(runCtx)
			rec.Activity.Start(runCtx)
			rec.Presence.Start(runCtx)

			follower := newPresenceFollower(lp.Bus, lp.Stores, rec.Presence, lp.Self.UserID, lp.Params.clock(), presenceRefresh)

			wg.Add(4)
			go func() {
				defer wg.Done()
				if err := lp.Stream.Run(runCtx); err != nil && runCtx.Err() == nil {
					logger.Error("event stream stopped", zap.Error(err))
				}
			}()
			go func() {
				defer wg.Done()
				if err := lp.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			go func() {
				defer wg.Done()
				follower.run(runCtx)
			}()
			go func() {
				defer wg.Done()
				bootstrap(runCtx, lp)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			lp.Server.Stop(ctx)
			cancel()
			lp.Active.Close()
			rec.Presence.Stop()
			rec.Activity.Stop()
			rec.Notes.Stop()
			rec.Engine.Stop()
			wg.Wait()

			lp.Stores.NoteEditor.Close()
			lp.Stores.Drafts.Close()
			keep := lp.Params.Config.Timing.OutboxKeep.Duration
			if n, err := lp.DB.PruneOutbox(time.Now().Add(-keep)); err != nil {
				logger.Warn("pruning outbox failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("outbox pruned", zap.Int64("removed", n))
			}
			if err := lp.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lp.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// bootstrap loads the initial state, then follows the presence of every
// friend and direct-conversation peer. Later changes to either list reach
// the watcher through presenceFollower.
func bootstrap(ctx context.Context, lp lifecycleParams) {
	s := lp.Stores
	err := intsync.Bootstrap(ctx, intsync.Initial{
		Conversations: s.Conversations,
		Friends:       s.Friends,
		Notes:         s.Notes,
		Settings:      s.Settings,
		Drafts:        s.Drafts,
	}, lp.Logger)
	if err != nil && ctx.Err() == nil {
		lp.Logger.Warn("initial load incomplete", zap.Error(err))
	}
	if ctx.Err() != nil {
		return
	}
	lp.Reconcilers.Presence.Watch(ctx, watchedUsers(s, lp.Self.UserID))
}
