package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/remote"
	"github.com/vovakirdan/wirechat-client/internal/session"
	"github.com/vovakirdan/wirechat-client/internal/store"
	"github.com/vovakirdan/wirechat-client/internal/store/sqlite"
	"github.com/vovakirdan/wirechat-client/internal/syncengine"
)

// App wires the durable store, the remote client and the user session
// together.
type App struct {
	cfg    config.Config
	store  store.Store
	remote remote.Service
	users  *session.Manager
	log    *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database opened")

	rc := remote.NewClient(cfg.ServerURL, cfg.SubscribeURL, cfg.AuthToken, cfg.RequestTimeout, logger)

	return &App{
		cfg:    cfg,
		store:  st,
		remote: rc,
		users:  session.NewManager(chat.User{}),
		log:    logger,
	}, nil
}

// Close releases the store.
func (a *App) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
	} else {
		a.log.Info().Msg("store closed")
	}
}

// SelectUser resolves the current user against the server's user list.
// An empty userID picks the first available user. When the server is
// unreachable the given id is used as-is so the client stays usable offline.
func (a *App) SelectUser(ctx context.Context, userID string) (chat.User, error) {
	users, err := a.remote.AvailableUsers(ctx)
	if err != nil {
		if userID == "" {
			return chat.User{}, fmt.Errorf("resolve user: %w", err)
		}
		a.log.Warn().Err(err).Str("user_id", userID).Msg("user list unavailable, continuing with bare id")
		u := chat.User{ID: userID, Name: userID}
		a.users.SetCurrent(u)
		return u, nil
	}
	if len(users) == 0 {
		return chat.User{}, fmt.Errorf("server returned no users")
	}

	if userID == "" {
		a.users.SetCurrent(users[0])
		return users[0], nil
	}
	for _, u := range users {
		if u.ID == userID || u.Name == userID {
			a.users.SetCurrent(u)
			return u, nil
		}
	}
	return chat.User{}, fmt.Errorf("unknown user %q", userID)
}

// CurrentUser returns the active user.
func (a *App) CurrentUser() chat.User {
	return a.users.Current()
}

// OpenSession attaches a sync session for one conversation as the current
// user. ctx bounds the session's lifetime; the caller detaches it.
func (a *App) OpenSession(ctx context.Context, chatID string) (*syncengine.Session, error) {
	s := syncengine.NewSession(syncengine.Config{
		ChatID:                chatID,
		User:                  a.users.Current(),
		Store:                 a.store,
		Remote:                a.remote,
		Logger:                a.log,
		ReconcileInterval:     a.cfg.ReconcileInterval,
		ResubscribeBackoffMax: a.cfg.ResubscribeBackoffMax,
	})
	if err := s.Attach(ctx); err != nil {
		return nil, fmt.Errorf("attach session: %w", err)
	}
	return s, nil
}

// Chats returns the conversation list, refreshing the local projection from
// the server when reachable and falling back to the cache when not.
func (a *App) Chats(ctx context.Context) ([]chat.Chat, error) {
	if err := a.store.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}

	chats, err := a.remote.Chats(ctx, a.users.Current().ID)
	if err != nil {
		a.log.Warn().Err(err).Msg("chat list refresh failed, serving cached projection")
		return a.store.ListChats(ctx)
	}

	if err := a.store.SaveChats(ctx, chats); err != nil {
		return nil, fmt.Errorf("cache chats: %w", err)
	}
	return chats, nil
}

// ResetChat wipes the local rows of one conversation. Debug path only.
func (a *App) ResetChat(ctx context.Context, chatID string) error {
	if err := a.store.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	if err := a.store.Truncate(ctx, chatID); err != nil {
		return fmt.Errorf("truncate chat: %w", err)
	}
	a.log.Info().Str("chat_id", chatID).Msg("local conversation truncated")
	return nil
}
