package state

import (
	"fmt"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/rest"
	"go.uber.org/zap"
)

// SettingsRepo is durable key/value storage for JSON values.
type SettingsRepo interface {
	GetSetting(key string, v any) (bool, error)
	PutSetting(key string, v any) error
}

const soundKey = "notification_sound"

// Sound is the notification sound preference.
type Sound struct {
	Enabled bool    `json:"enabled"`
	Volume  float64 `json:"volume"`
}

// DefaultSound is used until a preference is stored.
var DefaultSound = Sound{Enabled: true, Volume: 0.5}

// SettingsStore holds global client preferences.
type SettingsStore struct {
	*flags
	repo SettingsRepo

	mu    sync.RWMutex
	sound Sound
}

// NewSettingsStore creates a store with default values.
func NewSettingsStore(repo SettingsRepo, b *bus.Bus, logger *zap.Logger) *SettingsStore {
	return &SettingsStore{
		flags: newFlags(bus.SettingsChanged, b, logger),
		repo:  repo,
		sound: DefaultSound,
	}
}

// Load reads stored preferences.
func (s *SettingsStore) Load() error {
	var snd Sound
	found, err := s.repo.GetSetting(soundKey, &snd)
	if err != nil {
		s.fail("load settings", err)
		return err
	}
	if found {
		s.mu.Lock()
		s.sound = snd
		s.mu.Unlock()
		s.notify(soundKey)
	}
	return nil
}

// Sound returns the notification sound preference.
func (s *SettingsStore) Sound() Sound {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sound
}

// SetSoundEnabled turns notification sounds on or off.
func (s *SettingsStore) SetSoundEnabled(enabled bool) error {
	snd := s.Sound()
	snd.Enabled = enabled
	return s.setSound(snd)
}

// SetVolume sets the notification volume in [0, 1].
func (s *SettingsStore) SetVolume(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: volume %v outside [0, 1]", rest.ErrValidation, v)
	}
	snd := s.Sound()
	snd.Volume = v
	return s.setSound(snd)
}

func (s *SettingsStore) setSound(snd Sound) error {
	if err := s.repo.PutSetting(soundKey, snd); err != nil {
		s.fail("save settings", err)
		return err
	}
	s.mu.Lock()
	s.sound = snd
	s.mu.Unlock()
	s.notify(soundKey)
	return nil
}
