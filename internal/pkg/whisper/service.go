package whisper

import (
	"context"
	"fmt"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whispers/internal/pkg/limit"
	"github.com/airenas/whispers/internal/pkg/messages"
	"github.com/airenas/whispers/internal/pkg/persistence"
	"github.com/airenas/whispers/internal/pkg/utils"
	"github.com/google/uuid"
)

// DB provides whisper persistence
type DB interface {
	LoadWhisper(ctx context.Context, id string) (*persistence.Whisper, error)
	ListWhispers(ctx context.Context, userID string) ([]*persistence.Whisper, error)
	LoadTracks(ctx context.Context, whisperID string) ([]*persistence.AudioTrack, error)
	LoadTransformations(ctx context.Context, whisperID string) ([]*persistence.Transformation, error)
	UpdateTranscription(ctx context.Context, id, text string) error
	UpdateTitle(ctx context.Context, id, title string) error
	DeleteWhisper(ctx context.Context, id string) error
}

// Gate consumes transformation limits
type Gate interface {
	ConsumeTransformation(ctx context.Context, userID string) (*limit.Reservation, error)
	Restore(ctx context.Context, r *limit.Reservation) error
}

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, *messages.Opts) error
}

// Service implements whisper queries and owner-only mutations
type Service struct {
	db     DB
	gate   Gate
	sender MsgSender
	newID  func() string
}

// NewService creates whisper service
func NewService(db DB, gate Gate, sender MsgSender) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("no DB")
	}
	if gate == nil {
		return nil, fmt.Errorf("no gate")
	}
	if sender == nil {
		return nil, fmt.Errorf("no msg sender")
	}
	return &Service{db: db, gate: gate, sender: sender, newID: uuid.NewString}, nil
}

// List returns user's whispers, newest first
func (s *Service) List(ctx context.Context, userID string) ([]*persistence.Whisper, error) {
	if userID == "" {
		return nil, utils.ErrUnauthenticated
	}
	res, err := s.db.ListWhispers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("can't list whispers: %w", err)
	}
	if res == nil {
		res = []*persistence.Whisper{}
	}
	return res, nil
}

// Get returns whisper with tracks and transformations
func (s *Service) Get(ctx context.Context, userID, id string) (*persistence.WhisperFull, error) {
	w, err := s.loadOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	res := &persistence.WhisperFull{Whisper: *w}
	if res.AudioTracks, err = s.db.LoadTracks(ctx, id); err != nil {
		return nil, fmt.Errorf("can't load tracks: %w", err)
	}
	if res.Transformations, err = s.db.LoadTransformations(ctx, id); err != nil {
		return nil, fmt.Errorf("can't load transformations: %w", err)
	}
	return res, nil
}

// UpdateFullTranscription overwrites the whisper's text
func (s *Service) UpdateFullTranscription(ctx context.Context, userID, id, text string) error {
	if _, err := s.loadOwned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.db.UpdateTranscription(ctx, id, text); err != nil {
		return fmt.Errorf("can't update transcription: %w", err)
	}
	return nil
}

// UpdateTitle sets the whisper's title, returns the saved title
func (s *Service) UpdateTitle(ctx context.Context, userID, id, title string) (string, error) {
	if _, err := s.loadOwned(ctx, userID, id); err != nil {
		return "", err
	}
	title = utils.Truncate(title, utils.MaxTitleLen)
	if err := s.db.UpdateTitle(ctx, id, title); err != nil {
		return "", fmt.Errorf("can't update title: %w", err)
	}
	return title, nil
}

// Delete removes the whisper with its tracks and transformations
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.loadOwned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.db.DeleteWhisper(ctx, id); err != nil {
		return fmt.Errorf("can't delete whisper: %w", err)
	}
	goapp.Log.Info().Str("ID", id).Str("user", userID).Msg("whisper deleted")
	return nil
}

// CreateTransformation queues a transformation generation, returns its ID
func (s *Service) CreateTransformation(ctx context.Context, userID, id, tType string) (string, error) {
	if _, err := s.loadOwned(ctx, userID, id); err != nil {
		return "", err
	}
	r, err := s.gate.ConsumeTransformation(ctx, userID)
	if err != nil {
		return "", err
	}
	msg := &messages.TransformMessage{QueueMessage: amessages.QueueMessage{ID: s.newID()},
		WhisperID: id, UserID: userID, Type: tType, Day: limit.FormatDay(r.Day)}
	if err := s.sender.SendMessage(ctx, msg, messages.DefaultOpts(messages.TypeTransform)); err != nil {
		rCtx, cf := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cf()
		if errR := s.gate.Restore(rCtx, r); errR != nil {
			goapp.Log.Error().Err(errR).Str("user", userID).Msg("can't restore usage")
		}
		return "", fmt.Errorf("can't send msg: %w", err)
	}
	goapp.Log.Info().Str("ID", msg.ID).Str("whisper", id).Str("type", tType).Msg("transformation queued")
	return msg.ID, nil
}

func (s *Service) loadOwned(ctx context.Context, userID, id string) (*persistence.Whisper, error) {
	if userID == "" {
		return nil, utils.ErrUnauthenticated
	}
	if id == "" {
		return nil, fmt.Errorf("%w: no id", utils.ErrValidation)
	}
	w, err := s.db.LoadWhisper(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("can't load whisper: %w", err)
	}
	if w.UserID != userID {
		return nil, fmt.Errorf("%w: whisper %s is not yours", utils.ErrUnauthorized, id)
	}
	return w, nil
}
