package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whispers/internal/pkg/limit"
	"github.com/airenas/whispers/internal/pkg/messages"
	"github.com/airenas/whispers/internal/pkg/persistence"
	"github.com/airenas/whispers/internal/pkg/utils"
	"github.com/airenas/whispers/internal/pkg/utils/handler"
	"github.com/vgarvardt/gue/v5"
)

// DB provides persistnce functionality
type DB interface {
	LoadWhisper(ctx context.Context, id string) (*persistence.Whisper, error)
	InsertTransformation(ctx context.Context, t *persistence.Transformation) error
}

// Generator generates transformation text
type Generator interface {
	Transform(ctx context.Context, tType, text string) (string, error)
}

// Restorer gives back consumed usage
type Restorer interface {
	Restore(ctx context.Context, r *limit.Reservation) error
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	DB          DB
	Generator   Generator
	Restorer    Restorer
	Testing     bool
	// JobTimeout limits one transformation job
	JobTimeout time.Duration

	now func() time.Time
}

// errDrop marks jobs that can't succeed on retry
var errDrop = errors.New("drop job")

// StartWorkerService starts the event queue listener service to listen for events
// returns channel for tracking if all jobs are finished
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Int("workers", data.WorkerCount).Msg("Starting listen for messages")
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}

	wm := gue.WorkMap{
		messages.TypeTransform: handler.Create(data, handleTransform, transformOpts(data)),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Work),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("whispers-worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("Starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

func transformOpts(data *ServiceData) *handler.Opts[messages.TransformMessage] {
	return handler.DefaultOpts[messages.TransformMessage]().
		WithTimeout(data.JobTimeout).
		WithBackoff(handler.DefaultBackoffOrTest(data.Testing)).
		WithFailure(transformFailure).
		WithGiveUp(func(ctx context.Context, m *messages.TransformMessage, err error) error {
			return restore(ctx, m, data)
		})
}

func transformFailure(ctx context.Context, m *messages.TransformMessage, err error, j *gue.Job) (bool, time.Duration, error) {
	if errors.Is(err, errDrop) {
		return false, 0, nil
	}
	if j.ErrorCount >= 3 {
		return false, 0, nil
	}
	return true, 0, nil
}

func handleTransform(ctx context.Context, m *messages.TransformMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Str("whisper", m.WhisperID).Str("type", m.Type).Msg("handling transform")
	w, err := data.DB.LoadWhisper(ctx, m.WhisperID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return fmt.Errorf("%w: whisper %s: %w", errDrop, m.WhisperID, err)
		}
		return fmt.Errorf("can't load whisper: %w", err)
	}
	if w.UserID != m.UserID {
		return fmt.Errorf("%w: whisper %s is not owned by %s", errDrop, m.WhisperID, m.UserID)
	}
	text, err := data.Generator.Transform(ctx, m.Type, w.FullTranscription)
	if err != nil {
		return fmt.Errorf("can't generate %s: %w", m.Type, err)
	}
	err = data.DB.InsertTransformation(ctx, &persistence.Transformation{ID: m.ID, WhisperID: m.WhisperID,
		Type: m.Type, Text: text, Created: data.now()})
	if err != nil {
		return fmt.Errorf("can't save transformation: %w", err)
	}
	goapp.Log.Info().Str("ID", m.ID).Int("len", len(text)).Msg("transformation saved")
	return nil
}

func restore(ctx context.Context, m *messages.TransformMessage, data *ServiceData) error {
	if m.Day == "" || m.UserID == "" {
		goapp.Log.Info().Str("ID", m.ID).Msg("no usage to restore")
		return nil
	}
	day, err := limit.ParseDay(m.Day)
	if err != nil {
		goapp.Log.Error().Err(err).Str("ID", m.ID).Str("day", m.Day).Msg("wrong day, skip restore")
		return nil
	}
	return data.Restorer.Restore(ctx, &limit.Reservation{UserID: m.UserID, Resource: limit.ResourceTransformations,
		Day: day, Amount: 1})
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Generator == nil {
		return fmt.Errorf("no generator")
	}
	if data.Restorer == nil {
		return fmt.Errorf("no restorer")
	}
	if data.JobTimeout <= 0 {
		data.JobTimeout = 5 * time.Minute
	}
	if data.now == nil {
		data.now = time.Now
	}
	return nil
}
