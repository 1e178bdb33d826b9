package transcription

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whispers/internal/pkg/api"
	tapi "github.com/airenas/whispers/internal/pkg/assemblyai/api"
	"github.com/airenas/whispers/internal/pkg/limit"
	"github.com/airenas/whispers/internal/pkg/persistence"
	"github.com/airenas/whispers/internal/pkg/status"
	"github.com/airenas/whispers/internal/pkg/utils"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Gate consumes usage limits
type Gate interface {
	ConsumeMinutes(ctx context.Context, userID string, ownKey bool, minutes int) (*limit.Reservation, error)
	Restore(ctx context.Context, r *limit.Reservation) error
}

// Transcriber submits and tracks transcription jobs
type Transcriber interface {
	Submit(ctx context.Context, in *tapi.SubmitData) (string, error)
	GetStatus(ctx context.Context, ID, key string) (*tapi.StatusData, error)
}

// Titler generates a title for the text
type Titler interface {
	Title(ctx context.Context, text, key string) (string, error)
}

// DB persists whispers
type DB interface {
	LoadWhisper(ctx context.Context, id string) (*persistence.Whisper, error)
	CreateWhisper(ctx context.Context, w *persistence.Whisper, track *persistence.AudioTrack) error
	AppendTrack(ctx context.Context, track *persistence.AudioTrack) (*persistence.Whisper, error)
}

// Data keeps workflow dependencies
type Data struct {
	Gate        Gate
	Transcriber Transcriber
	Titler      Titler
	DB          DB
	// PollInterval is the pause between job status checks
	PollInterval time.Duration
	// PollAttempts is the max number of job status checks
	PollAttempts int
}

// Input for one transcription
type Input struct {
	UserID          string
	AudioURL        string
	WhisperID       string
	Language        string
	DurationSeconds float64
	// TranscriptionKey is caller's own transcription key, skips limits
	TranscriptionKey string
	// GenerationKey is caller's own key for title generation
	GenerationKey string
}

// Workflow transcribes audio into a new or existing whisper
type Workflow struct {
	data  *Data
	newID func() string
	now   func() time.Time
}

const (
	defaultPollInterval = 3 * time.Second
	defaultPollAttempts = 200
	restoreTimeout      = 10 * time.Second
)

var errPending = errors.New("pending")

var (
	resultMetric   *prometheus.CounterVec
	durationMetric prometheus.Histogram
)

func init() {
	resultMetric = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whispers_transcriptions_total",
		Help: "Transcription workflow results",
	}, []string{"result"})
	durationMetric = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "whispers_transcription_duration_seconds",
		Help:    "Transcription workflow duration",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})
	prometheus.MustRegister(resultMetric, durationMetric)
}

// NewWorkflow creates transcription workflow
func NewWorkflow(data *Data) (*Workflow, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	if data.PollInterval <= 0 {
		data.PollInterval = defaultPollInterval
	}
	if data.PollAttempts <= 0 {
		data.PollAttempts = defaultPollAttempts
	}
	goapp.Log.Info().Dur("interval", data.PollInterval).Int("attempts", data.PollAttempts).Msg("poll")
	return &Workflow{data: data, newID: uuid.NewString, now: time.Now}, nil
}

func validate(data *Data) error {
	if data == nil {
		return fmt.Errorf("no data")
	}
	if data.Gate == nil {
		return fmt.Errorf("no gate")
	}
	if data.Transcriber == nil {
		return fmt.Errorf("no transcriber")
	}
	if data.Titler == nil {
		return fmt.Errorf("no titler")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	return nil
}

// Transcribe runs the whole flow, returns ID of the whisper containing the new audio track
func (w *Workflow) Transcribe(ctx context.Context, in *Input) (string, error) {
	start := time.Now()
	res, err := w.transcribe(ctx, in)
	resultMetric.WithLabelValues(resultLabel(err)).Inc()
	if err == nil {
		durationMetric.Observe(time.Since(start).Seconds())
	}
	return res, err
}

func (w *Workflow) transcribe(ctx context.Context, in *Input) (string, error) {
	if err := validateInput(in); err != nil {
		return "", err
	}
	if in.WhisperID != "" {
		if err := w.checkOwner(ctx, in.WhisperID, in.UserID); err != nil {
			return "", err
		}
	}
	minutes := limit.Minutes(in.DurationSeconds)
	goapp.Log.Info().Str("user", in.UserID).Int("minutes", minutes).Str("whisper", in.WhisperID).Msg("transcribe")
	reservation, err := w.data.Gate.ConsumeMinutes(ctx, in.UserID, in.TranscriptionKey != "", minutes)
	if err != nil {
		return "", err
	}
	res, err := w.run(ctx, in)
	if err != nil {
		w.restore(ctx, reservation, err)
		return "", err
	}
	return res, nil
}

func (w *Workflow) run(ctx context.Context, in *Input) (string, error) {
	lang := in.Language
	if lang == "" {
		lang = api.DefaultLanguage
	}
	jobID, err := w.data.Transcriber.Submit(ctx, &tapi.SubmitData{AudioURL: in.AudioURL, Language: lang,
		Key: in.TranscriptionKey})
	if err != nil {
		return "", fmt.Errorf("%w: can't submit transcription: %w", utils.ErrProviderFailure, err)
	}
	goapp.Log.Info().Str("job", jobID).Msg("submitted")
	text, err := w.wait(ctx, jobID, in.TranscriptionKey)
	if err != nil {
		return "", err
	}
	goapp.Log.Info().Str("job", jobID).Int("len", len(text)).Msg("transcribed")
	track := &persistence.AudioTrack{ID: w.newID(), WhisperID: in.WhisperID, FileURL: in.AudioURL,
		PartialTranscription: text, Language: utils.ToSQLStr(in.Language), Created: w.now()}
	if in.WhisperID != "" {
		if _, err := w.data.DB.AppendTrack(ctx, track); err != nil {
			return "", utils.NewErrNonRestorableUsage(fmt.Errorf("can't append audio track: %w", err))
		}
		return in.WhisperID, nil
	}
	title, err := w.data.Titler.Title(ctx, text, in.GenerationKey)
	if err != nil {
		return "", utils.NewErrNonRestorableUsage(fmt.Errorf("%w: can't generate title: %w", utils.ErrProviderFailure, err))
	}
	wh := &persistence.Whisper{ID: w.newID(), UserID: in.UserID, Title: utils.CleanTitle(title),
		FullTranscription: text, Created: track.Created}
	track.WhisperID = wh.ID
	if err := w.data.DB.CreateWhisper(ctx, wh, track); err != nil {
		return "", utils.NewErrNonRestorableUsage(fmt.Errorf("can't create whisper: %w", err))
	}
	return wh.ID, nil
}

// wait polls job status until it is final, the attempts are over or ctx is canceled
func (w *Workflow) wait(ctx context.Context, jobID, key string) (string, error) {
	var res string
	attempt := 0
	op := func() error {
		attempt++
		st, err := w.data.Transcriber.GetStatus(ctx, jobID, key)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: can't get status: %w", utils.ErrProviderFailure, err))
		}
		switch status.From(st.Status) {
		case status.Completed:
			res = st.Text
			return nil
		case status.Error:
			goapp.Log.Warn().Str("job", jobID).Str("error", goapp.Sanitize(st.Error)).Msg("transcription failed")
			return backoff.Permanent(fmt.Errorf("%w: transcription failed: %s", utils.ErrProviderFailure, st.Error))
		}
		goapp.Log.Debug().Str("job", jobID).Str("status", st.Status).Int("attempt", attempt).Msg("pending")
		return errPending
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(w.data.PollInterval),
		uint64(w.data.PollAttempts-1)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if errors.Is(err, errPending) {
			return "", fmt.Errorf("%w: transcription not finished after %d checks", utils.ErrTimeout, attempt)
		}
		return "", err
	}
	return res, nil
}

func (w *Workflow) checkOwner(ctx context.Context, whisperID, userID string) error {
	wh, err := w.data.DB.LoadWhisper(ctx, whisperID)
	if err != nil {
		return fmt.Errorf("can't load whisper: %w", err)
	}
	if wh.UserID != userID {
		return fmt.Errorf("%w: whisper %s is not yours", utils.ErrUnauthorized, whisperID)
	}
	return nil
}

func (w *Workflow) restore(ctx context.Context, r *limit.Reservation, cause error) {
	if r == nil {
		return
	}
	if !utils.IsRestorableUsage(cause) {
		goapp.Log.Info().Str("user", r.UserID).Msg("usage not restored")
		return
	}
	// the request context may be already canceled
	rCtx, cf := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cf()
	if err := w.data.Gate.Restore(rCtx, r); err != nil {
		goapp.Log.Error().Err(err).Str("user", r.UserID).Msg("can't restore usage")
	}
}

func validateInput(in *Input) error {
	if in.UserID == "" {
		return utils.ErrUnauthenticated
	}
	if in.AudioURL == "" {
		return fmt.Errorf("%w: no audio url", utils.ErrValidation)
	}
	d := in.DurationSeconds
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 1 {
		return fmt.Errorf("%w: wrong duration %v", utils.ErrValidation, d)
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, utils.ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, utils.ErrTimeout):
		return "timeout"
	case errors.Is(err, utils.ErrProviderFailure):
		return "provider"
	}
	return "failed"
}
