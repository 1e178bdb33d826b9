package mocks

import (
	"context"
	"io"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/whispers/internal/pkg/assemblyai/api"
	"github.com/airenas/whispers/internal/pkg/limit"
	"github.com/airenas/whispers/internal/pkg/messages"
	"github.com/airenas/whispers/internal/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// Filer is minio mock
type Filer struct{ mock.Mock }

func (m *Filer) SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64, contentType string) (string, error) {
	args := m.Called(ctx, name, r, fileSize, contentType)
	return args.String(0), args.Error(1)
}

func (m *Filer) PresignUpload(ctx context.Context, name string, expires time.Duration) (string, error) {
	args := m.Called(ctx, name, expires)
	return args.String(0), args.Error(1)
}

func (m *Filer) PublicURL(name string) string {
	args := m.Called(name)
	return args.String(0)
}

// DB is postgress DB mock
type DB struct{ mock.Mock }

func (m *DB) LoadWhisper(ctx context.Context, id string) (*persistence.Whisper, error) {
	args := m.Called(ctx, id)
	return to[*persistence.Whisper](args.Get(0)), args.Error(1)
}

func (m *DB) CreateWhisper(ctx context.Context, w *persistence.Whisper, track *persistence.AudioTrack) error {
	args := m.Called(ctx, w, track)
	return args.Error(0)
}

func (m *DB) AppendTrack(ctx context.Context, track *persistence.AudioTrack) (*persistence.Whisper, error) {
	args := m.Called(ctx, track)
	return to[*persistence.Whisper](args.Get(0)), args.Error(1)
}

func (m *DB) ListWhispers(ctx context.Context, userID string) ([]*persistence.Whisper, error) {
	args := m.Called(ctx, userID)
	return to[[]*persistence.Whisper](args.Get(0)), args.Error(1)
}

func (m *DB) LoadTracks(ctx context.Context, whisperID string) ([]*persistence.AudioTrack, error) {
	args := m.Called(ctx, whisperID)
	return to[[]*persistence.AudioTrack](args.Get(0)), args.Error(1)
}

func (m *DB) LoadTransformations(ctx context.Context, whisperID string) ([]*persistence.Transformation, error) {
	args := m.Called(ctx, whisperID)
	return to[[]*persistence.Transformation](args.Get(0)), args.Error(1)
}

func (m *DB) UpdateTranscription(ctx context.Context, id, text string) error {
	args := m.Called(ctx, id, text)
	return args.Error(0)
}

func (m *DB) UpdateTitle(ctx context.Context, id, title string) error {
	args := m.Called(ctx, id, title)
	return args.Error(0)
}

func (m *DB) DeleteWhisper(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *DB) InsertTransformation(ctx context.Context, t *persistence.Transformation) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

// Gate is usage limit gate mock
type Gate struct{ mock.Mock }

func (m *Gate) ConsumeMinutes(ctx context.Context, userID string, ownKey bool, minutes int) (*limit.Reservation, error) {
	args := m.Called(ctx, userID, ownKey, minutes)
	return to[*limit.Reservation](args.Get(0)), args.Error(1)
}

func (m *Gate) ConsumeTransformation(ctx context.Context, userID string) (*limit.Reservation, error) {
	args := m.Called(ctx, userID)
	return to[*limit.Reservation](args.Get(0)), args.Error(1)
}

func (m *Gate) Restore(ctx context.Context, r *limit.Reservation) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *Gate) Left(ctx context.Context, userID string, ownKey bool) (*int, int, error) {
	args := m.Called(ctx, userID, ownKey)
	return to[*int](args.Get(0)), args.Int(1), args.Error(2)
}

// Sender is postgres queue mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg amessages.Message, opts *messages.Opts) error {
	args := m.Called(ctx, msg, opts)
	return args.Error(0)
}

// Transcriber is transcription client mock
type Transcriber struct{ mock.Mock }

func (m *Transcriber) Submit(ctx context.Context, in *api.SubmitData) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *Transcriber) GetStatus(ctx context.Context, ID, key string) (*api.StatusData, error) {
	args := m.Called(ctx, ID, key)
	return to[*api.StatusData](args.Get(0)), args.Error(1)
}

// Generator is text generation client mock
type Generator struct{ mock.Mock }

func (m *Generator) Title(ctx context.Context, text, key string) (string, error) {
	args := m.Called(ctx, text, key)
	return args.String(0), args.Error(1)
}

func (m *Generator) Transform(ctx context.Context, tType, text string) (string, error) {
	args := m.Called(ctx, tType, text)
	return args.String(0), args.Error(1)
}

func to[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
