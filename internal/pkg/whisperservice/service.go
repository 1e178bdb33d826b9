package whisperservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whispers/internal/pkg/api"
	"github.com/airenas/whispers/internal/pkg/persistence"
	"github.com/airenas/whispers/internal/pkg/transcription"
	"github.com/airenas/whispers/internal/pkg/utils"
	"github.com/facebookgo/grace/gracehttp"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// Transcriber runs transcription workflow
type Transcriber interface {
	Transcribe(ctx context.Context, in *transcription.Input) (string, error)
}

// Whispers provides note queries and mutations
type Whispers interface {
	List(ctx context.Context, userID string) ([]*persistence.Whisper, error)
	Get(ctx context.Context, userID, id string) (*persistence.WhisperFull, error)
	UpdateFullTranscription(ctx context.Context, userID, id, text string) error
	UpdateTitle(ctx context.Context, userID, id, title string) (string, error)
	Delete(ctx context.Context, userID, id string) error
	CreateTransformation(ctx context.Context, userID, id, tType string) (string, error)
}

// Limiter reports what is left of the user's daily limits
type Limiter interface {
	Left(ctx context.Context, userID string, ownKey bool) (*int, int, error)
}

// Filer stores audio files
type Filer interface {
	SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64, contentType string) (string, error)
	PresignUpload(ctx context.Context, name string, expires time.Duration) (string, error)
	PublicURL(name string) string
}

// Data keeps data required for service work
type Data struct {
	Port        int
	Transcriber Transcriber
	Whispers    Whispers
	Limiter     Limiter
	Filer       Filer
	// Auth authenticates all routes except /live
	Auth echo.MiddlewareFunc
	// TranscribeRate limits transcribe calls per second for one user, 0 - no limit
	TranscribeRate float64
}

const presignExpire = 10 * time.Minute

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP whispers service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 180 * time.Second
	// transcription waits for the provider up to 10 minutes
	e.Server.WriteTimeout = 15 * time.Minute

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Transcriber == nil {
		return fmt.Errorf("no transcriber")
	}
	if data.Whispers == nil {
		return fmt.Errorf("no whispers service")
	}
	if data.Limiter == nil {
		return fmt.Errorf("no limiter")
	}
	if data.Filer == nil {
		return fmt.Errorf("no filer")
	}
	if data.Auth == nil {
		return fmt.Errorf("no auth")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("whispers", nil)
}

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Validator = &requestValidator{v: validator.New()}
	promMdlw.Use(e)

	e.GET("/live", live(data))

	a := data.Auth
	tMdlw := []echo.MiddlewareFunc{a}
	if data.TranscribeRate > 0 {
		tMdlw = append(tMdlw, newRateLimiter(data.TranscribeRate))
	}
	e.POST("/whispers/transcribe", transcribe(data), tMdlw...)
	e.GET("/whispers", list(data), a)
	e.GET("/whispers/:id", get(data), a)
	e.PUT("/whispers/:id/transcription", updateTranscription(data), a)
	e.PUT("/whispers/:id/title", updateTitle(data), a)
	e.DELETE("/whispers/:id", deleteWhisper(data), a)
	e.POST("/whispers/:id/transformations", createTransformation(data), a)
	e.GET("/limits", limits(data), a)
	e.POST("/upload", upload(data), a)
	e.POST("/upload/presign", presign(data), a)

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func newRateLimiter(perSecond float64) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate: rate.Limit(perSecond), Burst: 1, ExpiresIn: 3 * time.Minute}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if id := userID(c); id != "" {
				return id, nil
			}
			return c.RealIP(), nil
		},
	})
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

func transcribe(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("transcribe method")()
		var input api.TranscribeRequest
		if err := bindValid(c, &input); err != nil {
			return err
		}
		h := c.Request().Header
		id, err := data.Transcriber.Transcribe(c.Request().Context(), &transcription.Input{UserID: userID(c),
			AudioURL: input.AudioURL, WhisperID: input.WhisperID, Language: input.Language,
			DurationSeconds: input.DurationSeconds, TranscriptionKey: h.Get(api.HeaderAssemblyAIToken),
			GenerationKey: h.Get(api.HeaderGeminiToken)})
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, api.IDResponse{ID: id})
	}
}

func list(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("list method")()
		ws, err := data.Whispers.List(c.Request().Context(), userID(c))
		if err != nil {
			return httpError(err)
		}
		res := make([]*api.WhisperListItem, 0, len(ws))
		for _, w := range ws {
			res = append(res, &api.WhisperListItem{ID: w.ID, Title: w.Title, Content: w.FullTranscription,
				Preview: utils.Preview(w.FullTranscription), Timestamp: w.Created})
		}
		return c.JSON(http.StatusOK, res)
	}
}

func get(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("get method")()
		w, err := data.Whispers.Get(c.Request().Context(), userID(c), c.Param(api.PrmID))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, mapWhisper(w))
	}
}

func updateTranscription(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("update transcription method")()
		var input api.UpdateTranscriptionRequest
		if err := bindValid(c, &input); err != nil {
			return err
		}
		id := c.Param(api.PrmID)
		if err := data.Whispers.UpdateFullTranscription(c.Request().Context(), userID(c), id,
			input.FullTranscription); err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, api.UpdateTranscriptionResponse{ID: id, FullTranscription: input.FullTranscription})
	}
}

func updateTitle(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("update title method")()
		var input api.UpdateTitleRequest
		if err := bindValid(c, &input); err != nil {
			return err
		}
		id := c.Param(api.PrmID)
		title, err := data.Whispers.UpdateTitle(c.Request().Context(), userID(c), id, input.Title)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, api.UpdateTitleResponse{ID: id, Title: title})
	}
}

func deleteWhisper(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("delete method")()
		id := c.Param(api.PrmID)
		if err := data.Whispers.Delete(c.Request().Context(), userID(c), id); err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, api.IDResponse{ID: id})
	}
}

func createTransformation(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("transformation method")()
		var input api.TransformationRequest
		if err := bindValid(c, &input); err != nil {
			return err
		}
		id, err := data.Whispers.CreateTransformation(c.Request().Context(), userID(c), c.Param(api.PrmID), input.Type)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusAccepted, api.TransformationResponse{ID: id, Status: "queued"})
	}
}

func limits(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("limits method")()
		ownKey := c.Request().Header.Get(api.HeaderAssemblyAIToken) != ""
		minutes, transformations, err := data.Limiter.Left(c.Request().Context(), userID(c), ownKey)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, api.Limits{MinutesLeft: minutes, TransformationsLeft: transformations,
			Unlimited: ownKey})
	}
}

func bindValid(c echo.Context, input interface{}) error {
	if err := c.Bind(input); err != nil {
		goapp.Log.Error().Err(err).Send()
		return echo.NewHTTPError(http.StatusBadRequest, "Can't parse input")
	}
	if err := c.Validate(input); err != nil {
		goapp.Log.Info().Err(err).Msg("wrong input")
		return echo.NewHTTPError(http.StatusBadRequest, "Wrong input: "+err.Error())
	}
	return nil
}

func mapWhisper(w *persistence.WhisperFull) *api.Whisper {
	res := &api.Whisper{ID: w.ID, UserID: w.UserID, Title: w.Title, FullTranscription: w.FullTranscription,
		CreatedAt: w.Created, AudioTracks: make([]*api.AudioTrack, 0, len(w.AudioTracks)),
		Transformations: make([]*api.Transformation, 0, len(w.Transformations))}
	for _, t := range w.AudioTracks {
		res.AudioTracks = append(res.AudioTracks, &api.AudioTrack{ID: t.ID, FileURL: t.FileURL,
			PartialTranscription: t.PartialTranscription, Language: utils.FromSQLStr(t.Language), CreatedAt: t.Created})
	}
	for _, t := range w.Transformations {
		res.Transformations = append(res.Transformations, &api.Transformation{ID: t.ID, Type: t.Type, Text: t.Text,
			CreatedAt: t.Created})
	}
	return res
}

func httpError(err error) error {
	code, msg := http.StatusInternalServerError, "Service error"
	switch {
	case errors.Is(err, utils.ErrUnauthenticated):
		code, msg = http.StatusUnauthorized, "Authentication required"
	case errors.Is(err, utils.ErrUnauthorized):
		code, msg = http.StatusForbidden, "Unauthorized"
	case errors.Is(err, utils.ErrNotFound):
		code, msg = http.StatusNotFound, "Not found"
	case errors.Is(err, utils.ErrQuotaExceeded):
		code, msg = http.StatusTooManyRequests, publicMsg(err)
	case errors.Is(err, utils.ErrValidation):
		code, msg = http.StatusBadRequest, publicMsg(err)
	case errors.Is(err, utils.ErrTimeout):
		code, msg = http.StatusGatewayTimeout, publicMsg(err)
	case errors.Is(err, utils.ErrProviderFailure):
		code, msg = http.StatusBadGateway, publicMsg(err)
	}
	if code == http.StatusInternalServerError {
		goapp.Log.Error().Err(err).Send()
	} else {
		goapp.Log.Warn().Err(err).Int("code", code).Send()
	}
	return echo.NewHTTPError(code, msg)
}

func publicMsg(err error) string {
	var nrErr *utils.ErrNonRestorableUsage
	if errors.As(err, &nrErr) {
		err = nrErr.Unwrap()
	}
	return goapp.Sanitize(err.Error())
}
