package whisperservice

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/airenas/whispers/internal/pkg/api"
	"github.com/airenas/whispers/internal/pkg/auth"
	"github.com/airenas/whispers/internal/pkg/persistence"
	"github.com/airenas/whispers/internal/pkg/test"
	"github.com/airenas/whispers/internal/pkg/test/mocks"
	"github.com/airenas/whispers/internal/pkg/transcription"
	"github.com/airenas/whispers/internal/pkg/utils"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTranscriber struct{ mock.Mock }

func (m *mockTranscriber) Transcribe(ctx context.Context, in *transcription.Input) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

type mockWhispers struct{ mock.Mock }

func (m *mockWhispers) List(ctx context.Context, userID string) ([]*persistence.Whisper, error) {
	args := m.Called(ctx, userID)
	res, _ := args.Get(0).([]*persistence.Whisper)
	return res, args.Error(1)
}

func (m *mockWhispers) Get(ctx context.Context, userID, id string) (*persistence.WhisperFull, error) {
	args := m.Called(ctx, userID, id)
	res, _ := args.Get(0).(*persistence.WhisperFull)
	return res, args.Error(1)
}

func (m *mockWhispers) UpdateFullTranscription(ctx context.Context, userID, id, text string) error {
	args := m.Called(ctx, userID, id, text)
	return args.Error(0)
}

func (m *mockWhispers) UpdateTitle(ctx context.Context, userID, id, title string) (string, error) {
	args := m.Called(ctx, userID, id, title)
	return args.String(0), args.Error(1)
}

func (m *mockWhispers) Delete(ctx context.Context, userID, id string) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *mockWhispers) CreateTransformation(ctx context.Context, userID, id, tType string) (string, error) {
	args := m.Called(ctx, userID, id, tType)
	return args.String(0), args.Error(1)
}

var (
	trMock      *mockTranscriber
	whMock      *mockWhispers
	gateMock    *mocks.Gate
	filerMock   *mocks.Filer
	tData       *Data
	tEcho       *echo.Echo
	tAuth       *auth.Authenticator
	tToken      string
	tCreated, _ = time.Parse(time.RFC3339, "2024-03-05T10:00:00Z")
)

func initTest(t *testing.T) {
	t.Helper()
	trMock = &mockTranscriber{}
	whMock = &mockWhispers{}
	gateMock = &mocks.Gate{}
	filerMock = &mocks.Filer{}
	var err error
	tAuth, err = auth.NewAuthenticator("secret")
	require.Nil(t, err)
	tToken, err = tAuth.NewToken("u1", time.Minute)
	require.Nil(t, err)
	tData = &Data{Transcriber: trMock, Whispers: whMock, Limiter: gateMock, Filer: filerMock,
		Auth: tAuth.Middleware()}
	tEcho = initRoutes(tData)
}

func newReq(method, url, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, url, nil)
	} else {
		req = httptest.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tToken)
	return req
}

func TestWrongPath(t *testing.T) {
	initTest(t)
	req := newReq(http.MethodGet, "/invalid", "")
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func TestWrongMethod(t *testing.T) {
	initTest(t)
	req := newReq(http.MethodPatch, "/whispers/1", "")
	test.Code(t, tEcho, req, http.StatusMethodNotAllowed)
}

func Test_Live(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	assert.Equal(t, `{"service":"OK"}`, resp.Body.String())
}

func TestAuth_Required(t *testing.T) {
	initTest(t)
	for _, r := range []struct{ method, url string }{
		{http.MethodPost, "/whispers/transcribe"}, {http.MethodGet, "/whispers"}, {http.MethodGet, "/whispers/1"},
		{http.MethodPut, "/whispers/1/transcription"}, {http.MethodPut, "/whispers/1/title"},
		{http.MethodDelete, "/whispers/1"}, {http.MethodPost, "/whispers/1/transformations"},
		{http.MethodGet, "/limits"}, {http.MethodPost, "/upload"}, {http.MethodPost, "/upload/presign"},
	} {
		t.Run(r.method+r.url, func(t *testing.T) {
			req := httptest.NewRequest(r.method, r.url, nil)
			test.Code(t, tEcho, req, http.StatusUnauthorized)
		})
	}
}

func TestTranscribe(t *testing.T) {
	initTest(t)
	trMock.On("Transcribe", mock.Anything, mock.Anything).Return("w1", nil)
	req := newReq(http.MethodPost, "/whispers/transcribe",
		`{"audioUrl":"http://s3/a.mp3","whisperId":"w0","language":"lt","durationSeconds":61}`)
	req.Header.Set(api.HeaderAssemblyAIToken, "ak")
	req.Header.Set(api.HeaderGeminiToken, "gk")

	resp := test.Code(t, tEcho, req, http.StatusOK)

	assert.Equal(t, api.IDResponse{ID: "w1"}, test.Decode[api.IDResponse](t, resp.Result()))
	in := trMock.Calls[0].Arguments.Get(1).(*transcription.Input)
	assert.Equal(t, &transcription.Input{UserID: "u1", AudioURL: "http://s3/a.mp3", WhisperID: "w0", Language: "lt",
		DurationSeconds: 61, TranscriptionKey: "ak", GenerationKey: "gk"}, in)
}

func TestTranscribe_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no url", body: `{"durationSeconds":61}`},
		{name: "wrong url", body: `{"audioUrl":"olia","durationSeconds":61}`},
		{name: "no duration", body: `{"audioUrl":"http://s3/a.mp3"}`},
		{name: "short", body: `{"audioUrl":"http://s3/a.mp3","durationSeconds":0.5}`},
		{name: "negative", body: `{"audioUrl":"http://s3/a.mp3","durationSeconds":-10}`},
		{name: "not json", body: `{"audioUrl":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			req := newReq(http.MethodPost, "/whispers/transcribe", tt.body)
			test.Code(t, tEcho, req, http.StatusBadRequest)
			trMock.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
		})
	}
}

func TestTranscribe_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "quota", err: fmt.Errorf("%w: you have exceeded your daily audio minutes limit", utils.ErrQuotaExceeded),
			wantCode: http.StatusTooManyRequests},
		{name: "provider", err: fmt.Errorf("%w: transcription failed: bad audio", utils.ErrProviderFailure),
			wantCode: http.StatusBadGateway},
		{name: "timeout", err: fmt.Errorf("%w: not finished", utils.ErrTimeout), wantCode: http.StatusGatewayTimeout},
		{name: "not found", err: fmt.Errorf("can't load: %w", utils.ErrNotFound), wantCode: http.StatusNotFound},
		{name: "not owner", err: utils.ErrUnauthorized, wantCode: http.StatusForbidden},
		{name: "validation", err: utils.ErrValidation, wantCode: http.StatusBadRequest},
		{name: "no user", err: utils.ErrUnauthenticated, wantCode: http.StatusUnauthorized},
		{name: "non restorable provider", err: utils.NewErrNonRestorableUsage(fmt.Errorf("%w: title",
			utils.ErrProviderFailure)), wantCode: http.StatusBadGateway},
		{name: "other", err: fmt.Errorf("olia"), wantCode: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			trMock.On("Transcribe", mock.Anything, mock.Anything).Return("", tt.err)
			req := newReq(http.MethodPost, "/whispers/transcribe", `{"audioUrl":"http://s3/a.mp3","durationSeconds":61}`)
			test.Code(t, tEcho, req, tt.wantCode)
		})
	}
}

func TestTranscribe_QuotaMessage(t *testing.T) {
	initTest(t)
	trMock.On("Transcribe", mock.Anything, mock.Anything).Return("",
		fmt.Errorf("%w: you have exceeded your daily audio minutes limit", utils.ErrQuotaExceeded))
	req := newReq(http.MethodPost, "/whispers/transcribe", `{"audioUrl":"http://s3/a.mp3","durationSeconds":61}`)
	resp := test.Code(t, tEcho, req, http.StatusTooManyRequests)
	assert.Contains(t, resp.Body.String(), "you have exceeded your daily audio minutes limit")
}

func TestTranscribe_RateLimit(t *testing.T) {
	initTest(t)
	tData.TranscribeRate = 0.001
	tEcho = initRoutes(tData)
	trMock.On("Transcribe", mock.Anything, mock.Anything).Return("w1", nil)
	body := `{"audioUrl":"http://s3/a.mp3","durationSeconds":61}`
	test.Code(t, tEcho, newReq(http.MethodPost, "/whispers/transcribe", body), http.StatusOK)
	test.Code(t, tEcho, newReq(http.MethodPost, "/whispers/transcribe", body), http.StatusTooManyRequests)
	trMock.AssertNumberOfCalls(t, "Transcribe", 1)
}

func TestList(t *testing.T) {
	initTest(t)
	long := strings.Repeat("a", 81)
	whMock.On("List", mock.Anything, "u1").Return([]*persistence.Whisper{
		{ID: "w2", Title: "t2", FullTranscription: long, Created: tCreated},
		{ID: "w1", Title: "t1", FullTranscription: "short", Created: tCreated}}, nil)

	resp := test.Code(t, tEcho, newReq(http.MethodGet, "/whispers", ""), http.StatusOK)

	res := test.Decode[[]api.WhisperListItem](t, resp.Result())
	require.Equal(t, 2, len(res))
	assert.Equal(t, api.WhisperListItem{ID: "w2", Title: "t2", Content: long, Preview: strings.Repeat("a", 80) + "...",
		Timestamp: tCreated}, res[0])
	assert.Equal(t, "short", res[1].Preview)
}

func TestList_Empty(t *testing.T) {
	initTest(t)
	whMock.On("List", mock.Anything, "u1").Return([]*persistence.Whisper{}, nil)
	resp := test.Code(t, tEcho, newReq(http.MethodGet, "/whispers", ""), http.StatusOK)
	assert.Equal(t, "[]\n", resp.Body.String())
}

func TestList_Fail(t *testing.T) {
	initTest(t)
	whMock.On("List", mock.Anything, "u1").Return(nil, fmt.Errorf("olia"))
	resp := test.Code(t, tEcho, newReq(http.MethodGet, "/whispers", ""), http.StatusInternalServerError)
	assert.Contains(t, resp.Body.String(), "Service error")
}

func TestGet(t *testing.T) {
	initTest(t)
	whMock.On("Get", mock.Anything, "u1", "w1").Return(&persistence.WhisperFull{
		Whisper:         persistence.Whisper{ID: "w1", UserID: "u1", Title: "t", FullTranscription: "a\nb", Created: tCreated},
		AudioTracks:     []*persistence.AudioTrack{{ID: "a1", FileURL: "f1", PartialTranscription: "a", Language: utils.ToSQLStr("lt"), Created: tCreated}},
		Transformations: []*persistence.Transformation{{ID: "t1", Type: "summary", Text: "s", Created: tCreated}},
	}, nil)

	resp := test.Code(t, tEcho, newReq(http.MethodGet, "/whispers/w1", ""), http.StatusOK)

	res := test.Decode[api.Whisper](t, resp.Result())
	assert.Equal(t, "w1", res.ID)
	assert.Equal(t, "a\nb", res.FullTranscription)
	require.Equal(t, 1, len(res.AudioTracks))
	assert.Equal(t, api.AudioTrack{ID: "a1", FileURL: "f1", PartialTranscription: "a", Language: "lt", CreatedAt: tCreated},
		*res.AudioTracks[0])
	require.Equal(t, 1, len(res.Transformations))
	assert.Equal(t, "summary", res.Transformations[0].Type)
}

func TestGet_Errors(t *testing.T) {
	initTest(t)
	whMock.On("Get", mock.Anything, "u1", "w1").Return(nil, utils.ErrUnauthorized)
	whMock.On("Get", mock.Anything, "u1", "w2").Return(nil, utils.ErrNotFound)
	test.Code(t, tEcho, newReq(http.MethodGet, "/whispers/w1", ""), http.StatusForbidden)
	test.Code(t, tEcho, newReq(http.MethodGet, "/whispers/w2", ""), http.StatusNotFound)
}

func TestUpdateTranscription(t *testing.T) {
	initTest(t)
	whMock.On("UpdateFullTranscription", mock.Anything, "u1", "w1", "new").Return(nil)
	resp := test.Code(t, tEcho, newReq(http.MethodPut, "/whispers/w1/transcription", `{"fullTranscription":"new"}`),
		http.StatusOK)
	assert.Equal(t, api.UpdateTranscriptionResponse{ID: "w1", FullTranscription: "new"},
		test.Decode[api.UpdateTranscriptionResponse](t, resp.Result()))
}

func TestUpdateTranscription_NotOwner(t *testing.T) {
	initTest(t)
	whMock.On("UpdateFullTranscription", mock.Anything, "u1", "w1", "new").Return(utils.ErrUnauthorized)
	test.Code(t, tEcho, newReq(http.MethodPut, "/whispers/w1/transcription", `{"fullTranscription":"new"}`),
		http.StatusForbidden)
}

func TestUpdateTitle(t *testing.T) {
	initTest(t)
	whMock.On("UpdateTitle", mock.Anything, "u1", "w1", "new").Return("new", nil)
	resp := test.Code(t, tEcho, newReq(http.MethodPut, "/whispers/w1/title", `{"title":"new"}`), http.StatusOK)
	assert.Equal(t, api.UpdateTitleResponse{ID: "w1", Title: "new"}, test.Decode[api.UpdateTitleResponse](t, resp.Result()))
}

func TestUpdateTitle_Empty(t *testing.T) {
	initTest(t)
	test.Code(t, tEcho, newReq(http.MethodPut, "/whispers/w1/title", `{"title":""}`), http.StatusBadRequest)
	whMock.AssertNotCalled(t, "UpdateTitle", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDelete(t *testing.T) {
	initTest(t)
	whMock.On("Delete", mock.Anything, "u1", "w1").Return(nil)
	resp := test.Code(t, tEcho, newReq(http.MethodDelete, "/whispers/w1", ""), http.StatusOK)
	assert.Equal(t, api.IDResponse{ID: "w1"}, test.Decode[api.IDResponse](t, resp.Result()))
}

func TestDelete_NotOwner(t *testing.T) {
	initTest(t)
	whMock.On("Delete", mock.Anything, "u1", "w1").Return(utils.ErrUnauthorized)
	test.Code(t, tEcho, newReq(http.MethodDelete, "/whispers/w1", ""), http.StatusForbidden)
}

func TestCreateTransformation(t *testing.T) {
	initTest(t)
	whMock.On("CreateTransformation", mock.Anything, "u1", "w1", "summary").Return("t1", nil)
	resp := test.Code(t, tEcho, newReq(http.MethodPost, "/whispers/w1/transformations", `{"type":"summary"}`),
		http.StatusAccepted)
	assert.Equal(t, api.TransformationResponse{ID: "t1", Status: "queued"},
		test.Decode[api.TransformationResponse](t, resp.Result()))
}

func TestCreateTransformation_Fails(t *testing.T) {
	initTest(t)
	test.Code(t, tEcho, newReq(http.MethodPost, "/whispers/w1/transformations", `{"type":"poem"}`),
		http.StatusBadRequest)
	whMock.On("CreateTransformation", mock.Anything, "u1", "w1", "summary").Return("", utils.ErrQuotaExceeded)
	test.Code(t, tEcho, newReq(http.MethodPost, "/whispers/w1/transformations", `{"type":"summary"}`),
		http.StatusTooManyRequests)
}

func TestLimits(t *testing.T) {
	initTest(t)
	m := 12
	gateMock.On("Left", mock.Anything, "u1", false).Return(&m, 3, nil)
	resp := test.Code(t, tEcho, newReq(http.MethodGet, "/limits", ""), http.StatusOK)
	assert.Equal(t, `{"minutesLeft":12,"transformationsLeft":3,"unlimited":false}`+"\n", resp.Body.String())
}

func TestLimits_OwnKey(t *testing.T) {
	initTest(t)
	gateMock.On("Left", mock.Anything, "u1", true).Return(nil, 3, nil)
	req := newReq(http.MethodGet, "/limits", "")
	req.Header.Set(api.HeaderAssemblyAIToken, "ak")
	resp := test.Code(t, tEcho, req, http.StatusOK)
	assert.Equal(t, `{"transformationsLeft":3,"unlimited":true}`+"\n", resp.Body.String())
}

func TestLimits_Fail(t *testing.T) {
	initTest(t)
	gateMock.On("Left", mock.Anything, "u1", false).Return(nil, 0, fmt.Errorf("olia"))
	test.Code(t, tEcho, newReq(http.MethodGet, "/limits", ""), http.StatusInternalServerError)
}

func newUploadReq(t *testing.T, param, file, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if param != "" {
		part, err := writer.CreateFormFile(param, file)
		require.Nil(t, err)
		_, _ = part.Write([]byte(content))
	}
	require.Nil(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tToken)
	return req
}

func TestUpload(t *testing.T) {
	initTest(t)
	filerMock.On("SaveFile", mock.Anything, mock.Anything, mock.Anything, int64(4), mock.Anything).
		Return("http://s3/whispers/u1/x.mp3", nil)

	resp := test.Code(t, tEcho, newUploadReq(t, "file", "a b.MP3", "olia"), http.StatusOK)

	res := test.Decode[api.UploadResponse](t, resp.Result())
	assert.Equal(t, "http://s3/whispers/u1/x.mp3", res.URL)
	assert.True(t, strings.HasPrefix(res.Path, "u1/"), res.Path)
	assert.True(t, strings.HasSuffix(res.Path, ".mp3"), res.Path)
	assert.Equal(t, res.Path, filerMock.Calls[0].Arguments.String(1))
}

func TestUpload_Fails(t *testing.T) {
	tests := []struct {
		name     string
		param    string
		file     string
		fail     bool
		wantCode int
	}{
		{name: "no file", param: "", file: "", wantCode: http.StatusBadRequest},
		{name: "wrong param", param: "file1", file: "a.mp3", wantCode: http.StatusBadRequest},
		{name: "wrong ext", param: "file", file: "a.txt", wantCode: http.StatusBadRequest},
		{name: "saver", param: "file", file: "a.wav", fail: true, wantCode: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			filerMock.On("SaveFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return("", fmt.Errorf("olia"))
			test.Code(t, tEcho, newUploadReq(t, tt.param, tt.file, "olia"), tt.wantCode)
			if !tt.fail {
				filerMock.AssertNotCalled(t, "SaveFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestUpload_NotMultipart(t *testing.T) {
	initTest(t)
	test.Code(t, tEcho, newReq(http.MethodPost, "/upload", `{}`), http.StatusBadRequest)
}

func TestPresign(t *testing.T) {
	initTest(t)
	filerMock.On("PresignUpload", mock.Anything, "u1/rec_1.m4a", presignExpire).Return("http://s3/put?sig", nil)
	filerMock.On("PublicURL", "u1/rec_1.m4a").Return("http://s3/whispers/u1/rec_1.m4a")

	resp := test.Code(t, tEcho, newReq(http.MethodPost, "/upload/presign",
		`{"filePath":"rec 1.M4A","contentType":"audio/mp4"}`), http.StatusOK)

	assert.Equal(t, api.PresignResponse{UploadURL: "http://s3/put?sig", URL: "http://s3/whispers/u1/rec_1.m4a",
		Path: "u1/rec_1.m4a"}, test.Decode[api.PresignResponse](t, resp.Result()))
}

func TestPresign_Fails(t *testing.T) {
	initTest(t)
	test.Code(t, tEcho, newReq(http.MethodPost, "/upload/presign", `{"filePath":"a.mp3"}`), http.StatusBadRequest)
	test.Code(t, tEcho, newReq(http.MethodPost, "/upload/presign", `{"filePath":"a.exe","contentType":"x"}`),
		http.StatusBadRequest)
	filerMock.On("PresignUpload", mock.Anything, mock.Anything, mock.Anything).Return("", fmt.Errorf("olia"))
	test.Code(t, tEcho, newReq(http.MethodPost, "/upload/presign", `{"filePath":"a.mp3","contentType":"x"}`),
		http.StatusInternalServerError)
}

func Test_validate(t *testing.T) {
	full := func() *Data {
		return &Data{Transcriber: &mockTranscriber{}, Whispers: &mockWhispers{}, Limiter: &mocks.Gate{},
			Filer: &mocks.Filer{}, Auth: func(next echo.HandlerFunc) echo.HandlerFunc { return next }}
	}
	tests := []struct {
		name    string
		data    func() *Data
		wantErr bool
	}{
		{name: "OK", data: full, wantErr: false},
		{name: "no transcriber", data: func() *Data { d := full(); d.Transcriber = nil; return d }, wantErr: true},
		{name: "no whispers", data: func() *Data { d := full(); d.Whispers = nil; return d }, wantErr: true},
		{name: "no limiter", data: func() *Data { d := full(); d.Limiter = nil; return d }, wantErr: true},
		{name: "no filer", data: func() *Data { d := full(); d.Filer = nil; return d }, wantErr: true},
		{name: "no auth", data: func() *Data { d := full(); d.Auth = nil; return d }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validate(tt.data()); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
