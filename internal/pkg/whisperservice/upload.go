package whisperservice

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whispers/internal/pkg/api"
	"github.com/airenas/whispers/internal/pkg/auth"
	"github.com/airenas/whispers/internal/pkg/utils"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

func upload(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("upload method")()
		ctx := c.Request().Context()
		user := userID(c)

		c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, utils.MaxUploadSize+1024*1024)
		form, err := c.MultipartForm()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no multipart form data")
		}
		defer cleanFiles(form)

		file, handler, err := takeFile(form, api.PrmFile)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no file")
		}
		defer file.Close()
		ext, err := validateFile(handler)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		name := path.Join(user, uuid.NewString()+ext)
		url, err := data.Filer.SaveFile(ctx, name, file, handler.Size, handler.Header.Get(echo.HeaderContentType))
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		goapp.Log.Info().Str("user", user).Str("file", name).Int64("size", handler.Size).Msg("uploaded")
		return c.JSON(http.StatusOK, api.UploadResponse{URL: url, Path: name})
	}
}

func presign(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("presign method")()
		var input api.PresignRequest
		if err := bindValid(c, &input); err != nil {
			return err
		}
		if !utils.SupportAudioExt(strings.ToLower(filepath.Ext(input.FilePath))) {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong file extension: "+filepath.Ext(input.FilePath))
		}
		name, err := utils.MakeValidateFileName(userID(c), input.FilePath)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong file name")
		}
		url, err := data.Filer.PresignUpload(c.Request().Context(), name, presignExpire)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		return c.JSON(http.StatusOK, api.PresignResponse{UploadURL: url, URL: data.Filer.PublicURL(name), Path: name})
	}
}

func userID(c echo.Context) string {
	return auth.UserID(c)
}

func cleanFiles(f *multipart.Form) {
	if f != nil {
		_ = f.RemoveAll()
	}
}

func takeFirst[K interface{}](a []K, d K) K {
	if len(a) > 0 {
		return a[0]
	}
	return d
}

func takeFile(form *multipart.Form, paramName string) (multipart.File, *multipart.FileHeader, error) {
	handler := takeFirst(form.File[paramName], nil)
	if handler == nil {
		return nil, nil, http.ErrMissingFile
	}
	file, err := handler.Open()
	return file, handler, err
}

func validateFile(h *multipart.FileHeader) (string, error) {
	if h.Filename == "" {
		return "", errors.New("no file name in multipart")
	}
	ext := strings.ToLower(filepath.Ext(h.Filename))
	if !utils.SupportAudioExt(ext) {
		return "", fmt.Errorf("wrong file extension: %s", ext)
	}
	if h.Size > utils.MaxUploadSize {
		return "", errors.Errorf("file too big, max %d MB", utils.MaxUploadSize/(1024*1024))
	}
	return ext, nil
}
