package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/identify"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
)

// uploadField is the multipart field carrying the audio.
const uploadField = "file"

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) welcome(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "Welcome to the Bird Watching App"})
}

// analyzeBird identifies the species in an uploaded recording.
func (s *Server) analyzeBird(c echo.Context) error {
	fh, err := c.FormFile(uploadField)
	if err != nil {
		if isTooLarge(err) {
			return s.uploadTooLarge(c)
		}
		return c.JSON(http.StatusBadRequest, errorResponse{
			Error:   "No audio file provided",
			Details: "multipart field \"" + uploadField + "\" is required",
		})
	}
	if fh.Size > s.config.MaxUploadBytes() {
		return s.uploadTooLarge(c)
	}

	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	defer func() {
		if err := f.Close(); err != nil {
			GetLogger().Debug("failed to close upload", logger.Error(err))
		}
	}()

	data, err := io.ReadAll(io.LimitReader(f, s.config.MaxUploadBytes()+1))
	if err != nil {
		if isTooLarge(err) {
			return s.uploadTooLarge(c)
		}
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	if int64(len(data)) > s.config.MaxUploadBytes() {
		return s.uploadTooLarge(c)
	}

	res, trace := s.identifier.Identify(c.Request().Context(), data)
	GetLogger().WithContext(c.Request().Context()).Debug("identification finished",
		logger.String("file", fh.Filename),
		logger.Int("bytes", len(data)),
		logger.String("trace", trace.String()))

	switch r := res.(type) {
	case identify.Identified:
		return c.JSON(http.StatusOK, r)
	case identify.FallbackIdentified:
		return c.JSON(http.StatusOK, r)
	case identify.Failure:
		return c.JSON(failureStatus(r.Kind), r)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected identification result")
	}
}

// failureStatus maps a failed stage onto an HTTP status: bad input is the
// client's fault, model failures are ours.
func failureStatus(kind identify.FailureKind) int {
	if kind == identify.FailureDecode {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) uploadTooLarge(c echo.Context) error {
	return c.JSON(http.StatusRequestEntityTooLarge, errorResponse{
		Error:   "Uploaded file too large",
		Details: "limit is " + s.config.MaxUpload,
	})
}

func isTooLarge(err error) bool {
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
		return true
	}
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
