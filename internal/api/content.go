package api

import (
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/birdwatch-app/birdwatch-go/internal/catalog"
	"github.com/birdwatch-app/birdwatch-go/internal/errors"
	"github.com/birdwatch-app/birdwatch-go/internal/logger"
	"github.com/birdwatch-app/birdwatch-go/internal/speciesinfo"
)

// registerCatalogRoutes mounts both content collections.
func (s *Server) registerCatalogRoutes() {
	sounds := s.echo.Group("/" + string(catalog.BirdSounds))
	sounds.GET("", s.listEntries(catalog.BirdSounds))
	sounds.GET("/", s.listEntries(catalog.BirdSounds))
	sounds.GET("/:id", s.getEntry(catalog.BirdSounds, "Bird sound not found"))
	sounds.GET("/audio/:name", s.serveSoundAudio)

	maps := s.echo.Group("/" + string(catalog.BirdMaps))
	maps.GET("", s.listEntries(catalog.BirdMaps))
	maps.GET("/", s.listEntries(catalog.BirdMaps))
	maps.GET("/:id", s.getEntry(catalog.BirdMaps, "Bird map not found"))
	maps.GET("/image/:name", s.serveMapImage)
}

// listEntries returns the newest entries first; ?limit=N caps the list.
func (s *Server) listEntries(c catalog.Collection) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		limit := 0
		if raw := ctx.QueryParam("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
			}
			limit = n
		}
		entries, err := s.catalog.List(c, limit)
		if err != nil {
			return err
		}
		if entries == nil {
			entries = []catalog.Entry{}
		}
		return ctx.JSON(http.StatusOK, entries)
	}
}

func (s *Server) getEntry(c catalog.Collection, notFoundMessage string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		entry, err := s.catalog.Get(c, ctx.Param("id"))
		if err != nil {
			if errors.IsNotFound(err) || errors.IsCategory(err, errors.CategoryValidation) {
				return echo.NewHTTPError(http.StatusNotFound, notFoundMessage)
			}
			return err
		}
		return ctx.JSON(http.StatusOK, entry)
	}
}

// serveSoundAudio streams an MP3 as a download; range requests are honored.
func (s *Server) serveSoundAudio(c echo.Context) error {
	name := c.Param("name")
	path, ok := s.assetPath(catalog.BirdSounds, name)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Bird sound audio not found")
	}
	c.Response().Header().Set(echo.HeaderContentType, "audio/mpeg")
	c.Response().Header().Set("Accept-Ranges", "bytes")
	return c.Attachment(path, name)
}

func (s *Server) serveMapImage(c echo.Context) error {
	path, ok := s.assetPath(catalog.BirdMaps, c.Param("name"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Image not found")
	}
	return c.File(path)
}

// assetPath resolves an asset and reports whether it exists as a regular file.
func (s *Server) assetPath(c catalog.Collection, name string) (string, bool) {
	path, err := s.catalog.AssetPath(c, name)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

// speciesInfo returns the summary of a species by scientific name.
func (s *Server) speciesInfo(c echo.Context) error {
	info, err := s.species.Lookup(c.Request().Context(), c.Param("name"))
	switch {
	case err == nil:
		s.recordSpeciesLookup("found")
		return c.JSON(http.StatusOK, info)
	case errors.IsCategory(err, errors.CategoryValidation):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid species name")
	case errors.Is(err, speciesinfo.ErrNotFound), errors.IsNotFound(err):
		s.recordSpeciesLookup("not_found")
		return echo.NewHTTPError(http.StatusNotFound, "Species not found")
	default:
		s.recordSpeciesLookup("error")
		GetLogger().WithContext(c.Request().Context()).Warn("species lookup failed",
			logger.String("species", c.Param("name")),
			logger.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "Species information unavailable")
	}
}

func (s *Server) recordSpeciesLookup(result string) {
	if s.metrics != nil {
		s.metrics.Content.RecordSpeciesLookup(result)
	}
}
