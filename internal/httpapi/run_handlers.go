package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"horse.fit/themedup/internal/db"
	"horse.fit/themedup/internal/dedup"
	"horse.fit/themedup/internal/globaltime"
	"horse.fit/themedup/internal/theme"
	payloadschema "horse.fit/themedup/schema"
)

type createRunRequest struct {
	Themes  json.RawMessage `json:"themes"`
	Persist bool            `json:"persist"`
}

type createRunResponse struct {
	RunUUID     string              `json:"run_uuid,omitempty"`
	Persisted   bool                `json:"persisted"`
	Quarantined []theme.Quarantined `json:"quarantined"`
	Result      *dedup.Result       `json:"result"`
}

type compareRequest struct {
	A json.RawMessage `json:"a"`
	B json.RawMessage `json:"b"`
}

func (s *Server) handleHealth(c echo.Context) error {
	database := "disabled"
	if s.store != nil {
		database = "ok"
		if err := s.store.Ping(c.Request().Context()); err != nil {
			s.logger.Error().Err(err).Msg("health check database ping failed")
			return fail(c, http.StatusServiceUnavailable, "Database unavailable", map[string]any{
				"database": "unreachable",
			})
		}
	}
	return success(c, map[string]any{
		"service":  "themedup",
		"database": database,
		"time":     globaltime.UTC(),
	})
}

func (s *Server) handleCreateRun(c echo.Context) error {
	var req createRunRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	rawThemes := bytes.TrimSpace(req.Themes)
	if len(rawThemes) == 0 || bytes.Equal(rawThemes, []byte("null")) {
		return failValidation(c, map[string]string{"themes": "is required"})
	}
	if rawThemes[0] != '[' {
		return failValidation(c, map[string]string{"themes": "must be an array of theme records"})
	}
	if req.Persist && s.store == nil {
		return failNoStore(c)
	}

	themes, quarantined, err := theme.ParseRecords(rawThemes)
	if err != nil {
		return failValidation(c, map[string]string{"themes": err.Error()})
	}

	ctx := c.Request().Context()
	result, err := s.runner.Run(ctx, themes)
	if err != nil {
		if dedup.IsConfigurationError(err) {
			s.logger.Error().Err(err).Msg("dedup engine misconfigured")
		} else {
			s.logger.Error().Err(err).Int("themes", len(themes)).Msg("dedup run failed")
		}
		return internalError(c, "Failed to run deduplication")
	}
	result.RecordQuarantined(quarantined)

	resp := createRunResponse{
		Quarantined: quarantined,
		Result:      result,
	}
	if req.Persist {
		runUUID, err := s.store.SaveRun(ctx, result, db.RunSourceAPI)
		if err != nil {
			s.logger.Error().Err(err).Str("run_id", result.RunID).Msg("persist dedup run failed")
			return internalError(c, "Failed to persist run")
		}
		resp.RunUUID = runUUID
		resp.Persisted = true
	}

	return successWithStatus(c, http.StatusCreated, resp)
}

func (s *Server) handleListRuns(c echo.Context) error {
	if s.store == nil {
		return failNoStore(c)
	}

	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultRunListLimit, 1, maxRunListLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	items, err := s.store.ListRuns(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list dedup runs failed")
		return internalError(c, "Failed to load runs")
	}
	return success(c, map[string]any{
		"items": items,
		"limit": limit,
	})
}

func (s *Server) handleGetRun(c echo.Context) error {
	if s.store == nil {
		return failNoStore(c)
	}

	runUUID := strings.TrimSpace(c.Param("run_uuid"))
	if _, err := uuid.Parse(runUUID); err != nil {
		return failValidation(c, map[string]string{"run_uuid": "must be a UUID"})
	}
	withPairs, err := parseBool(c.QueryParam("pairs"))
	if err != nil {
		return failValidation(c, map[string]string{"pairs": err.Error()})
	}

	detail, err := s.store.GetRun(c.Request().Context(), runUUID, withPairs)
	if err != nil {
		if db.IsNoRows(err) {
			return failNotFound(c, "Run not found")
		}
		s.logger.Error().Err(err).Str("run_uuid", runUUID).Msg("get dedup run failed")
		return internalError(c, "Failed to load run")
	}
	return success(c, detail)
}

func (s *Server) handleCompare(c echo.Context) error {
	var req compareRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	fieldErrors := map[string]string{}
	a, err := themeFromRaw(req.A)
	if err != nil {
		fieldErrors["a"] = err.Error()
	}
	b, err := themeFromRaw(req.B)
	if err != nil {
		fieldErrors["b"] = err.Error()
	}
	if len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}

	record, err := s.runner.ComparePair(c.Request().Context(), a, b)
	switch {
	case err == nil:
		return success(c, record)
	case errors.Is(err, theme.ErrMalformedTheme):
		return failValidation(c, map[string]string{"pair": err.Error()})
	case errors.Is(err, dedup.ErrEmbeddingUnavailable):
		return fail(c, http.StatusBadGateway, "Embedding unavailable", map[string]any{"detail": err.Error()})
	default:
		s.logger.Error().Err(err).Str("theme_a", a.ID).Str("theme_b", b.ID).Msg("compare themes failed")
		return internalError(c, "Failed to compare themes")
	}
}

func themeFromRaw(raw json.RawMessage) (theme.Theme, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return theme.Theme{}, fmt.Errorf("is required")
	}
	record, err := payloadschema.ValidateThemeRecord(raw)
	if err != nil {
		return theme.Theme{}, err
	}
	return theme.FromRecord(record)
}

func decodeJSONBody(c echo.Context, dst any) error {
	body := c.Request().Body
	if body == nil {
		return fmt.Errorf("request body is required")
	}
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is required")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}
