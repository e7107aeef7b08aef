package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mordechaipotash/talmudic-study-app/internal/translation"
	"github.com/mordechaipotash/talmudic-study-app/models"
)

type TranslateHandler struct {
	Service *translation.Service
	Logger  *log.Logger
}

func (h *TranslateHandler) Register(g *echo.Group) {
	g.POST("/translate", h.translate)
	g.POST("/translate/stream", h.translateStream)
}

func (h *TranslateHandler) translate(c echo.Context) error {
	var req TranslateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Reference == "" || req.HebrewText == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reference and hebrewText are required")
	}
	userID, _ := c.Get("user_id").(string)

	res, err := h.Service.Translate(c.Request().Context(), req.Reference, req.HebrewText, userID)
	if err != nil {
		h.Logger.Printf("translate %q failed: %v", req.Reference, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Translation failed")
	}
	return c.JSON(http.StatusOK, res)
}

// translateStream delivers the translation over SSE: data-framed JSON payloads
// followed by a terminal [DONE] sentinel. The sentinel is written even when the
// stream carries an error frame, so consumers always see a closed sequence.
func (h *TranslateHandler) translateStream(c echo.Context) error {
	var req TranslateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Reference == "" || req.HebrewText == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reference and hebrewText are required")
	}
	userID, _ := c.Get("user_id").(string)

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}

	err := h.Service.TranslateStream(c.Request().Context(), req.Reference, req.HebrewText, userID, func(frame models.StreamFrame) error {
		payload, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// write failed, the client is gone; nothing left to deliver
		h.Logger.Printf("stream for %q aborted: %v", req.Reference, err)
		return nil
	}

	fmt.Fprintf(resp, "data: %s\n\n", models.StreamDone)
	flusher.Flush()
	return nil
}
