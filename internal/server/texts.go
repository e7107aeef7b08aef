package server

import (
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mordechaipotash/talmudic-study-app/internal/commentary"
	"github.com/mordechaipotash/talmudic-study-app/internal/sefaria"
	"github.com/mordechaipotash/talmudic-study-app/models"
)

type TextsHandler struct {
	Sefaria  *sefaria.Client
	Loader   *commentary.Loader
	MaxDepth int
	Logger   *log.Logger
}

func (h *TextsHandler) Register(g *echo.Group) {
	g.GET("/texts", h.getText)
	g.POST("/texts/search", h.search)
	g.GET("/texts/:ref/sections/:index/commentary", h.sectionCommentary)
}

func (h *TextsHandler) getText(c echo.Context) error {
	ref := c.QueryParam("ref")
	if ref == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ref is required")
	}
	switch action := c.QueryParam("action"); action {
	case "", "text":
		withCommentary := c.QueryParam("commentary") == "1"
		text, err := h.Sefaria.GetText(c.Request().Context(), ref, withCommentary)
		if err != nil {
			return upstreamHTTPError(h.Logger, "text", ref, err)
		}
		return c.JSON(http.StatusOK, text)
	case "links":
		links, err := h.Sefaria.GetLinks(c.Request().Context(), ref)
		if err != nil {
			return upstreamHTTPError(h.Logger, "links", ref, err)
		}
		return c.JSON(http.StatusOK, commentary.ClassifyLinks(links))
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown action "+strconv.Quote(action))
	}
}

func (h *TextsHandler) search(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	raw, err := h.Sefaria.Search(c.Request().Context(), req.Query, req.Filters)
	if err != nil {
		return upstreamHTTPError(h.Logger, "search", req.Query, err)
	}
	return c.JSONBlob(http.StatusOK, raw)
}

// sectionCommentary lists the commentary links for one section of a text.
// With ?depth= it instead expands the commentary-on-commentary tree rooted at
// the section, capped at the configured maximum depth.
func (h *TextsHandler) sectionCommentary(c echo.Context) error {
	base := models.FormatRef(c.Param("ref"))
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "index must be an integer")
	}

	if raw := c.QueryParam("depth"); raw != "" {
		depth, err := strconv.Atoi(raw)
		if err != nil || depth < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "depth must be a positive integer")
		}
		if depth > h.MaxDepth {
			depth = h.MaxDepth
		}
		node, err := h.Loader.Expand(c.Request().Context(), models.SectionRef(base, index), depth)
		if err != nil {
			return upstreamHTTPError(h.Logger, "commentary", base, err)
		}
		return c.JSON(http.StatusOK, node)
	}

	links, err := h.Loader.SectionLinks(c.Request().Context(), base, index)
	if err != nil {
		if _, ok := err.(*models.UpstreamError); !ok {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return upstreamHTTPError(h.Logger, "commentary", base, err)
	}
	return c.JSON(http.StatusOK, links)
}

// upstreamHTTPError logs the real cause and returns a generic gateway error so
// vendor responses never leak to clients.
func upstreamHTTPError(logger *log.Logger, op, subject string, err error) error {
	logger.Printf("%s %q failed: %v", op, subject, err)
	if ue, ok := err.(*models.UpstreamError); ok && ue.StatusCode == http.StatusNotFound {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return echo.NewHTTPError(http.StatusBadGateway, "upstream request failed")
}
