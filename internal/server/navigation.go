package server

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mordechaipotash/talmudic-study-app/internal/store"
	"github.com/mordechaipotash/talmudic-study-app/session"
)

const sessionCookie = "study_session"

// NavigationHandler exposes the per-session study path. The session is bound
// to a cookie; an anonymous visitor gets one on first use. Visits by
// authenticated users are additionally journaled to the store.
type NavigationHandler struct {
	Sessions   session.Store
	Store      *store.Store
	SessionTTL time.Duration
	Logger     *log.Logger
}

func (h *NavigationHandler) Register(g *echo.Group) {
	g.GET("/session", h.state)
	g.POST("/session/navigate", h.navigate)
	g.POST("/session/back", h.back)
	g.POST("/session/clear", h.clear)
	g.POST("/session/toggle", h.toggle)
	g.POST("/session/commentary", h.expandCommentary)
	g.GET("/session/journeys", h.journeys)
}

// session resolves the caller's session from the cookie, creating one when
// absent or expired and refreshing the cookie either way.
func (h *NavigationHandler) session(c echo.Context) (session.Session, error) {
	var id string
	if cookie, err := c.Cookie(sessionCookie); err == nil {
		id = cookie.Value
	}
	sess, err := h.Sessions.EnsureSession(id, h.SessionTTL)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	cookie := new(http.Cookie)
	cookie.Name = sessionCookie
	cookie.Value = sess.ID()
	cookie.Path = "/"
	cookie.HttpOnly = true
	cookie.SameSite = http.SameSiteLaxMode
	cookie.MaxAge = int(h.SessionTTL / time.Second)
	c.SetCookie(cookie)
	return sess, nil
}

func (h *NavigationHandler) state(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	state, err := sess.State()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, state)
}

func (h *NavigationHandler) navigate(c echo.Context) error {
	var req NavigateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Reference == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reference is required")
	}
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	if err := sess.Append(req.Reference); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if userID, ok := c.Get("user_id").(string); ok && userID != "" {
		if err := h.Store.RecordVisit(c.Request().Context(), userID, req.Reference, req.ParentRef); err != nil {
			h.Logger.Printf("recording visit for %q failed: %v", req.Reference, err)
		}
	}
	return h.stateJSON(c, sess)
}

func (h *NavigationHandler) back(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	if err := sess.TruncateToParent(); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return h.stateJSON(c, sess)
}

func (h *NavigationHandler) clear(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	if err := sess.Clear(); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return h.stateJSON(c, sess)
}

func (h *NavigationHandler) toggle(c echo.Context) error {
	var req NavigateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Reference == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reference is required")
	}
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	if err := sess.ToggleExpanded(req.Reference); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return h.stateJSON(c, sess)
}

func (h *NavigationHandler) expandCommentary(c echo.Context) error {
	var req ExpandCommentaryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SectionRef == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sectionRef is required")
	}
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	if err := sess.SetExpandedCommentary(req.SectionRef, req.CommentaryRef); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return h.stateJSON(c, sess)
}

func (h *NavigationHandler) journeys(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	visits, err := h.Store.RecentVisits(c.Request().Context(), userID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, visits)
}

func (h *NavigationHandler) stateJSON(c echo.Context, sess session.Session) error {
	state, err := sess.State()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, state)
}
