package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	clientTokenKey = "client_token"
	displayNameKey = "display_name"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

type Deps struct {
	Registry  *app.Registry
	Directory core.Directory
	Signal    *signal.SignalWSController
	// Feed is nil when events are not mirrored.
	Feed core.EventFeed
}

type api struct {
	ctx  context.Context
	deps Deps
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("MeetSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &api{ctx: ctx, deps: deps}
	r.GET("/healthz", h.health)

	g := r.Group("/api")
	g.GET("/me", h.whoami)
	g.POST("/me", h.rename)
	g.POST("/conferences", h.schedule)
	g.GET("/conferences", h.list)
	g.GET("/conferences/:id", h.get)
	g.GET("/codes/:code", h.byCode)
	g.GET("/conferences/:id/ws", h.connect)
	g.GET("/conferences/:id/follow", h.follow)
	g.GET("/adhoc/ws", h.connectAdHoc)

	return r
}

type errorResponse struct {
	Error struct {
		Code    domain.Code `json:"code"`
		Message string      `json:"message"`
	} `json:"error"`
}

func writeError(c *gin.Context, err error) {
	var resp errorResponse
	resp.Error.Code = domain.CodeOf(err)
	resp.Error.Message = err.Error()
	var e *domain.Error
	if errors.As(err, &e) {
		resp.Error.Message = e.Message
	}
	c.AbortWithStatusJSON(resp.Error.Code.HTTPStatus(), resp)
}

func (h *api) identity(c *gin.Context) (domain.Identity, error) {
	name, _ := sessions.Default(c).Get(displayNameKey).(string)
	return h.deps.Directory.Resolve(c.Request.Context(), core.SessionID(c.GetString(clientTokenKey)), name)
}

func (h *api) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "conferences": len(h.deps.Registry.List())})
}

func (h *api) whoami(c *gin.Context) {
	who, err := h.identity(c)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, who)
}

type renameBody struct {
	Name string `json:"name" binding:"required"`
}

// rename stores the display name in the cookie session so it survives
// reconnects.
func (h *api) rename(c *gin.Context) {
	var body renameBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, domain.Errorf(domain.CodeInvalidArgument, "%v", err))
		return
	}
	name, err := domain.NormalizeDisplayName(body.Name)
	if err != nil {
		writeError(c, domain.Errorf(domain.CodeInvalidArgument, "%v", err))
		return
	}
	sess := sessions.Default(c)
	sess.Set(displayNameKey, name)
	if err := sess.Save(); err != nil {
		writeError(c, err)
		return
	}
	h.whoami(c)
}

type scheduleBody struct {
	Title           string          `json:"title" binding:"max=200"`
	Features        domain.Features `json:"features"`
	Start           time.Time       `json:"start"`
	End             time.Time       `json:"end"`
	Invitees        []domain.UserID `json:"invitees"`
	CalendarEventID string          `json:"calendar_event_id"`
	AdHoc           bool            `json:"ad_hoc"`
}

func (h *api) schedule(c *gin.Context) {
	var body scheduleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, domain.Errorf(domain.CodeInvalidArgument, "%v", err))
		return
	}
	who, err := h.identity(c)
	if err != nil {
		writeError(c, err)
		return
	}
	sess, err := h.deps.Registry.Schedule(c.Request.Context(), app.ScheduleRequest{
		Host:            who,
		Title:           body.Title,
		Features:        body.Features,
		Start:           body.Start,
		End:             body.End,
		Invitees:        body.Invitees,
		CalendarEventID: body.CalendarEventID,
		AdHoc:           body.AdHoc,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess.Snapshot())
}

func (h *api) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"conferences": h.deps.Registry.List()})
}

type conferenceResponse struct {
	*domain.Conference
	Degraded bool `json:"degraded"`
}

func (h *api) get(c *gin.Context) {
	sess, err := h.deps.Registry.Get(domain.ConferenceID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conferenceResponse{Conference: sess.Snapshot(), Degraded: sess.Degraded()})
}

func (h *api) byCode(c *gin.Context) {
	sess, err := h.deps.Registry.ByCode(c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conferenceResponse{Conference: sess.Snapshot(), Degraded: sess.Degraded()})
}

func (h *api) connect(c *gin.Context) {
	sess, err := h.deps.Registry.Get(domain.ConferenceID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	who, err := h.identity(c)
	if err != nil {
		writeError(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("sid", c.GetString(clientTokenKey)).Str("conference", string(sess.ID())).Msg("ws signal endpoint hit")
	h.deps.Signal.HandleSignal(h.ctx, c, sess, who)
}

// connectAdHoc creates a conference on first join; the caller hosts it.
func (h *api) connectAdHoc(c *gin.Context) {
	who, err := h.identity(c)
	if err != nil {
		writeError(c, err)
		return
	}
	features := domain.Features{
		WaitingRoom: c.Query("waiting_room") == "true",
		Chat:        c.DefaultQuery("chat", "true") == "true",
		Whiteboard:  c.DefaultQuery("whiteboard", "true") == "true",
		Recording:   c.Query("recording") == "true",
	}
	sess, err := h.deps.Registry.CreateAdHoc(c.Request.Context(), who, c.Query("title"), features)
	if err != nil {
		writeError(c, err)
		return
	}
	h.deps.Signal.HandleSignal(h.ctx, c, sess, who)
}

// follow lets the host or a recorder watch the mirrored event stream
// without joining.
func (h *api) follow(c *gin.Context) {
	if h.deps.Feed == nil {
		writeError(c, domain.Errorf(domain.CodeUnavailable, "event mirror is not configured"))
		return
	}
	sess, err := h.deps.Registry.Get(domain.ConferenceID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	who, err := h.identity(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if who.UserID != sess.Snapshot().HostUserID && !who.CanRecord {
		writeError(c, domain.Errorf(domain.CodePermissionDenied, "only the host or a recorder may follow"))
		return
	}
	h.deps.Signal.HandleFollow(h.ctx, c, h.deps.Feed, sess.ID())
}
