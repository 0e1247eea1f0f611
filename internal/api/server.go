package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/bounteer/restream/internal/broadcast"
	"github.com/bounteer/restream/internal/config"
	"github.com/bounteer/restream/internal/session"
	"github.com/bounteer/restream/internal/transcript"
)

// CodeAmbiguousSessionKind is returned when a trigger request supplies zero
// or both enrichment session parameters.
const CodeAmbiguousSessionKind = "ambiguous_session_kind"

// BroadcastInfo is the trigger response: where to connect for the replay.
type BroadcastInfo struct {
	WebsocketURL string `json:"websocket_url"`
	SessionID    string `json:"session_id"`
	Port         int    `json:"port"`
}

// ErrorBody is the machine-readable 4xx response shape.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server exposes the synchronous trigger surface plus the transcript listing
// and health endpoints.
type Server struct {
	// replayCtx bounds spawned replays to the server lifetime rather than
	// the trigger request, which returns long before the replay ends.
	replayCtx context.Context
	cfg       *config.Config
	store     *session.Store
	source    *transcript.Source
	runner    *broadcast.Runner
	log       zerolog.Logger
	started   time.Time
}

func NewServer(replayCtx context.Context, cfg *config.Config, store *session.Store, source *transcript.Source, runner *broadcast.Runner, log zerolog.Logger) *Server {
	return &Server{
		replayCtx: replayCtx,
		cfg:       cfg,
		store:     store,
		source:    source,
		runner:    runner,
		log:       log,
		started:   time.Now(),
	}
}

func (s *Server) Register(e *echo.Echo) {
	g := e.Group("/api")
	// Two equivalent trigger surfaces, kept for driver compatibility.
	g.GET("/websocket-broadcast", s.handleBroadcast)
	g.GET("/webhook-broadcast", s.handleBroadcast)
	g.GET("/transcripts", s.handleTranscripts)
	g.GET("/health", s.handleHealth)
}

func (s *Server) handleBroadcast(c echo.Context) error {
	filename := c.QueryParam("filename")
	if filename == "" {
		filename = s.cfg.Transcript.DefaultFilename
	}

	jdToken := c.QueryParam("job_description_enrichment_session")
	cpToken := c.QueryParam("candidate_profile_enrichment_session")

	var kind session.Kind
	var token string
	switch {
	case jdToken != "" && cpToken != "":
		return c.JSON(http.StatusBadRequest, ErrorBody{
			Code:    CodeAmbiguousSessionKind,
			Message: "supply exactly one of job_description_enrichment_session and candidate_profile_enrichment_session, not both",
		})
	case jdToken != "":
		kind, token = session.JobDescription, jdToken
	case cpToken != "":
		kind, token = session.CandidateProfile, cpToken
	default:
		return c.JSON(http.StatusBadRequest, ErrorBody{
			Code:    CodeAmbiguousSessionKind,
			Message: "supply exactly one of job_description_enrichment_session and candidate_profile_enrichment_session",
		})
	}

	sess := session.New(uuid.NewString(), kind, token, filename, s.cfg.Broadcast.ChannelCapacity)
	if err := s.store.Insert(sess); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.runner.Start(s.replayCtx, sess)

	s.log.Info().
		Str("session_id", sess.ID).
		Str("kind", sess.Kind.String()).
		Str("filename", filename).
		Msg("broadcast triggered")

	return c.JSON(http.StatusOK, BroadcastInfo{
		WebsocketURL: fmt.Sprintf("ws://%s:%d/ws/%s", s.cfg.Server.PublicHost, s.cfg.Server.Port, sess.ID),
		SessionID:    sess.ID,
		Port:         s.cfg.Server.Port,
	})
}

func (s *Server) handleTranscripts(c echo.Context) error {
	files, err := s.source.List()
	if err != nil {
		s.log.Error().Err(err).Msg("transcript listing failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list transcripts")
	}
	if files == nil {
		files = []transcript.File{}
	}
	return c.JSON(http.StatusOK, files)
}

type healthInfo struct {
	Status         string  `json:"status"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	Goroutines     int     `json:"goroutines"`
	ActiveSessions int     `json:"active_sessions"`
	RSSBytes       uint64  `json:"rss_bytes,omitempty"`
	CPUPercent     float64 `json:"cpu_percent,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	info := healthInfo{
		Status:         "ok",
		UptimeSeconds:  time.Since(s.started).Seconds(),
		Goroutines:     runtime.NumGoroutine(),
		ActiveSessions: s.store.ActiveCount(),
	}

	// Process stats are best-effort; the endpoint stays healthy without them.
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			info.RSSBytes = mem.RSS
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			info.CPUPercent = cpu
		}
	}

	return c.JSON(http.StatusOK, info)
}
