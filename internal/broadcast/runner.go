package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/bounteer/restream/internal/session"
	"github.com/bounteer/restream/internal/transcript"
)

// Envelope is the wire form of one replayed transcript row. Exactly one of
// the enrichment session fields is set, matching the session's kind.
type Envelope struct {
	JobDescriptionEnrichmentSession   string            `json:"job_description_enrichment_session,omitempty"`
	CandidateProfileEnrichmentSession string            `json:"candidate_profile_enrichment_session,omitempty"`
	Body                              transcript.Record `json:"body"`
}

// Source supplies the ordered rows of a named transcript.
type Source interface {
	Load(filename string) ([]transcript.Record, error)
}

// Runner drives replays: one goroutine per session walks the transcript and
// emits paced messages into the session's delivery channel, then evicts the
// session from the store.
type Runner struct {
	store  *session.Store
	source Source
	pace   time.Duration
	log    zerolog.Logger
}

func NewRunner(store *session.Store, source Source, pace time.Duration, log zerolog.Logger) *Runner {
	if pace <= 0 {
		pace = 100 * time.Millisecond
	}
	return &Runner{
		store:  store,
		source: source,
		pace:   pace,
		log:    log,
	}
}

// Start spawns the replay goroutine for sess and returns immediately. The
// replay runs to completion regardless of consumer attachment; cancelling
// ctx fails the session and evicts it.
func (r *Runner) Start(ctx context.Context, sess *session.Session) {
	go r.run(ctx, sess)
}

func (r *Runner) run(ctx context.Context, sess *session.Session) {
	log := r.log.With().
		Str("session_id", sess.ID).
		Str("filename", sess.Filename).
		Logger()

	records, err := r.source.Load(sess.Filename)
	if err != nil {
		log.Error().Err(err).Msg("transcript load failed")
		r.finish(sess, session.Failed)
		return
	}

	sess.Transition(session.Streaming)
	log.Info().Int("records", len(records)).Msg("replay started")

	// One message per pacing interval, wall-clock, independent of how fast
	// the consumer drains.
	limiter := rate.NewLimiter(rate.Every(r.pace), 1)
	for i, rec := range records {
		if err := limiter.Wait(ctx); err != nil {
			log.Warn().Err(err).Int("seq", i).Msg("replay cancelled")
			r.finish(sess, session.Failed)
			return
		}
		payload, err := json.Marshal(envelopeFor(sess, rec))
		if err != nil {
			log.Error().Err(err).Int("seq", i).Msg("encode failed")
			r.finish(sess, session.Failed)
			return
		}
		sess.Send(session.Message{Seq: i, Payload: payload})
	}

	log.Info().Int("records", len(records)).Msg("replay complete")
	r.finish(sess, session.Completed)
}

// finish settles the session: terminal state, eviction from the store, then
// channel close so the endpoint sees end-of-stream.
func (r *Runner) finish(sess *session.Session, final session.State) {
	sess.Transition(final)
	r.store.Remove(sess.ID)
	sess.CloseDelivery()
}

func envelopeFor(sess *session.Session, rec transcript.Record) Envelope {
	env := Envelope{Body: rec}
	switch sess.Kind {
	case session.CandidateProfile:
		env.CandidateProfileEnrichmentSession = sess.Token
	default:
		env.JobDescriptionEnrichmentSession = sess.Token
	}
	return env
}
