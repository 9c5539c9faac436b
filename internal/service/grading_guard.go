package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/observability"
)

// ErrGradingInProgress indicates another attempt for the submission has not finished.
var ErrGradingInProgress = errors.New("grading already in progress for submission")

const defaultLockTTL = 5 * time.Minute

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// GradingGuard admits at most one running attempt per submission.
type GradingGuard interface {
	Acquire(ctx context.Context, submissionID uint) (*GradingLease, error)
	State(submissionID uint) (GradingState, bool)
}

// GradingLease is held for the duration of one attempt.
type GradingLease struct {
	guard        *gradingGuard
	submissionID uint
	token        string
	once         sync.Once
}

type gradingGuard struct {
	mu       sync.Mutex
	inFlight map[uint]GradingState
	redis    *redis.Client
	prefix   string
	ttl      time.Duration
	logger   zerolog.Logger
}

// NewGradingGuard builds a guard. With a nil redis client only attempts inside
// this process are serialized; otherwise a redis lock also serializes replicas.
func NewGradingGuard(redisClient *redis.Client, channelBase string, ttl time.Duration, logger zerolog.Logger) GradingGuard {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	prefix := strings.TrimSpace(channelBase)
	if prefix == "" {
		prefix = "gema"
	}

	return &gradingGuard{
		inFlight: make(map[uint]GradingState),
		redis:    redisClient,
		prefix:   prefix + ":grading:lock:",
		ttl:      ttl,
		logger:   logger.With().Str("component", "grading_guard").Logger(),
	}
}

func (g *gradingGuard) Acquire(ctx context.Context, submissionID uint) (*GradingLease, error) {
	g.mu.Lock()
	if _, busy := g.inFlight[submissionID]; busy {
		g.mu.Unlock()
		observability.GradingRejected().WithLabelValues("in_progress").Inc()
		return nil, ErrGradingInProgress
	}
	g.inFlight[submissionID] = GradingStatePending
	g.mu.Unlock()

	lease := &GradingLease{guard: g, submissionID: submissionID}
	if g.redis == nil {
		observability.GradingInFlight().Inc()
		return lease, nil
	}

	token := uuid.NewString()
	acquired, err := g.redis.SetNX(ctx, g.key(submissionID), token, g.ttl).Result()
	if err != nil || !acquired {
		g.forget(submissionID)
		if err != nil {
			return nil, fmt.Errorf("acquire grading lock: %w", err)
		}
		observability.GradingRejected().WithLabelValues("locked").Inc()
		return nil, ErrGradingInProgress
	}

	lease.token = token
	observability.GradingInFlight().Inc()
	return lease, nil
}

func (g *gradingGuard) State(submissionID uint) (GradingState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.inFlight[submissionID]
	return state, ok
}

func (g *gradingGuard) key(submissionID uint) string {
	return fmt.Sprintf("%s%d", g.prefix, submissionID)
}

func (g *gradingGuard) forget(submissionID uint) {
	g.mu.Lock()
	delete(g.inFlight, submissionID)
	g.mu.Unlock()
}

// Set records the stage the attempt has reached.
func (l *GradingLease) Set(state GradingState) {
	l.guard.mu.Lock()
	defer l.guard.mu.Unlock()

	if _, ok := l.guard.inFlight[l.submissionID]; ok {
		l.guard.inFlight[l.submissionID] = state
	}
}

// Release frees the submission. It is safe to call more than once.
func (l *GradingLease) Release(ctx context.Context) {
	l.once.Do(func() {
		g := l.guard
		if g.redis != nil && l.token != "" {
			if err := releaseLockScript.Run(ctx, g.redis, []string{g.key(l.submissionID)}, l.token).Err(); err != nil {
				g.logger.Warn().Err(err).Uint("submission_id", l.submissionID).Msg("failed to release grading lock")
			}
		}
		g.forget(l.submissionID)
		observability.GradingInFlight().Dec()
	})
}
