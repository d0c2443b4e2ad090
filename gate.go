package authcore

import (
	"context"
	"time"

	"github.com/google/uuid"

	internalaudit "github.com/securepay/authcore/internal/audit"
	"github.com/securepay/authcore/internal/logging"
	"github.com/securepay/authcore/internal/rate"
	"github.com/securepay/authcore/token"
)

// GateRequest is the transport-agnostic view of one inbound request.
type GateRequest struct {
	IP          string
	Path        string
	Method      string
	BearerToken string
	// CorrelationID, when already assigned by the surrounding transport,
	// is kept; otherwise the Gate generates one.
	CorrelationID string
}

// RequestState is the per-request context enriched by each pipeline stage.
type RequestState struct {
	CorrelationID string
	Request       GateRequest
	// Identity is set by the bearer stage on success.
	Identity *Identity
	// RateRemaining maps window scope ("minute", "hour") to the remaining
	// budget after this request, for response headers. RateLimits carries
	// the configured quota per scope.
	RateRemaining map[string]int
	RateLimits    map[string]int
}

// Stage is one step of the request pipeline. Returning nil continues with
// the enriched state; returning an error short-circuits the request.
type Stage interface {
	Name() string
	Apply(ctx context.Context, st *RequestState) error
}

// Gate composes the rate limiter ahead of token validation. Every request
// gets a correlation identifier exactly once; it flows through every audit
// emission for that request.
type Gate struct {
	throttle []Stage
	auth     []Stage

	dispatcher *internalaudit.Dispatcher
	log        logging.Logger
	now        func() time.Time
}

// NewGate builds a Gate from explicit stage lists. Exposed for tests and
// for callers composing custom pipelines; [Builder.Build] assembles the
// standard one.
func NewGate(throttle, auth []Stage, dispatcher *internalaudit.Dispatcher, log logging.Logger) *Gate {
	if log == nil {
		log = logging.Nop{}
	}
	return &Gate{
		throttle:   throttle,
		auth:       auth,
		dispatcher: dispatcher,
		log:        log,
		now:        time.Now,
	}
}

// Throttle runs only the rate-limiting stages. Used for credential routes
// (login, registration), where authentication happens in the Guard after
// the volume check passes.
func (g *Gate) Throttle(ctx context.Context, req GateRequest) (*RequestState, error) {
	return g.run(ctx, req, g.throttle)
}

// Authorize runs the full pipeline: rate limiting, then bearer validation.
// On success the returned state carries the authenticated [Identity].
func (g *Gate) Authorize(ctx context.Context, req GateRequest) (*RequestState, error) {
	return g.run(ctx, req, append(append([]Stage{}, g.throttle...), g.auth...))
}

func (g *Gate) run(ctx context.Context, req GateRequest, stages []Stage) (*RequestState, error) {
	st := &RequestState{
		CorrelationID: req.CorrelationID,
		Request:       req,
		RateRemaining: make(map[string]int, 2),
		RateLimits:    make(map[string]int, 2),
	}
	if st.CorrelationID == "" {
		st.CorrelationID = uuid.NewString()
	}

	for _, stage := range stages {
		if err := stage.Apply(ctx, st); err != nil {
			g.reject(st, stage.Name(), err)
			return nil, err
		}
	}

	return st, nil
}

func (g *Gate) reject(st *RequestState, stageName string, err error) {
	userID := ""
	if st.Identity != nil {
		userID = st.Identity.UserID
	}
	g.dispatcher.Emit(internalaudit.Event{
		Timestamp:     g.now().UTC(),
		EventType:     "request_rejected",
		UserID:        userID,
		Success:       false,
		Method:        stageName,
		IPAddress:     st.Request.IP,
		Reason:        err.Error(),
		CorrelationID: st.CorrelationID,
	})
}

// rateStage enforces one fixed window. Both the minute and hour stages must
// pass before any downstream logic runs.
type rateStage struct {
	limiter *rate.Limiter
	scope   string
	limit   int
	window  time.Duration
}

func (s *rateStage) Name() string { return "rate_" + s.scope }

func (s *rateStage) Apply(ctx context.Context, st *RequestState) error {
	allowed, remaining := s.limiter.IsAllowed(ctx, st.Request.IP, s.limit, s.window)
	st.RateRemaining[s.scope] = remaining
	st.RateLimits[s.scope] = s.limit
	if !allowed {
		return &RateLimitError{Scope: s.scope, Limit: s.limit, RetryAfter: s.window}
	}
	return nil
}

// bearerStage validates the access token and attaches the identity.
type bearerStage struct {
	tokens *token.Manager
}

func (s *bearerStage) Name() string { return "bearer" }

func (s *bearerStage) Apply(ctx context.Context, st *RequestState) error {
	if st.Request.BearerToken == "" {
		return ErrInvalidToken
	}

	claims, err := s.tokens.Decode(st.Request.BearerToken)
	if err != nil {
		return ErrInvalidToken
	}
	// A stolen refresh token must never authorize a resource call.
	if !token.CheckKind(claims, token.KindAccess) {
		return ErrInvalidToken
	}

	st.Identity = &Identity{
		UserID:        claims.Subject,
		Role:          claims.Role,
		CorrelationID: st.CorrelationID,
	}
	return nil
}
