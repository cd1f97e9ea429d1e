package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carmatch/internal/events"
	"carmatch/internal/guardrail"
	"carmatch/internal/logger"
	"carmatch/internal/metrics"
	"carmatch/internal/model"
	"carmatch/internal/repository"
	"carmatch/internal/utils"
)

// Turn outcomes, used as metric labels.
const (
	outcomeRejected    = "rejected"
	outcomeQuestion    = "question"
	outcomeAnswered    = "answered"
	outcomeRecommended = "recommended"
	outcomeNoMatches   = "no_matches"
	outcomeHandoff     = "handoff"
	outcomeClosed      = "closed"
	outcomeReset       = "reset"
	outcomeFatal       = "fatal"
)

const (
	extractionHistory = 5
	promptHistory     = 6
	questionContext   = 3
	publishTimeout    = 2 * time.Second
)

var (
	exitCommands  = map[string]bool{"sair": true, "tchau": true, "encerrar": true, "finalizar": true, "exit": true, "quit": true}
	resetCommands = map[string]bool{"reiniciar": true, "recomecar": true, "reset": true, "restart": true, "nova busca": true, "comecar de novo": true}
	handoffRe     = regexp.MustCompile(`\b(vendedor|vendedora|atendente|humano|pessoa real|consultor humano|salesperson|human agent)\b`)
	commandTrimRe = regexp.MustCompile(`[^\p{L}\p{N} ]+`)
)

// Guard screens inbound and outbound messages
type Guard interface {
	ValidateInput(sender, raw string) guardrail.Result
	ValidateOutput(text string) guardrail.Result
}

// ProfileExtractor turns a message into a partial profile
type ProfileExtractor interface {
	Extract(ctx context.Context, message string, opts ExtractOptions) model.ExtractionResult
}

// Recommender ranks the catalog for a profile
type Recommender interface {
	Search(ctx context.Context, profile model.CustomerProfile, limit int) ([]model.ScoredMatch, error)
	RecordRecommendation(entry model.RecommendationLog)
}

// SessionStore persists conversation contexts by session
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*model.ConversationContext, error)
	Save(ctx context.Context, conv *model.ConversationContext) error
	Delete(ctx context.Context, sessionID string) error
}

// Dependencies are the collaborators of the Orchestrator
type Dependencies struct {
	Guard     Guard
	Extractor ProfileExtractor
	Search    Recommender
	Talk      *Conversationalist
	Sessions  SessionStore
	Events    events.Publisher
}

// OrchestratorConfig holds per-conversation limits
type OrchestratorConfig struct {
	HistoryLimit        int
	RecommendationLimit int
	TurnTimeout         time.Duration
}

// Orchestrator runs one conversation turn at a time per session
type Orchestrator struct {
	deps   Dependencies
	cfg    OrchestratorConfig
	locks  *keyedMutex
	now    func() time.Time
	newID  func() string
	logger *logger.Logger
}

// NewOrchestrator creates an orchestrator. A nil Events publisher drops events.
func NewOrchestrator(deps Dependencies, cfg OrchestratorConfig, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewNop()
	}
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}
	if deps.Talk == nil {
		deps.Talk = NewConversationalist(nil, log)
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.RecommendationLimit <= 0 {
		cfg.RecommendationLimit = DefaultRecommendationLimit
	}
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		locks:  newKeyedMutex(),
		now:    time.Now,
		newID:  uuid.NewString,
		logger: log.Named("orchestrator"),
	}
}

// HandleTurn processes one inbound message and returns the reply to send.
// It never fails: unexpected errors and panics become a generic apology.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, raw string) (reply string) {
	start := o.now()
	outcome := outcomeFatal
	defer func() {
		metrics.TurnsTotal.WithLabelValues(outcome).Inc()
		metrics.TurnDuration.Observe(time.Since(start).Seconds())
	}()

	unlock := o.locks.Lock(sessionID)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("conversation turn panicked",
				zap.String("session_id", sessionID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			outcome = outcomeFatal
			reply = ApologyMessage
		}
	}()

	in := o.deps.Guard.ValidateInput(sessionID, raw)
	if !in.Allowed {
		outcome = outcomeRejected
		return in.Reason
	}

	if o.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.TurnTimeout)
		defer cancel()
	}

	reply, outcome, err := o.runTurn(ctx, sessionID, in.Text)
	if err != nil {
		o.logger.Error("conversation turn failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		outcome = outcomeFatal
		return ApologyMessage
	}
	return reply
}

func (o *Orchestrator) runTurn(ctx context.Context, sessionID, text string) (string, string, error) {
	now := o.now()
	conv := o.loadConversation(ctx, sessionID, now)
	log := o.logger.ForSession(sessionID, conv.ID)

	recent := conv.RecentUserMessages(extractionHistory)
	conv.AppendMessage(model.RoleUser, text, now, o.cfg.HistoryLimit)
	conv.Meta.MessageCount++
	conv.Meta.LastMessageAt = now

	command := normalizeCommand(text)
	switch {
	case exitCommands[command]:
		conv.Mode = Transition(conv.Mode, EventExit)
		o.publish(ctx, log, events.SubjectSessionClosed, conv, map[string]string{"reason": "exit"})
		return o.finish(ctx, log, conv, GoodbyeMessage), outcomeClosed, nil
	case resetCommands[command]:
		conv.Mode = Transition(conv.Mode, EventExit)
		o.publish(ctx, log, events.SubjectSessionClosed, conv, map[string]string{"reason": "reset"})
		if err := o.deps.Sessions.Delete(ctx, sessionID); err != nil {
			log.Warn("failed to delete session", zap.Error(err))
		}
		return o.checkOutput(ResetMessage), outcomeReset, nil
	case handoffRe.MatchString(utils.Fold(text)):
		conv.Meta.HandoffRequested = true
		o.publish(ctx, log, events.SubjectHandoff, conv, map[string]interface{}{
			"profile": conv.Profile,
			"summary": Summarize(conv.History, promptHistory),
		})
		return o.finish(ctx, log, conv, HandoffMessage), outcomeHandoff, nil
	}

	if conv.Profile.CustomerName == nil {
		conv.Profile.CustomerName = ExtractCustomerName(text)
	}
	opening := conv.Meta.MessageCount == 1
	greet := func(reply string) string {
		if opening {
			return withGreeting(conv.Profile, reply)
		}
		return reply
	}

	extraction := o.deps.Extractor.Extract(ctx, text, ExtractOptions{
		CurrentProfile: &conv.Profile,
		RecentHistory:  recent,
	})
	conv.Meta.ExtractionCount++
	conv.Profile = Merge(conv.Profile, extraction.Profile)
	log.Debug("profile updated",
		zap.Strings("extracted", extraction.FieldsExtracted),
		zap.Float64("confidence", extraction.Confidence),
	)

	if conv.Mode == model.ModeRecommendation {
		conv.Mode = Transition(conv.Mode, EventUserMessage)
	}
	summary := Summarize(conv.History, promptHistory)

	if IsQuestion(text) {
		conv.Meta.UserQuestions++
		matches, err := o.deps.Search.Search(ctx, conv.Profile, questionContext)
		if err != nil {
			log.Warn("catalog context unavailable for question", zap.Error(err))
			matches = nil
		}
		answer := o.deps.Talk.AnswerQuestion(ctx, text, conv.Profile, matches, summary)
		return o.finish(ctx, log, conv, greet(answer)), outcomeAnswered, nil
	}

	readiness := Assess(conv.Profile, conv.Meta)
	if !readiness.CanRecommend {
		conv.Mode = Transition(conv.Mode, EventFollowUp)
		conv.Meta.QuestionsAsked++
		question := o.deps.Talk.NextQuestion(ctx, conv.Profile, readiness, summary)
		return o.finish(ctx, log, conv, greet(question)), outcomeQuestion, nil
	}

	searchStart := o.now()
	matches, err := o.deps.Search.Search(ctx, conv.Profile, o.cfg.RecommendationLimit)
	if err != nil {
		return "", outcomeFatal, fmt.Errorf("ranking failed: %w", err)
	}
	conv.Mode = Transition(conv.Mode, EventReady)

	if len(matches) == 0 {
		conv.LastRecommended = nil
		return o.finish(ctx, log, conv, greet(NoMatchesMessage)), outcomeNoMatches, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.Vehicle.ID
	}
	conv.LastRecommended = ids
	conv.Meta.Recommendations++

	o.deps.Search.RecordRecommendation(model.RecommendationLog{
		SessionID:      sessionID,
		ConversationID: conv.ID,
		Profile:        conv.Profile,
		Strategy:       matches[0].Tier,
		VehicleIDs:     ids,
		ResponseTimeMs: int(o.now().Sub(searchStart).Milliseconds()),
	})
	o.publish(ctx, log, events.SubjectRecommendation, conv, map[string]interface{}{
		"vehicle_ids": ids,
		"strategy":    matches[0].Tier,
		"confidence":  readiness.Confidence,
	})

	return o.finish(ctx, log, conv, greet(FormatRecommendations(matches, conv.Profile))), outcomeRecommended, nil
}

// Reset discards the conversation of a session.
func (o *Orchestrator) Reset(ctx context.Context, sessionID string) error {
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	conv, err := o.deps.Sessions.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if conv != nil {
		o.publish(ctx, o.logger.ForSession(sessionID, conv.ID), events.SubjectSessionClosed, conv,
			map[string]string{"reason": "reset"})
	}
	if err := o.deps.Sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// loadConversation returns the live conversation for a session, or a fresh
// one when there is none, it is closed, or the store is unreachable.
func (o *Orchestrator) loadConversation(ctx context.Context, sessionID string, now time.Time) *model.ConversationContext {
	conv, err := o.deps.Sessions.Get(ctx, sessionID)
	switch {
	case err == nil && conv.Mode != model.ModeClosed:
		return conv
	case err != nil && !errors.Is(err, repository.ErrSessionNotFound):
		o.logger.Warn("session store unavailable, starting fresh conversation",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	return &model.ConversationContext{
		ID:        o.newID(),
		SessionID: sessionID,
		Mode:      model.ModeDiscovery,
		Meta:      model.ConversationMeta{StartedAt: now},
	}
}

// finish screens the reply, records it in the history and persists the
// conversation. A failed save is logged, the reply is still sent.
func (o *Orchestrator) finish(ctx context.Context, log *logger.Logger, conv *model.ConversationContext, reply string) string {
	reply = o.checkOutput(reply)
	conv.AppendMessage(model.RoleAssistant, reply, o.now(), o.cfg.HistoryLimit)
	if err := o.deps.Sessions.Save(ctx, conv); err != nil {
		log.Error("failed to save conversation", zap.Error(err))
	}
	return reply
}

func (o *Orchestrator) checkOutput(reply string) string {
	out := o.deps.Guard.ValidateOutput(reply)
	if !out.Allowed {
		return guardrail.SafeReply
	}
	return out.Text
}

func (o *Orchestrator) publish(ctx context.Context, log *logger.Logger, subject string, conv *model.ConversationContext, data interface{}) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err := o.deps.Events.Publish(ctx, subject, events.Event{
		Type:           subject,
		SessionID:      conv.SessionID,
		ConversationID: conv.ID,
		OccurredAt:     o.now(),
		Data:           data,
	})
	if err != nil {
		log.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

func normalizeCommand(text string) string {
	s := commandTrimRe.ReplaceAllString(utils.Fold(text), "")
	return strings.Join(strings.Fields(s), " ")
}

// keyedMutex serializes work per key. Entries are dropped when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
