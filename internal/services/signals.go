package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anonto42/lovesignal/backend/internal/apperrors"
	"github.com/anonto42/lovesignal/backend/internal/events"
	"github.com/anonto42/lovesignal/backend/internal/metrics"
	"github.com/anonto42/lovesignal/backend/internal/models"
	"github.com/anonto42/lovesignal/backend/internal/repositories"
	"github.com/anonto42/lovesignal/backend/internal/store"
	"go.uber.org/zap"
)

// LedgerMode decides whether senders may change signals after sending them.
type LedgerMode string

const (
	LedgerAppendOnly LedgerMode = "append-only"
	LedgerEditable   LedgerMode = "editable"
)

// ParseLedgerMode validates a configured mode.
func ParseLedgerMode(s string) (LedgerMode, error) {
	switch LedgerMode(strings.ToLower(strings.TrimSpace(s))) {
	case LedgerAppendOnly, "":
		return LedgerAppendOnly, nil
	case LedgerEditable:
		return LedgerEditable, nil
	default:
		return "", fmt.Errorf("unknown ledger mode %q", s)
	}
}

// DefaultCategories are the signal types offered when none are configured.
var DefaultCategories = []string{"praise", "listening", "help", "companionship", "gift", "affirmation", "giving"}

// LedgerConfig holds the per-deployment choices of the ledger.
type LedgerConfig struct {
	Categories []string
	Policy     LoveIndexPolicy
	Mode       LedgerMode
}

// RecipientTarget names the recipient of a signal in one of three ways.
type RecipientTarget struct {
	Kind  string
	Value string
}

// ByUsername targets the owner of a username.
func ByUsername(username string) RecipientTarget {
	return RecipientTarget{Kind: models.TargetUsername, Value: username}
}

// ByContact targets an identity that must be an accepted contact of the sender.
func ByContact(identityID string) RecipientTarget {
	return RecipientTarget{Kind: models.TargetContact, Value: identityID}
}

// ByIdentity targets an identity id directly.
func ByIdentity(identityID string) RecipientTarget {
	return RecipientTarget{Kind: models.TargetIdentity, Value: identityID}
}

// SignalLedger records signals and aggregates them per identity.
type SignalLedger struct {
	signals   repositories.SignalRepository
	profiles  repositories.ProfileRepository
	contacts  *ContactManager
	cfg       LedgerConfig
	publisher events.Publisher
	logger    *zap.Logger
}

func NewSignalLedger(signals repositories.SignalRepository, profiles repositories.ProfileRepository, contacts *ContactManager, cfg LedgerConfig, publisher events.Publisher, logger *zap.Logger) *SignalLedger {
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories
	}
	if cfg.Policy.Name() == "" {
		cfg.Policy = BoundedGrowth
	}
	if cfg.Mode == "" {
		cfg.Mode = LedgerAppendOnly
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignalLedger{
		signals:   signals,
		profiles:  profiles,
		contacts:  contacts,
		cfg:       cfg,
		publisher: publisher,
		logger:    logger.Named("signals"),
	}
}

func (l *SignalLedger) Categories() []string    { return slices.Clone(l.cfg.Categories) }
func (l *SignalLedger) Policy() LoveIndexPolicy { return l.cfg.Policy }
func (l *SignalLedger) Mode() LedgerMode        { return l.cfg.Mode }

// SendSignal appends a signal from senderID and returns its id.
func (l *SignalLedger) SendSignal(ctx context.Context, senderID string, target RecipientTarget, message, signalType string) (_ string, err error) {
	defer func() { metrics.SignalsTotal.WithLabelValues("send", metrics.Result(err)).Inc() }()

	if senderID == "" {
		return "", apperrors.Wrap(apperrors.ErrValidation, "sender is required")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return "", apperrors.Wrap(apperrors.ErrValidation, "message is required")
	}
	signalType = strings.TrimSpace(signalType)
	if err := l.checkCategory(signalType); err != nil {
		return "", err
	}
	recipientID, err := l.resolveRecipient(ctx, senderID, target)
	if err != nil {
		return "", err
	}

	id, err := l.signals.CreateSignal(ctx, models.Signal{
		SenderID:    senderID,
		RecipientID: recipientID,
		Message:     message,
		Type:        signalType,
	})
	if err != nil {
		return "", err
	}

	l.logger.Info("signal sent",
		zap.String("signal_id", id),
		zap.String("sender", senderID),
		zap.String("recipient", recipientID),
		zap.String("type", signalType))
	l.publish(ctx, events.Event{
		Type:        events.SignalSent,
		ActorID:     senderID,
		RecipientID: recipientID,
		TargetID:    id,
		TargetType:  "signal",
		Detail:      signalType,
	})
	return id, nil
}

// EditSignal applies patch to a signal the caller sent. Only editable ledgers allow it.
func (l *SignalLedger) EditSignal(ctx context.Context, signalID, callerID string, patch models.SignalPatch) (_ *models.Signal, err error) {
	defer func() { metrics.SignalsTotal.WithLabelValues("edit", metrics.Result(err)).Inc() }()

	if patch.Empty() {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "nothing to change")
	}
	signal, err := l.ownSignal(ctx, signalID, callerID)
	if err != nil {
		return nil, err
	}

	if patch.Message != nil {
		msg := strings.TrimSpace(*patch.Message)
		if msg == "" {
			return nil, apperrors.Wrap(apperrors.ErrValidation, "message is required")
		}
		patch.Message = &msg
	}
	if patch.Type != nil {
		t := strings.TrimSpace(*patch.Type)
		if err := l.checkCategory(t); err != nil {
			return nil, err
		}
		patch.Type = &t
	}
	if patch.RecipientID != nil {
		recipient := strings.TrimSpace(*patch.RecipientID)
		if recipient == "" {
			return nil, apperrors.Wrap(apperrors.ErrValidation, "recipient is required")
		}
		if recipient == signal.SenderID {
			return nil, apperrors.Wrap(apperrors.ErrSelfReference, "you cannot send a signal to yourself")
		}
		if _, err := l.profiles.GetProfile(ctx, recipient); err != nil {
			return nil, err
		}
		patch.RecipientID = &recipient
	}

	if err := l.signals.UpdateSignal(ctx, signalID, patch); err != nil {
		return nil, err
	}
	l.logger.Info("signal edited", zap.String("signal_id", signalID), zap.String("by", callerID))
	return l.signals.GetSignal(ctx, signalID)
}

// DeleteSignal removes a signal the caller sent. Only editable ledgers allow it.
func (l *SignalLedger) DeleteSignal(ctx context.Context, signalID, callerID string) (err error) {
	defer func() { metrics.SignalsTotal.WithLabelValues("delete", metrics.Result(err)).Inc() }()

	if _, err := l.ownSignal(ctx, signalID, callerID); err != nil {
		return err
	}
	if err := l.signals.DeleteSignal(ctx, signalID); err != nil {
		return err
	}
	l.logger.Info("signal deleted", zap.String("signal_id", signalID), zap.String("by", callerID))
	return nil
}

// Summary returns the current counts and love index of identityID.
func (l *SignalLedger) Summary(ctx context.Context, identityID string) (models.Summary, error) {
	sent, err := l.signals.GetSentSignals(ctx, identityID)
	if err != nil {
		return models.Summary{}, err
	}
	received, err := l.signals.GetReceivedSignals(ctx, identityID)
	if err != nil {
		return models.Summary{}, err
	}
	return models.Summary{
		SentCount:     len(sent),
		ReceivedCount: len(received),
		LoveIndex:     l.cfg.Policy.Compute(len(sent), len(received)),
		Policy:        l.cfg.Policy.Name(),
	}, nil
}

// StreamLogs keeps a merged, newest-first log of everything identityID sent and received.
// The first view is emitted once both directions have delivered their initial snapshot, then
// again after every change to either. fn is never called concurrently; it may call
// Unsubscribe itself.
func (l *SignalLedger) StreamLogs(ctx context.Context, identityID string, fn func(models.LogView)) (store.Subscription, error) {
	s := &logStream{
		ledger:     l,
		cache:      profileCacheFrom(ctx, l.profiles),
		identityID: identityID,
		sets: map[models.Direction]map[string]models.Signal{
			models.DirectionSent:     {},
			models.DirectionReceived: {},
		},
		ready: map[models.Direction]bool{},
		fn:    fn,
	}

	sent, err := l.signals.SubscribeSent(ctx, identityID, func(snap store.Snapshot) {
		s.apply(ctx, models.DirectionSent, snap)
	})
	if err != nil {
		return nil, err
	}
	received, err := l.signals.SubscribeReceived(ctx, identityID, func(snap store.Snapshot) {
		s.apply(ctx, models.DirectionReceived, snap)
	})
	if err != nil {
		sent.Unsubscribe()
		return nil, err
	}

	gauge := metrics.LiveSubscriptions.WithLabelValues("logs")
	gauge.Inc()
	var once sync.Once
	return store.SubscriptionFunc(func() {
		once.Do(func() {
			s.closed.Store(true)
			sent.Unsubscribe()
			received.Unsubscribe()
			gauge.Dec()
		})
	}), nil
}

type logStream struct {
	ledger     *SignalLedger
	cache      *ProfileCache
	identityID string
	fn         func(models.LogView)

	closed atomic.Bool

	mu    sync.Mutex
	sets  map[models.Direction]map[string]models.Signal
	ready map[models.Direction]bool
}

func (s *logStream) apply(ctx context.Context, dir models.Direction, snap store.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return
	}

	set := s.sets[dir]
	for _, ch := range snap.Changes {
		if ch.Kind == store.Removed {
			delete(set, ch.Document.ID)
			continue
		}
		set[ch.Document.ID] = models.SignalFromDocument(ch.Document)
	}
	if snap.Initial {
		s.ready[dir] = true
	}
	if !s.ready[models.DirectionSent] || !s.ready[models.DirectionReceived] {
		return
	}

	view := s.build(ctx)
	if s.closed.Load() {
		return
	}
	metrics.StreamEmissions.WithLabelValues("logs").Inc()
	s.fn(view)
}

func (s *logStream) build(ctx context.Context) models.LogView {
	sent := s.sets[models.DirectionSent]
	received := s.sets[models.DirectionReceived]

	entries := make([]models.LogEntry, 0, len(sent)+len(received))
	for _, sig := range sent {
		entries = append(entries, models.LogEntry{
			Signal:              sig,
			Direction:           models.DirectionSent,
			CounterpartUsername: s.cache.Username(ctx, sig.RecipientID),
		})
	}
	receivedCount := 0
	for id, sig := range received {
		// A signal addressed to its own sender is already listed as sent.
		if _, dup := sent[id]; dup {
			continue
		}
		receivedCount++
		entries = append(entries, models.LogEntry{
			Signal:              sig,
			Direction:           models.DirectionReceived,
			CounterpartUsername: s.cache.Username(ctx, sig.SenderID),
		})
	}
	sortEntries(entries)

	return models.LogView{
		Entries:       entries,
		SentCount:     len(sent),
		ReceivedCount: receivedCount,
		LoveIndex:     s.ledger.cfg.Policy.Compute(len(sent), receivedCount),
	}
}

// sortEntries orders newest first, breaking ties by id so every emission is stable.
func sortEntries(entries []models.LogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ti, tj := entries[i].Timestamp, entries[j].Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].ID < entries[j].ID
	})
}

func (l *SignalLedger) checkCategory(signalType string) error {
	if signalType == "" {
		return apperrors.Wrap(apperrors.ErrValidation, "signal type is required")
	}
	if !slices.Contains(l.cfg.Categories, signalType) {
		return apperrors.Wrap(apperrors.ErrValidation, "unknown signal type %q", signalType)
	}
	return nil
}

func (l *SignalLedger) resolveRecipient(ctx context.Context, senderID string, target RecipientTarget) (string, error) {
	value := strings.TrimSpace(target.Value)
	if value == "" {
		return "", apperrors.Wrap(apperrors.ErrValidation, "recipient is required")
	}

	var recipientID string
	switch target.Kind {
	case models.TargetUsername, "":
		profile, err := l.profiles.GetProfileByUsername(ctx, value)
		if err != nil {
			return "", err
		}
		recipientID = profile.IdentityID
	case models.TargetContact:
		if value == senderID {
			break
		}
		if l.contacts == nil {
			return "", apperrors.Wrap(apperrors.ErrPermissionDenied, "contacts are not enabled")
		}
		ok, err := l.contacts.AreContacts(ctx, senderID, value)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", apperrors.Wrap(apperrors.ErrPermissionDenied, "recipient is not one of your contacts")
		}
		recipientID = value
	case models.TargetIdentity:
		recipientID = value
	default:
		return "", apperrors.Wrap(apperrors.ErrValidation, "unknown target %q", target.Kind)
	}

	if recipientID == "" || value == senderID || recipientID == senderID {
		return "", apperrors.Wrap(apperrors.ErrSelfReference, "you cannot send a signal to yourself")
	}
	return recipientID, nil
}

// ownSignal loads a signal for a sender-side mutation.
func (l *SignalLedger) ownSignal(ctx context.Context, signalID, callerID string) (*models.Signal, error) {
	if l.cfg.Mode != LedgerEditable {
		return nil, apperrors.Wrap(apperrors.ErrPermissionDenied, "ledger is append-only")
	}
	signal, err := l.signals.GetSignal(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if signal.SenderID != callerID {
		return nil, apperrors.Wrap(apperrors.ErrPermissionDenied, "only the sender can change a signal")
	}
	return signal, nil
}

func (l *SignalLedger) publish(ctx context.Context, event events.Event) {
	event.ActorUsername = profileCacheFrom(ctx, l.profiles).Username(ctx, event.ActorID)
	event.OccurredAt = time.Now().UTC()
	if err := l.publisher.Publish(ctx, event); err != nil {
		l.logger.Warn("publish event failed", zap.String("type", event.Type), zap.Error(err))
	}
}
