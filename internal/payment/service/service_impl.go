package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatly/internal/clock"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  paymentdomain.Repository
}

// Service owns the webhook event ledger.
type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  paymentdomain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("payment.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// RecordEvent stores a verified event in the ledger, or returns the existing
// unprocessed row with its payload refreshed. A processed row yields
// ErrEventAlreadyProcessed.
func (s *Service) RecordEvent(ctx context.Context, source string, event *paymentdomain.Event) (*paymentdomain.WebhookEvent, error) {
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	stored, err := s.loadEvent(ctx, event)
	if err != nil || stored != nil {
		return stored, err
	}

	received := &paymentdomain.WebhookEvent{
		ID:         s.genID.Generate(),
		ExternalID: event.ID,
		Source:     strings.ToLower(strings.TrimSpace(source)),
		EventType:  event.Type,
		Payload:    datatypes.JSON(event.Payload),
		ReceivedAt: s.clock.Now(),
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, received)
	if err != nil {
		return nil, err
	}
	if inserted {
		return received, nil
	}

	// Lost an insert race with a concurrent delivery of the same event.
	stored, err = s.loadEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, paymentdomain.ErrInvalidEvent
	}
	return stored, nil
}

func (s *Service) loadEvent(ctx context.Context, event *paymentdomain.Event) (*paymentdomain.WebhookEvent, error) {
	stored, err := s.repo.FindEvent(ctx, s.db, event.ID)
	if err != nil || stored == nil {
		return nil, err
	}
	if stored.ProcessedAt != nil {
		return nil, paymentdomain.ErrEventAlreadyProcessed
	}
	if err := s.repo.RefreshPayload(ctx, s.db, stored.ID, event.Payload); err != nil {
		return nil, err
	}
	stored.Payload = datatypes.JSON(event.Payload)
	return stored, nil
}

// MarkProcessed closes a ledger row. It must only run after every handler
// side effect has committed.
func (s *Service) MarkProcessed(ctx context.Context, id snowflake.ID) error {
	return s.repo.MarkProcessed(ctx, s.db, id, s.clock.Now())
}

func validateEvent(event *paymentdomain.Event) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.ID = strings.TrimSpace(event.ID)
	event.Type = strings.TrimSpace(event.Type)
	if event.ID == "" || event.Type == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if !json.Valid(event.Payload) {
		return paymentdomain.ErrInvalidPayload
	}
	return nil
}
