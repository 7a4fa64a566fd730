package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
)

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		orderEvent(t, "event-one", 0),
		orderEvent(t, "event-two", 0),
	}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	service := newTestService(t, repo, pub)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[1].ID {
		t.Fatalf("expected second row published, got %v", repo.published)
	}
	if len(repo.dead) != 0 {
		t.Fatalf("transient failure must not be terminal")
	}
}

func TestPublishCarriesEnvelopeAttributes(t *testing.T) {
	event := orderEvent(t, "attr-event", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub)

	var topics []string
	service.publisherFor = func(topic string) publisher {
		topics = append(topics, topic)
		return pub
	}

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(topics) != 1 || topics[0] != "orders-topic" {
		t.Fatalf("unexpected topics %v", topics)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.messages))
	}
	attrs := pub.messages[0].Attributes
	if attrs["event_id"] != "attr-event" {
		t.Fatalf("unexpected event_id %q", attrs["event_id"])
	}
	if attrs["event_type"] != string(enums.EventOrderCreated) || attrs["aggregate_type"] != string(enums.AggregateOrder) {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if string(pub.messages[0].Data) != string(event.Payload) {
		t.Fatalf("message body must be the stored envelope")
	}
}

func TestExhaustedAttemptsAreMarkedDead(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{orderEvent(t, "tired", 2)}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("still down")}}}
	service := newTestService(t, repo, pub)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.dead) != 1 {
		t.Fatalf("expected row marked dead, got %v", repo.dead)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("dead row must not also be marked failed")
	}
}

func TestUnroutableEventsAreNotRetried(t *testing.T) {
	bad := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       []byte("not json"),
	}
	unknown := orderEvent(t, "unknown-aggregate", 0)
	unknown.AggregateType = "wishlist"

	repo := &fakeRepo{events: []models.OutboxEvent{bad, unknown}}
	pub := &fakePublisher{}
	service := newTestService(t, repo, pub)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.dead) != 2 {
		t.Fatalf("expected both rows dead, got %v", repo.dead)
	}
	if len(pub.messages) != 0 {
		t.Fatalf("unroutable rows must not be published")
	}
}

func TestProcessBatchReportsIdle(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{})
	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if processed {
		t.Fatalf("empty outbox must report idle")
	}
}

func TestNextBackoffCaps(t *testing.T) {
	base := 500 * time.Millisecond
	if got := nextBackoff(base, base, maxBackoff); got != time.Second {
		t.Fatalf("expected doubling, got %v", got)
	}
	if got := nextBackoff(8*time.Second, base, maxBackoff); got != maxBackoff {
		t.Fatalf("expected cap, got %v", got)
	}
}

func newTestService(t *testing.T, repo *fakeRepo, pub *fakePublisher) *Service {
	t.Helper()
	topics, err := outbox.NewTopicRouter(config.PubSubConfig{OrdersTopic: "orders-topic", ProductsTopic: "products-topic"})
	if err != nil {
		t.Fatalf("topic router: %v", err)
	}
	service, err := NewService(ServiceParams{
		Outbox:           config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: 3},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard}),
		DB:               fakeDB{},
		PubSub:           fakePubSub{},
		Repository:       repo,
		Topics:           topics,
		PublisherFactory: func(string) publisher { return pub },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func orderEvent(t *testing.T, eventID string, attempts int) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(outbox.Envelope{
		Version:    1,
		EventID:    eventID,
		EventType:  string(enums.EventOrderCreated),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
		CreatedAt:     time.Now(),
	}
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type fakePubSub struct{}

func (fakePubSub) Ping(context.Context) error { return nil }

func (fakePubSub) Publisher(string) *gcppubsub.Publisher { return nil }

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	dead      []uuid.UUID
}

func (r *fakeRepo) FetchPending(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return r.events, nil
}

func (r *fakeRepo) MarkPublished(_ *gorm.DB, id uuid.UUID) error {
	r.published = append(r.published, id)
	return nil
}

func (r *fakeRepo) MarkFailed(_ *gorm.DB, id uuid.UUID, _ error) error {
	r.failed = append(r.failed, id)
	return nil
}

func (r *fakeRepo) MarkDead(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	r.dead = append(r.dead, id)
	return nil
}

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
}

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	if len(p.results) == 0 {
		return fakePublishResult{}
	}
	next := p.results[0]
	p.results = p.results[1:]
	return next
}

type fakePublishResult struct {
	err error
}

func (r fakePublishResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "server-id", nil
}

func TestNewServiceDefaultsAndRequirements(t *testing.T) {
	topics, err := outbox.NewTopicRouter(config.PubSubConfig{OrdersTopic: "o", ProductsTopic: "p"})
	if err != nil {
		t.Fatalf("topic router: %v", err)
	}
	params := ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard}),
		DB:         fakeDB{},
		PubSub:     fakePubSub{},
		Repository: &fakeRepo{},
		Topics:     topics,
	}
	service, err := NewService(params)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if service.batchSize != defaultBatchSize || service.maxAttempts != defaultMaxAttempts {
		t.Fatalf("expected defaults, got batch=%d attempts=%d", service.batchSize, service.maxAttempts)
	}
	if service.pollInterval != defaultPollMs*time.Millisecond {
		t.Fatalf("expected default poll interval, got %v", service.pollInterval)
	}

	params.Topics = nil
	if _, err := NewService(params); err == nil {
		t.Fatal("expected missing topic router to fail")
	}
}
