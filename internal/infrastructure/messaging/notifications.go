// Package messaging provides the realtime invalidation path: notifications,
// topic naming, the durable connection registry, and fan-out broadcasting to
// subscribed clients.
package messaging

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Action describes what happened to the entity a notification is about.
type Action string

const (
	ActionCreated          Action = "created"
	ActionUpdated          Action = "updated"
	ActionDeleted          Action = "deleted"
	ActionCacheInvalidated Action = "cache_invalidated"
)

// Notification is one pushed event. Immutable once constructed; it exists
// only for delivery and is never persisted.
type Notification struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Action    Action          `json:"action,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	City      string          `json:"city,omitempty"`
	Category  string          `json:"category,omitempty"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewNotification constructs a notification with a fresh ULID and timestamp.
// The ULID doubles as the client-side dedupe identity.
func NewNotification(entityType string, action Action, data json.RawMessage) *Notification {
	return &Notification{
		ID:        ulid.Make().String(),
		Type:      entityType,
		Action:    action,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// =============================================================================
// Topic naming
// =============================================================================
//
// Topics form a flat namespace composed from entity type, geography, and
// category: entity, entity_{city}, entity_{category}, entity_{city}_{category}.
// Clients subscribe to any subset, narrow or broad.

// EntityPartner and EntitySubscription are the two pushed entity families.
const (
	EntityPartner      = "partner"
	EntitySubscription = "subscription"
)

// Topic composes a topic name from an entity type and optional city and
// category scopes.
func Topic(entity, city, category string) string {
	parts := []string{entity}
	if city = normalizeSegment(city); city != "" {
		parts = append(parts, city)
	}
	if category = normalizeSegment(category); category != "" {
		parts = append(parts, category)
	}
	return strings.Join(parts, "_")
}

// PartnerTopics expands the topic set a partner event must reach: broad
// subscribers plus every narrower scope that matches.
func PartnerTopics(city, category string) []string {
	topics := []string{Topic(EntityPartner, "", "")}
	if normalizeSegment(city) != "" {
		topics = append(topics, Topic(EntityPartner, city, ""))
	}
	if normalizeSegment(category) != "" {
		topics = append(topics, Topic(EntityPartner, "", category))
	}
	if normalizeSegment(city) != "" && normalizeSegment(category) != "" {
		topics = append(topics, Topic(EntityPartner, city, category))
	}
	return topics
}

// SubscriptionTopic is the per-user topic for subscription changes.
func SubscriptionTopic(userID string) string {
	return EntitySubscription + "_" + userID
}

func normalizeSegment(segment string) string {
	segment = strings.ToLower(strings.TrimSpace(segment))
	return strings.ReplaceAll(segment, " ", "-")
}
