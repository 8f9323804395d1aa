package strava

import (
	"context"
	"encoding/json"
)

// Webhook aspect and object types sent by the provider.
const (
	AspectCreate = "create"
	AspectUpdate = "update"
	AspectDelete = "delete"

	ObjectActivity = "activity"
	ObjectAthlete  = "athlete"
)

// WebhookEvent is the push notification body for activity and athlete changes.
type WebhookEvent struct {
	AspectType     string         `json:"aspect_type" binding:"required,oneof=create update delete"`
	EventTime      int64          `json:"event_time"`
	ObjectID       int64          `json:"object_id" binding:"required,gt=0"`
	ObjectType     string         `json:"object_type" binding:"required,oneof=activity athlete"`
	OwnerID        int64          `json:"owner_id" binding:"required,gt=0"`
	SubscriptionID int64          `json:"subscription_id"`
	Updates        map[string]any `json:"updates,omitempty"`
}

// TouchesActivity reports whether the event refers to an activity that still exists.
func (event WebhookEvent) TouchesActivity() bool {
	return event.ObjectType == ObjectActivity && event.AspectType != AspectDelete
}

// ActivityPolicy decides what to do with an activity after a webhook notification.
type ActivityPolicy interface {
	Review(ctx context.Context, event WebhookEvent, activity json.RawMessage) error
}

// PassThroughPolicy leaves every activity unchanged.
type PassThroughPolicy struct{}

// Review accepts the activity as-is.
func (PassThroughPolicy) Review(ctx context.Context, event WebhookEvent, activity json.RawMessage) error {
	return nil
}
