package repositories

import (
	"context"
	"fmt"
	"strconv"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dostarBack/internal/models"
)

const defaultUserCollection = "users"

// SubscriptionRepository is the Firestore-backed entitlement store. Each
// user is one document; the subscription record lives under the nested
// "subscription" field and is only ever merge-written, so unrelated user
// data is never clobbered.
type SubscriptionRepository struct {
	Client     *firestore.Client
	Collection string
}

func NewSubscriptionRepository(client *firestore.Client) *SubscriptionRepository {
	return &SubscriptionRepository{Client: client, Collection: defaultUserCollection}
}

type userDoc struct {
	Subscription models.SubscriptionRecord `firestore:"subscription"`
}

func (r *SubscriptionRepository) collection() string {
	if r.Collection != "" {
		return r.Collection
	}
	return defaultUserCollection
}

func (r *SubscriptionRepository) GetSubscription(ctx context.Context, userID int) (models.SubscriptionRecord, error) {
	snap, err := r.Client.Collection(r.collection()).Doc(strconv.Itoa(userID)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.SubscriptionRecord{}, models.ErrNoRecord
		}
		return models.SubscriptionRecord{}, fmt.Errorf("get subscription for user %d: %w", userID, err)
	}
	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return models.SubscriptionRecord{}, fmt.Errorf("decode subscription for user %d: %w", userID, err)
	}
	return doc.Subscription, nil
}

// MergeWriteSubscription performs a field-level merge of the subscription
// fields. Set with MergeAll only touches the leaf paths present in the
// payload, which is exactly the never-clobber semantics the engine needs.
func (r *SubscriptionRepository) MergeWriteSubscription(ctx context.Context, userID int, fields map[string]interface{}) error {
	_, err := r.Client.Collection(r.collection()).Doc(strconv.Itoa(userID)).Set(ctx, map[string]interface{}{
		"subscription": fields,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("merge subscription for user %d: %w", userID, err)
	}
	return nil
}

// FindOwnerByTransactionID looks for a user whose stored transactionId or
// originalTransactionId equals the argument, most recent match first.
func (r *SubscriptionRepository) FindOwnerByTransactionID(ctx context.Context, transactionID string) (int, error) {
	for _, field := range []string{"subscription.transactionId", "subscription.originalTransactionId"} {
		userID, err := r.queryOwner(ctx, field, transactionID)
		if err == nil {
			return userID, nil
		}
		if err != models.ErrNoRecord {
			return 0, err
		}
	}
	return 0, models.ErrNoRecord
}

func (r *SubscriptionRepository) queryOwner(ctx context.Context, field, transactionID string) (int, error) {
	iter := r.Client.Collection(r.collection()).
		Where(field, "==", transactionID).
		OrderBy("subscription.updatedAt", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return 0, models.ErrNoRecord
	}
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", field, err)
	}
	userID, err := strconv.Atoi(snap.Ref.ID)
	if err != nil {
		return 0, fmt.Errorf("non-numeric user document id %q", snap.Ref.ID)
	}
	return userID, nil
}
