package tokenkit

import (
	"context"
	"fmt"
)

// RecordStore reads and writes token records through a KeyValueStore.
type RecordStore struct {
	store KeyValueStore
}

// NewRecordStore wraps a key-value store.
func NewRecordStore(store KeyValueStore) *RecordStore {
	return &RecordStore{store: store}
}

// Load returns the record for athleteID or ErrNotAuthorized when none exists.
func (records *RecordStore) Load(ctx context.Context, athleteID string) (TokenRecord, error) {
	key := AthleteKey(athleteID)
	value, found, err := records.store.Get(ctx, key)
	if err != nil {
		return TokenRecord{}, fmt.Errorf("%w: get %s: %v", ErrStoreAccess, key, err)
	}
	if !found {
		return TokenRecord{}, fmt.Errorf("%w: %s", ErrNotAuthorized, athleteID)
	}
	return DecodeTokenRecord(key, value)
}

// Save overwrites the record stored under the record's athlete id.
func (records *RecordStore) Save(ctx context.Context, record TokenRecord) error {
	encoded, err := EncodeTokenRecord(record)
	if err != nil {
		return err
	}
	key := AthleteKey(record.AthleteID)
	if putErr := records.store.Put(ctx, key, encoded); putErr != nil {
		return fmt.Errorf("%w: put %s: %v", ErrStoreAccess, key, putErr)
	}
	return nil
}
