package tokenkit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const athleteKeyPrefix = "athletes/"

// TokenRecord is the persisted credential state for one athlete.
type TokenRecord struct {
	AthleteID    string
	AccessToken  string
	RefreshToken string
	// ExpiresAt is an absolute Unix timestamp in seconds.
	ExpiresAt int64
}

type storedTokenRecord struct {
	AthleteID    string `json:"athlete_id,omitempty"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    *int64 `json:"expires_at"`
}

// AthleteKey returns the store key for an athlete's token record.
func AthleteKey(athleteID string) string {
	return athleteKeyPrefix + athleteID
}

// Validate reports whether all four fields are populated.
func (record TokenRecord) Validate() error {
	switch {
	case strings.TrimSpace(record.AthleteID) == "":
		return fmt.Errorf("%w: athlete_id", ErrIncompleteRecord)
	case record.AccessToken == "":
		return fmt.Errorf("%w: access_token", ErrIncompleteRecord)
	case record.RefreshToken == "":
		return fmt.Errorf("%w: refresh_token", ErrIncompleteRecord)
	case record.ExpiresAt <= 0:
		return fmt.Errorf("%w: expires_at", ErrIncompleteRecord)
	}
	return nil
}

// ValidAt reports whether the access token outlives now by more than margin.
func (record TokenRecord) ValidAt(now time.Time, margin time.Duration) bool {
	soon := now.Add(margin).Unix()
	return record.ExpiresAt > soon
}

// EncodeTokenRecord serializes a record as a flat JSON object of its four fields.
func EncodeTokenRecord(record TokenRecord) (string, error) {
	if err := record.Validate(); err != nil {
		return "", err
	}
	expiresAt := record.ExpiresAt
	encoded, err := json.Marshal(storedTokenRecord{
		AthleteID:    record.AthleteID,
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		ExpiresAt:    &expiresAt,
	})
	if err != nil {
		return "", fmt.Errorf("token_record.encode: %w", err)
	}
	return string(encoded), nil
}

// DecodeTokenRecord parses a stored value read under key. Records without an
// athlete_id take it from the key.
func DecodeTokenRecord(key string, value string) (TokenRecord, error) {
	var stored storedTokenRecord
	if err := json.Unmarshal([]byte(value), &stored); err != nil {
		return TokenRecord{}, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, key, err)
	}
	keyAthleteID := strings.TrimPrefix(key, athleteKeyPrefix)
	athleteID := stored.AthleteID
	if athleteID == "" {
		athleteID = keyAthleteID
	}
	if athleteID != keyAthleteID {
		return TokenRecord{}, fmt.Errorf("%w: %s: athlete_id %q does not match key", ErrMalformedRecord, key, athleteID)
	}
	if stored.ExpiresAt == nil {
		return TokenRecord{}, fmt.Errorf("%w: %s: missing expires_at", ErrMalformedRecord, key)
	}
	record := TokenRecord{
		AthleteID:    athleteID,
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		ExpiresAt:    *stored.ExpiresAt,
	}
	if err := record.Validate(); err != nil {
		return TokenRecord{}, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, key, err)
	}
	return record, nil
}
