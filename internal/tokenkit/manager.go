package tokenkit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var errNilRefreshResult = errors.New("token_manager.nil_refresh_result")

// Manager hands out access tokens that stay valid for at least the expiry margin,
// refreshing and persisting them when they are about to expire.
//
// Refreshes for the same athlete are collapsed within one process. Separate
// processes sharing a store may still both refresh; the last write wins.
type Manager struct {
	records      *RecordStore
	exchanger    TokenExchanger
	clock        Clock
	margin       time.Duration
	logger       *zap.Logger
	metrics      MetricsRecorder
	refreshGroup singleflight.Group
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source.
func WithClock(clock Clock) ManagerOption {
	return func(manager *Manager) {
		if clock != nil {
			manager.clock = clock
		}
	}
}

// WithExpiryMargin overrides DefaultExpiryMargin.
func WithExpiryMargin(margin time.Duration) ManagerOption {
	return func(manager *Manager) {
		if margin > 0 {
			manager.margin = margin
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(manager *Manager) {
		if logger != nil {
			manager.logger = logger
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(metrics MetricsRecorder) ManagerOption {
	return func(manager *Manager) {
		if metrics != nil {
			manager.metrics = metrics
		}
	}
}

// NewManager constructs a Manager over the record store and exchanger.
func NewManager(records *RecordStore, exchanger TokenExchanger, options ...ManagerOption) *Manager {
	manager := &Manager{
		records:   records,
		exchanger: exchanger,
		clock:     NewSystemClock(),
		margin:    DefaultExpiryMargin,
		logger:    zap.NewNop(),
		metrics:   nopMetrics{},
	}
	for _, option := range options {
		option(manager)
	}
	return manager
}

// AccessToken returns a valid access token for athleteID. It fails with
// ErrNotAuthorized when the athlete never completed authorization.
func (manager *Manager) AccessToken(ctx context.Context, athleteID string) (string, error) {
	record, err := manager.records.Load(ctx, athleteID)
	if err != nil {
		return "", err
	}
	if record.ValidAt(manager.clock.Now(), manager.margin) {
		manager.metrics.Increment(EventCacheHit)
		return record.AccessToken, nil
	}

	result, refreshErr, shared := manager.refreshGroup.Do(athleteID, func() (interface{}, error) {
		// Joined callers share this flight; one caller going away must not fail the others.
		flightContext := context.WithoutCancel(ctx)
		current, loadErr := manager.records.Load(flightContext, athleteID)
		if loadErr != nil {
			return nil, loadErr
		}
		// A flight that finished since the first Load already rotated the refresh token.
		if current.ValidAt(manager.clock.Now(), manager.margin) {
			manager.metrics.Increment(EventCacheHit)
			return current, nil
		}
		return manager.refresh(flightContext, current)
	})
	if refreshErr != nil {
		return "", refreshErr
	}
	refreshed, ok := result.(TokenRecord)
	if !ok {
		return "", errNilRefreshResult
	}
	if shared {
		manager.logger.Debug("shared token refresh", zap.String("athlete_id", athleteID))
	}
	return refreshed.AccessToken, nil
}

func (manager *Manager) refresh(ctx context.Context, stale TokenRecord) (TokenRecord, error) {
	refreshed, err := manager.exchanger.Exchange(ctx, ExchangeRequest{
		GrantType:    GrantRefreshToken,
		RefreshToken: stale.RefreshToken,
		AthleteID:    stale.AthleteID,
	})
	if err != nil {
		manager.metrics.Increment(EventRefreshFailed)
		manager.logger.Warn("token refresh failed",
			zap.String("code", "token.refresh.failed"),
			zap.String("athlete_id", stale.AthleteID),
			zap.Error(err))
		return TokenRecord{}, err
	}
	refreshed.AthleteID = stale.AthleteID
	if saveErr := manager.records.Save(ctx, refreshed); saveErr != nil {
		manager.metrics.Increment(EventRefreshFailed)
		manager.logger.Error("refreshed token not persisted",
			zap.String("code", "token.refresh.persist_failed"),
			zap.String("athlete_id", stale.AthleteID),
			zap.Error(saveErr))
		return TokenRecord{}, saveErr
	}
	manager.metrics.Increment(EventRefreshed)
	manager.logger.Info("token refreshed",
		zap.String("athlete_id", refreshed.AthleteID),
		zap.Int64("expires_at", refreshed.ExpiresAt))
	return refreshed, nil
}

// Authorize completes the authorization-code flow and persists the resulting record
// under the athlete id reported by the provider.
func (manager *Manager) Authorize(ctx context.Context, code string) (TokenRecord, error) {
	record, err := manager.exchanger.Exchange(ctx, ExchangeRequest{
		GrantType: GrantAuthorizationCode,
		Code:      code,
	})
	if err != nil {
		manager.metrics.Increment(EventAuthorizeFailed)
		return TokenRecord{}, err
	}
	if saveErr := manager.records.Save(ctx, record); saveErr != nil {
		manager.metrics.Increment(EventAuthorizeFailed)
		return TokenRecord{}, saveErr
	}
	manager.metrics.Increment(EventAuthorized)
	manager.logger.Info("athlete authorized",
		zap.String("athlete_id", record.AthleteID),
		zap.Int64("expires_at", record.ExpiresAt))
	return record, nil
}
