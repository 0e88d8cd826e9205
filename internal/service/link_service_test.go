package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/notilink/notilink/internal/config"
	"github.com/notilink/notilink/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerificationStore struct {
	mu        sync.Mutex
	items     map[string]models.VerificationRequest
	insertErr error
	findErr   error
	deleteErr error
}

func newFakeVerificationStore() *fakeVerificationStore {
	return &fakeVerificationStore{items: make(map[string]models.VerificationRequest)}
}

func (f *fakeVerificationStore) Insert(_ context.Context, req models.VerificationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.items[req.Nonce] = req
	return nil
}

func (f *fakeVerificationStore) Find(_ context.Context, nonce, userID string) (*models.VerificationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	req, ok := f.items[nonce]
	if !ok || req.UserID != userID {
		return nil, nil
	}
	return &req, nil
}

func (f *fakeVerificationStore) Delete(_ context.Context, nonce string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.items, nonce)
	return nil
}

func (f *fakeVerificationStore) ListExpired(_ context.Context, now time.Time) ([]models.VerificationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var expired []models.VerificationRequest
	for _, req := range f.items {
		if req.Expired(now) {
			expired = append(expired, req)
		}
	}
	return expired, nil
}

type fakeConfirmationStore struct {
	mu    sync.Mutex
	links []models.ConfirmedChannelLink
	err   error
}

func (f *fakeConfirmationStore) Insert(_ context.Context, link models.ConfirmedChannelLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.links = append(f.links, link)
	return nil
}

func (f *fakeConfirmationStore) FindRecent(_ context.Context, userID string, since time.Time) (*models.ConfirmedChannelLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var best *models.ConfirmedChannelLink
	for i := range f.links {
		link := f.links[i]
		if link.UserID != userID || link.VerifiedAt.Before(since) {
			continue
		}
		if best == nil || link.VerifiedAt.After(best.VerifiedAt) {
			best = &link
		}
	}
	return best, nil
}

type denyLimiter struct{}

func (denyLimiter) AllowStart(context.Context, string) bool { return false }

func testLinkConfig() *config.LinkConfig {
	return &config.LinkConfig{
		VerifyExpiry:  5 * time.Minute,
		TelegramBot:   "notilink_bot",
		WhatsAppPhone: "15550001234",
	}
}

func newTestLinkService(t *testing.T) (*LinkService, *fakeVerificationStore, *fakeConfirmationStore) {
	t.Helper()
	verifications := newFakeVerificationStore()
	confirmations := &fakeConfirmationStore{}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	svc := NewLinkService(verifications, confirmations, nil, testLinkConfig(), logger)
	return svc, verifications, confirmations
}

func TestStartIssuesFreshNonce(t *testing.T) {
	svc, verifications, _ := newTestLinkService(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for _, channel := range []models.ChannelKind{models.ChannelTelegram, models.ChannelWhatsApp} {
		result, err := svc.Start(ctx, "user-1", channel)
		require.NoError(t, err)
		require.NotEmpty(t, result.Nonce)
		assert.False(t, seen[result.Nonce], "nonce %q issued twice", result.Nonce)
		seen[result.Nonce] = true

		assert.Equal(t, "/link "+result.Nonce, result.Command)
		assert.Contains(t, result.DeepLink, result.Nonce)

		stored, err := verifications.Find(ctx, result.Nonce, "user-1")
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, channel, stored.Channel)
	}
}

func TestStartDeepLinkFormats(t *testing.T) {
	svc, _, _ := newTestLinkService(t)
	ctx := context.Background()

	tg, err := svc.Start(ctx, "user-1", models.ChannelTelegram)
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/notilink_bot?start=link_"+tg.Nonce, tg.DeepLink)

	wa, err := svc.Start(ctx, "user-1", models.ChannelWhatsApp)
	require.NoError(t, err)
	assert.Equal(t, "https://wa.me/15550001234?text=%2Flink%20"+wa.Nonce, wa.DeepLink)
}

func TestStartRejectsUnknownChannel(t *testing.T) {
	svc, verifications, _ := newTestLinkService(t)

	_, err := svc.Start(context.Background(), "user-1", models.ChannelKind("sms"))
	require.ErrorIs(t, err, ErrInvalidChannel)
	assert.Empty(t, verifications.items)
}

func TestStartRateLimited(t *testing.T) {
	svc, _, _ := newTestLinkService(t)
	svc.limiter = denyLimiter{}

	_, err := svc.Start(context.Background(), "user-1", models.ChannelTelegram)
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestStartStoreFailure(t *testing.T) {
	svc, verifications, _ := newTestLinkService(t)
	verifications.insertErr = errors.New("dynamo down")

	_, err := svc.Start(context.Background(), "user-1", models.ChannelTelegram)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidChannel)
}

func TestStatusPendingBeforeConfirmation(t *testing.T) {
	svc, _, _ := newTestLinkService(t)
	ctx := context.Background()

	start, err := svc.Start(ctx, "user-1", models.ChannelTelegram)
	require.NoError(t, err)

	status, err := svc.Status(ctx, "user-1", start.Nonce)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status.Status)
	assert.Empty(t, status.Link)
}

func TestStatusExpiredCleansUpLazily(t *testing.T) {
	svc, verifications, _ := newTestLinkService(t)
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }

	start, err := svc.Start(ctx, "user-1", models.ChannelTelegram)
	require.NoError(t, err)

	// Jump past the 300s window
	svc.now = func() time.Time { return base.Add(301 * time.Second) }

	status, err := svc.Status(ctx, "user-1", start.Nonce)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, status.Status)
	assert.Empty(t, verifications.items, "expired row must be removed")

	// Second poll finds no request row and falls through to pending
	status, err = svc.Status(ctx, "user-1", start.Nonce)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status.Status)
}

func TestStatusDoneWithMatchingChannel(t *testing.T) {
	svc, _, confirmations := newTestLinkService(t)
	ctx := context.Background()

	start, err := svc.Start(ctx, "user-1", models.ChannelTelegram)
	require.NoError(t, err)

	require.NoError(t, confirmations.Insert(ctx, models.ConfirmedChannelLink{
		UserID:     "user-1",
		Channel:    models.ChannelTelegram,
		Link:       "@alice",
		VerifiedAt: time.Now(),
	}))

	status, err := svc.Status(ctx, "user-1", start.Nonce)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, status.Status)
	assert.Equal(t, "@alice", status.Link)
}

func TestStatusDoneAfterRequestConsumed(t *testing.T) {
	// The bot may delete the verification row before the client polls;
	// a fresh confirmation alone must still resolve done.
	svc, _, confirmations := newTestLinkService(t)
	ctx := context.Background()

	require.NoError(t, confirmations.Insert(ctx, models.ConfirmedChannelLink{
		UserID:     "user-1",
		Channel:    models.ChannelWhatsApp,
		Link:       "+15550009999",
		VerifiedAt: time.Now(),
	}))

	status, err := svc.Status(ctx, "user-1", "consumed-nonce")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, status.Status)
	assert.Equal(t, "+15550009999", status.Link)
}

func TestStatusIgnoresStaleConfirmation(t *testing.T) {
	svc, _, confirmations := newTestLinkService(t)
	ctx := context.Background()

	start, err := svc.Start(ctx, "user-1", models.ChannelTelegram)
	require.NoError(t, err)

	require.NoError(t, confirmations.Insert(ctx, models.ConfirmedChannelLink{
		UserID:     "user-1",
		Channel:    models.ChannelTelegram,
		Link:       "@alice",
		VerifiedAt: time.Now().Add(-6 * time.Minute),
	}))

	status, err := svc.Status(ctx, "user-1", start.Nonce)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status.Status)
}

func TestStatusIgnoresChannelMismatch(t *testing.T) {
	svc, _, confirmations := newTestLinkService(t)
	ctx := context.Background()

	start, err := svc.Start(ctx, "user-1", models.ChannelTelegram)
	require.NoError(t, err)

	require.NoError(t, confirmations.Insert(ctx, models.ConfirmedChannelLink{
		UserID:     "user-1",
		Channel:    models.ChannelWhatsApp,
		Link:       "+15550009999",
		VerifiedAt: time.Now(),
	}))

	status, err := svc.Status(ctx, "user-1", start.Nonce)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status.Status)
}

func TestStatusHonorsNonceCorrelation(t *testing.T) {
	// A confirmation that names a nonce only completes that attempt.
	svc, _, confirmations := newTestLinkService(t)
	ctx := context.Background()

	first, err := svc.Start(ctx, "user-1", models.ChannelTelegram)
	require.NoError(t, err)
	second, err := svc.Start(ctx, "user-1", models.ChannelTelegram)
	require.NoError(t, err)

	require.NoError(t, confirmations.Insert(ctx, models.ConfirmedChannelLink{
		UserID:     "user-1",
		Channel:    models.ChannelTelegram,
		Link:       "@alice",
		Nonce:      first.Nonce,
		VerifiedAt: time.Now(),
	}))

	status, err := svc.Status(ctx, "user-1", second.Nonce)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status.Status)

	status, err = svc.Status(ctx, "user-1", first.Nonce)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, status.Status)
}

func TestStatusScopedToUser(t *testing.T) {
	svc, _, confirmations := newTestLinkService(t)
	ctx := context.Background()

	start, err := svc.Start(ctx, "user-1", models.ChannelTelegram)
	require.NoError(t, err)

	require.NoError(t, confirmations.Insert(ctx, models.ConfirmedChannelLink{
		UserID:     "user-2",
		Channel:    models.ChannelTelegram,
		Link:       "@mallory",
		VerifiedAt: time.Now(),
	}))

	// user-1 polling their own nonce must not see user-2's confirmation
	status, err := svc.Status(ctx, "user-1", start.Nonce)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status.Status)

	// user-2 polling user-1's nonce sees no request row and only their own links
	status, err = svc.Status(ctx, "user-2", start.Nonce)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, status.Status)
	assert.Equal(t, "@mallory", status.Link)
}

func TestStatusStoreFailure(t *testing.T) {
	svc, verifications, _ := newTestLinkService(t)
	verifications.findErr = errors.New("dynamo down")

	_, err := svc.Status(context.Background(), "user-1", "some-nonce")
	require.Error(t, err)
}

func TestConfirmConsumesVerification(t *testing.T) {
	svc, verifications, confirmations := newTestLinkService(t)
	ctx := context.Background()

	start, err := svc.Start(ctx, "user-1", models.ChannelTelegram)
	require.NoError(t, err)

	err = svc.Confirm(ctx, ConfirmInput{
		UserID:  "user-1",
		Channel: models.ChannelTelegram,
		Link:    "@alice",
		Nonce:   start.Nonce,
	})
	require.NoError(t, err)

	assert.Empty(t, verifications.items, "verification row must be consumed")
	require.Len(t, confirmations.links, 1)
	assert.Equal(t, start.Nonce, confirmations.links[0].Nonce)

	status, err := svc.Status(ctx, "user-1", start.Nonce)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, status.Status)
	assert.Equal(t, "@alice", status.Link)
}

func TestConfirmRejectsUnknownChannel(t *testing.T) {
	svc, _, confirmations := newTestLinkService(t)

	err := svc.Confirm(context.Background(), ConfirmInput{
		UserID:  "user-1",
		Channel: models.ChannelKind("sms"),
		Link:    "+15550009999",
	})
	require.ErrorIs(t, err, ErrInvalidChannel)
	assert.Empty(t, confirmations.links)
}
