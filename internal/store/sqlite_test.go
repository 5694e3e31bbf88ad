package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/store"
	"github.com/nhle/portal-notify/tests/testutil"
)

func sample(id string, at time.Time) model.Notification {
	return model.Notification{
		ID:            id,
		Type:          model.TypeCustomerSignedContract,
		Title:         "Signed",
		Message:       "contract " + id,
		ContractID:    "42",
		ReferenceType: "CONTRACT",
		Timestamp:     at,
		Status:        model.StatusHiddenUnread,
		Source:        model.SourceHistory,
		Synced:        true,
	}
}

func TestSaveAndLoadKeepsOrder(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	now := time.Now()

	list := []model.Notification{
		sample("3", now),
		sample("1", now.Add(-time.Hour)),
		sample("notif_x", now.Add(-2*time.Hour)),
	}
	list[2].Source = model.SourceLocal
	list[2].Synced = false
	list[1].Status = model.StatusRead

	require.NoError(t, s.SaveNotifications(ctx, list))

	got, err := s.LoadNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range list {
		assert.Equal(t, list[i].ID, got[i].ID)
		assert.Equal(t, list[i].Status, got[i].Status)
		assert.Equal(t, list[i].Source, got[i].Source)
		assert.Equal(t, list[i].Synced, got[i].Synced)
		assert.Equal(t, list[i].ContractID, got[i].ContractID)
		assert.True(t, list[i].Timestamp.Equal(got[i].Timestamp))
	}
}

func TestSaveReplacesPreviousList(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveNotifications(ctx, []model.Notification{sample("a", time.Now()), sample("b", time.Now())}))
	require.NoError(t, s.SaveNotifications(ctx, []model.Notification{sample("c", time.Now())}))

	got, err := s.LoadNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)
}

func TestSaveCapsAtMax(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	var list []model.Notification
	for i := 0; i < store.MaxNotifications+20; i++ {
		list = append(list, sample(fmt.Sprintf("%d", i), time.Now()))
	}
	require.NoError(t, s.SaveNotifications(ctx, list))

	got, err := s.LoadNotifications(ctx)
	require.NoError(t, err)
	assert.Len(t, got, store.MaxNotifications)
	assert.Equal(t, "0", got[0].ID)
}

func TestClearNotifications(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveNotifications(ctx, []model.Notification{sample("a", time.Now())}))
	require.NoError(t, s.ClearNotifications(ctx))

	got, err := s.LoadNotifications(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMeta(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetMeta(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMeta(ctx, store.MetaUnreadCount, "3"))
	require.NoError(t, s.SetMeta(ctx, store.MetaUnreadCount, "4"))
	v, ok, err := s.GetMeta(ctx, store.MetaUnreadCount)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "4", v)

	_, ok, err = s.LastRealtimeEvent(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2025, 11, 10, 9, 0, 0, 123, time.UTC)
	require.NoError(t, s.SetLastRealtimeEvent(ctx, at))
	got, ok, err := s.LastRealtimeEvent(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, at.Equal(got))
}

func TestReopenFileStoreSkipsAppliedMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "notifications.db")

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveNotifications(context.Background(), []model.Notification{sample("a", time.Now())}))
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.LoadNotifications(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
