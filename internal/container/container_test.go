package container

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/snapgram/internal/auth"
	"github.com/zfogg/snapgram/internal/cluster"
	"github.com/zfogg/snapgram/internal/database"
	"github.com/zfogg/snapgram/internal/websocket"
)

func TestValidateReportsMissing(t *testing.T) {
	err := New().Validate()
	require.Error(t, err)

	var initErr *InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.Len(t, initErr.MissingDeps, 4)
	assert.Contains(t, err.Error(), "realtime hub")
}

func TestValidateComplete(t *testing.T) {
	db, err := database.Open(database.Options{Driver: "sqlite"})
	require.NoError(t, err)
	defer database.Close(db)

	svc := auth.NewService(db, []byte("secret"), time.Hour)
	broker := cluster.NewBus().Broker()
	hub := websocket.NewHub(websocket.HubConfig{Broker: broker})

	c := New().
		WithDB(db).
		WithAuthService(svc).
		WithBroker(broker).
		WithHub(hub).
		WithWebSocketHandler(websocket.NewHandler(hub, svc, websocket.HandlerConfig{}))

	assert.NoError(t, c.Validate())
	assert.Same(t, hub, c.Hub())
	assert.Same(t, svc, c.Auth())
	assert.Equal(t, cluster.Broker(broker), c.Broker())
	assert.Nil(t, c.Cache())
	assert.NotNil(t, c.Logger())
}

func TestCleanupRunsInReverseOrder(t *testing.T) {
	var order []string
	boom := errors.New("boom")

	c := New().
		OnCleanup("first", func(context.Context) error {
			order = append(order, "first")
			return nil
		}).
		OnCleanup("second", func(context.Context) error {
			order = append(order, "second")
			return boom
		}).
		OnCleanup("third", func(context.Context) error {
			order = append(order, "third")
			return nil
		})

	err := c.Cleanup(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"third", "second", "first"}, order)

	// hooks run once
	assert.NoError(t, c.Cleanup(context.Background()))
	assert.Len(t, order, 3)
}
