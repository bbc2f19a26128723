package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/buildflow/site-client/internal/config"
	"github.com/buildflow/site-client/internal/domain"
	"github.com/buildflow/site-client/internal/observability"
	util "github.com/buildflow/site-client/pkg/util"
)

func startHub(t *testing.T) (*Hub, *Channel) {
	t.Helper()

	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub.Handler(nil))
	t.Cleanup(srv.Close)

	cfg := config.RealtimeConfig{
		URL:                     "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		Origin:                  srv.URL,
		HandshakeTimeoutSeconds: 2,
		MaxReconnectAttempts:    5,
	}
	channel := NewChannel(cfg, func() string { return "test-token" }, zap.NewNop(), observability.NewMetrics())
	t.Cleanup(channel.Disconnect)
	return hub, channel
}

func waitGroupSize(t *testing.T, hub *Hub, userID string, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.GroupSize(userID) == want
	}, 3*time.Second, 10*time.Millisecond, "group %s never reached size %d", userID, want)
}

func TestConnectJoinsUserGroup(t *testing.T) {
	hub, channel := startHub(t)

	require.NoError(t, channel.Connect(context.Background(), "u1"))
	waitGroupSize(t, hub, "u1", 1)
	assert.Equal(t, 1, hub.JoinCount("u1"))
	assert.Equal(t, domain.ChannelConnected, channel.State())
}

func TestConnectIsIdempotentWhileConnected(t *testing.T) {
	hub, channel := startHub(t)
	ctx := context.Background()

	require.NoError(t, channel.Connect(ctx, "u1"))
	waitGroupSize(t, hub, "u1", 1)

	require.NoError(t, channel.Connect(ctx, "u1"))
	require.NoError(t, channel.Connect(ctx, "u1"))

	// Still exactly one live connection and one JoinUserGroup invocation.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, hub.GroupSize("u1"))
	assert.Equal(t, 1, hub.JoinCount("u1"))
}

func TestConnectForNewUserClosesOldConnectionFirst(t *testing.T) {
	hub, channel := startHub(t)
	ctx := context.Background()

	require.NoError(t, channel.Connect(ctx, "u1"))
	waitGroupSize(t, hub, "u1", 1)

	require.NoError(t, channel.Connect(ctx, "u2"))
	waitGroupSize(t, hub, "u2", 1)
	waitGroupSize(t, hub, "u1", 0)
}

func TestDisconnectIsSafeWhenNotConnected(t *testing.T) {
	_, channel := startHub(t)
	channel.Disconnect()
	channel.Disconnect()
	assert.Equal(t, domain.ChannelDisconnected, channel.State())
}

func TestDisconnectLeavesGroup(t *testing.T) {
	hub, channel := startHub(t)

	require.NoError(t, channel.Connect(context.Background(), "u1"))
	waitGroupSize(t, hub, "u1", 1)

	channel.Disconnect()
	waitGroupSize(t, hub, "u1", 0)
	assert.Equal(t, domain.ChannelDisconnected, channel.State())
}

func TestPublishReachesSubscriber(t *testing.T) {
	hub, channel := startHub(t)

	received := make(chan domain.NotificationEvent, 1)
	sub := channel.Subscribe(EventReceiveNotification, func(ev Event) {
		var event domain.NotificationEvent
		if json.Unmarshal(ev.Payload, &event) == nil {
			received <- event
		}
	})
	defer sub.Cancel()

	require.NoError(t, channel.Connect(context.Background(), "u1"))
	waitGroupSize(t, hub, "u1", 1)

	delivered := hub.Publish("u1", EventReceiveNotification, domain.NotificationEvent{
		ID:    "n1",
		Type:  domain.NotificationProjectUpdate,
		Title: "Survey uploaded",
	})
	require.Equal(t, 1, delivered)

	select {
	case event := <-received:
		assert.Equal(t, "n1", event.ID)
		assert.Equal(t, domain.NotificationProjectUpdate, event.Type)
	case <-time.After(3 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestCancelledSubscriptionStopsDelivery(t *testing.T) {
	hub, channel := startHub(t)

	var calls atomic.Int32
	sub := channel.Subscribe("", func(Event) { calls.Add(1) })

	require.NoError(t, channel.Connect(context.Background(), "u1"))
	waitGroupSize(t, hub, "u1", 1)

	hub.Publish("u1", EventProjectUpdate, map[string]string{"project_id": "p1"})
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 3*time.Second, 10*time.Millisecond)

	sub.Cancel()
	hub.Publish("u1", EventProjectUpdate, map[string]string{"project_id": "p1"})
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestInitialConnectFailureSurfacesOnce(t *testing.T) {
	cfg := config.RealtimeConfig{
		URL:                     "ws://127.0.0.1:1/ws",
		Origin:                  "http://127.0.0.1:1",
		HandshakeTimeoutSeconds: 1,
	}
	channel := NewChannel(cfg, nil, zap.NewNop(), observability.NewMetrics())

	err := channel.Connect(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, util.IsChannelKind(err, util.ChannelConnectFailed))
	assert.Equal(t, domain.ChannelDisconnected, channel.State())
}

func TestInvokeWithoutConnection(t *testing.T) {
	_, channel := startHub(t)
	err := channel.Invoke(InvokeJoinUserGroup, JoinUserGroupPayload{UserID: "u1"})
	require.Error(t, err)
	assert.True(t, util.IsChannelKind(err, util.ChannelSendFailed))
}

func TestReconnectAfterServerDrop(t *testing.T) {
	if testing.Short() {
		t.Skip("reconnect backoff makes this test slow")
	}
	hub, channel := startHub(t)

	require.NoError(t, channel.Connect(context.Background(), "u1"))
	waitGroupSize(t, hub, "u1", 1)

	hub.CloseUser("u1")

	// The transport reconnects on its own and rejoins the user group.
	require.Eventually(t, func() bool {
		return hub.JoinCount("u1") == 2 && channel.State() == domain.ChannelConnected
	}, 10*time.Second, 50*time.Millisecond, "channel never reconnected")
	assert.Equal(t, 1, hub.GroupSize("u1"))
}
