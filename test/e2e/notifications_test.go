package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-bot/tarsy/pkg/config"
	"github.com/tarsy-bot/tarsy/pkg/events"
	"github.com/tarsy-bot/tarsy/pkg/models"
	tarsyslack "github.com/tarsy-bot/tarsy/pkg/slack"
)

// slackCapture records chat.postMessage payloads hitting the mock API.
type slackCapture struct {
	mu       sync.Mutex
	messages []string
}

func (s *slackCapture) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		s.mu.Lock()
		s.messages = append(s.messages, r.FormValue("blocks"))
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true, "channel": "C123", "ts": "1.0"}`))
	})
}

func (s *slackCapture) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func TestNotifications_SlackMessageOnCompletion(t *testing.T) {
	capture := &slackCapture{}
	mockAPI := httptest.NewServer(capture.handler())
	t.Cleanup(mockAPI.Close)

	slackClient := tarsyslack.NewClientWithAPIURL("xoxb-test", "C123", mockAPI.URL+"/")
	slackService := tarsyslack.NewServiceWithClient(slackClient, "https://tarsy.example.com")

	llmScript := NewScriptedLLMClient()
	llmScript.AddSequential(LLMScriptEntry{Text: reactAnswer("Node disk pressure caused evictions.")})

	app := NewTestApp(t,
		WithConfig(SingleStageTestConfig(t, config.IterationStrategyReact, 3)),
		WithLLM(llmScript),
		WithMCPServers(kubernetesTools()),
		WithSlackService(slackService),
	)

	timeline := app.ProcessAlert(t, DefaultAlert())
	require.Equal(t, models.SessionStatusCompleted, timeline.Session.Status)

	// The notifier posts asynchronously off the hook bus.
	require.Eventually(t, func() bool {
		return len(capture.all()) == 1
	}, 10*time.Second, 50*time.Millisecond, "Slack message never arrived")

	posted := capture.all()[0]
	assert.Contains(t, posted, "Analysis Complete")
	assert.Contains(t, posted, "kubernetes-chain")
	assert.Contains(t, posted, "sessions/"+timeline.Session.SessionID)
}

func TestNotifications_SlackMessageOnFailure(t *testing.T) {
	capture := &slackCapture{}
	mockAPI := httptest.NewServer(capture.handler())
	t.Cleanup(mockAPI.Close)

	slackClient := tarsyslack.NewClientWithAPIURL("xoxb-test", "C123", mockAPI.URL+"/")
	slackService := tarsyslack.NewServiceWithClient(slackClient, "https://tarsy.example.com")

	app := NewTestApp(t,
		WithConfig(SingleStageTestConfig(t, config.IterationStrategyReactFinalAnalysis, 3)),
		WithSlackService(slackService),
	)

	timeline := app.ProcessAlert(t, DefaultAlert())
	require.Equal(t, models.SessionStatusFailed, timeline.Session.Status)

	require.Eventually(t, func() bool {
		return len(capture.all()) == 1
	}, 10*time.Second, 50*time.Millisecond, "Slack message never arrived")
	assert.Contains(t, capture.all()[0], "Analysis Failed")
}

// dialDashboard connects to the dashboard WebSocket and subscribes to the
// given channel, consuming the handshake messages.
func dialDashboard(t *testing.T, app *TestApp, channel string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, app.WSURL+"/ws/dashboard/e2e-user", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })

	welcome := readWSMessage(t, conn)
	require.Equal(t, events.MessageTypeConnectionEstablished, welcome["type"])

	sub, err := json.Marshal(events.ClientMessage{Type: "subscribe", Channel: channel})
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, sub))

	confirmed := readWSMessage(t, conn)
	require.Equal(t, events.MessageTypeSubscriptionConfirmed, confirmed["type"])
	require.Equal(t, channel, confirmed["channel"])

	return conn
}

func readWSMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestNotifications_DashboardReceivesSessionLifecycle(t *testing.T) {
	llmScript := NewScriptedLLMClient()
	llmScript.AddSequential(LLMScriptEntry{Text: reactAnswer("Done.")})

	app := NewTestApp(t,
		WithConfig(SingleStageTestConfig(t, config.IterationStrategyReact, 3)),
		WithLLM(llmScript),
		WithMCPServers(kubernetesTools()),
	)

	conn := dialDashboard(t, app, events.DashboardChannel)

	timeline := app.ProcessAlert(t, DefaultAlert())
	require.Equal(t, models.SessionStatusCompleted, timeline.Session.Status)

	// Drain until the terminal session event shows up; intermediate stage
	// and LLM updates arrive first.
	sawCompleted := false
	for i := 0; i < 50 && !sawCompleted; i++ {
		msg := readWSMessage(t, conn)
		assert.Equal(t, events.MessageTypeDashboardUpdate, msg["type"])
		if msg["session_id"] == timeline.Session.SessionID && msg["status"] == "completed" {
			sawCompleted = true
		}
	}
	assert.True(t, sawCompleted, "never saw the completed session on the dashboard channel")
}

func TestNotifications_SessionChannelCarriesStageDetail(t *testing.T) {
	llmScript := NewScriptedLLMClient()

	release := make(chan struct{})
	blocked := make(chan struct{}, 1)
	llmScript.AddSequential(LLMScriptEntry{
		Text:    reactAnswer("Done."),
		WaitCh:  release,
		OnBlock: blocked,
	})

	app := NewTestApp(t,
		WithConfig(SingleStageTestConfig(t, config.IterationStrategyReact, 3)),
		WithLLM(llmScript),
		WithMCPServers(kubernetesTools()),
	)

	submitted := app.SubmitAlert(t, DefaultAlert())
	sessionID := app.SessionIDForAlert(t, submitted.AlertID)

	// Subscribe while the session is parked inside its first model call so
	// no stage events are missed.
	select {
	case <-blocked:
	case <-time.After(10 * time.Second):
		t.Fatal("session never reached the model")
	}
	conn := dialDashboard(t, app, events.SessionChannel(sessionID))
	close(release)

	timeline := app.WaitForSessionTerminal(t, sessionID)
	require.Equal(t, models.SessionStatusCompleted, timeline.Session.Status)

	sawLLM := false
	for i := 0; i < 50 && !sawLLM; i++ {
		msg := readWSMessage(t, conn)
		assert.Equal(t, events.MessageTypeSessionUpdate, msg["type"])
		assert.Equal(t, sessionID, msg["session_id"])
		if msg["event"] == "llm.post" {
			sawLLM = true
		}
	}
	assert.True(t, sawLLM, "never saw an llm.post update on the session channel")
}
