package relay

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slskd/slskgo/pkg/security"
)

// dialHub opens a raw websocket to the controller hub and returns the
// challenge token it pushes.
func dialHub(t *testing.T, serverURL string) (*websocket.Conn, string) {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/network/hub"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	var e Envelope
	require.NoError(t, ws.ReadJSON(&e))
	assert.Equal(t, kindInvoke, e.Kind)
	require.Equal(t, methodChallenge, e.Method)

	var p challengePayload
	require.NoError(t, json.Unmarshal(e.Payload, &p))
	require.NotEmpty(t, p.Token)
	return ws, p.Token
}

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHubLogin(t *testing.T) {
	controller, server, _ := newTestController(t)
	ws, challenge := dialHub(t, server.URL)

	credential, err := security.ComputeCredential(testSecret, testAgent, challenge)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(Envelope{
		Seq:     1,
		Kind:    kindInvoke,
		Method:  methodLogin,
		Payload: rawJSON(t, loginPayload{Agent: testAgent, Credential: credential}),
	}))

	var result Envelope
	require.NoError(t, ws.ReadJSON(&result))
	assert.Equal(t, kindResult, result.Kind)
	assert.Equal(t, int64(1), result.Seq)
	assert.Empty(t, result.Error)

	agents := controller.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, testAgent, agents[0].Name)
}

func TestHubLoginBadCredential(t *testing.T) {
	controller, server, _ := newTestController(t)
	ws, _ := dialHub(t, server.URL)

	// A credential over anything but the live challenge fails.
	credential, err := security.ComputeCredential(testSecret, testAgent, "stale-token")
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(Envelope{
		Seq:     1,
		Kind:    kindInvoke,
		Method:  methodLogin,
		Payload: rawJSON(t, loginPayload{Agent: testAgent, Credential: credential}),
	}))

	var result Envelope
	require.NoError(t, ws.ReadJSON(&result))
	assert.Equal(t, kindResult, result.Kind)
	assert.NotEmpty(t, result.Error)
	assert.Empty(t, controller.Agents())

	// The controller hangs up after a rejected login.
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var next Envelope
	assert.Error(t, ws.ReadJSON(&next))
}

func TestHubUnknownAgentRejected(t *testing.T) {
	_, server, _ := newTestController(t)
	ws, challenge := dialHub(t, server.URL)

	credential, err := security.ComputeCredential("their-secret", "stranger", challenge)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(Envelope{
		Seq:     1,
		Kind:    kindInvoke,
		Method:  methodLogin,
		Payload: rawJSON(t, loginPayload{Agent: "stranger", Credential: credential}),
	}))

	var result Envelope
	require.NoError(t, ws.ReadJSON(&result))
	assert.NotEmpty(t, result.Error)
}

func TestHubShareGrantRequiresLogin(t *testing.T) {
	_, server, _ := newTestController(t)
	ws, _ := dialHub(t, server.URL)

	require.NoError(t, ws.WriteJSON(Envelope{
		Seq:    1,
		Kind:   kindInvoke,
		Method: methodBeginShareUpload,
	}))

	var result Envelope
	require.NoError(t, ws.ReadJSON(&result))
	assert.NotEmpty(t, result.Error)
}
