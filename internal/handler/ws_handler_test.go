package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/scoring"
)

func dialStream(t *testing.T, e *env) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/exams/7/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStream_SubmitAcceptsNumericAnswers(t *testing.T) {
	e := newEnv(t, studentClaims(studentID))
	e.startAttempt(t)
	conn := dialStream(t, e)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"action":"submit","answers":{"501":51,"502":"x","503":null}}`)))

	msg := readEvent(t, conn)
	assert.Equal(t, "completed", msg["event"])
	assert.Equal(t, ScorePath(testExamID, studentID), msg["redirect"])
	assert.EqualValues(t, 1, msg["score"])

	a, err := e.attempts.GetByExamAndUser(context.Background(), testExamID, studentID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptCompleted, a.Status)
	assert.Equal(t, 1, scoring.Score(a.Choices))
}

func TestStream_SubmitMixedAnswersKeepsValidEntries(t *testing.T) {
	e := newEnv(t, studentClaims(studentID))
	e.startAttempt(t)
	conn := dialStream(t, e)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"action":"submit","answers":{"501":"51","502":62,"x":"1","503":[1]}}`)))

	msg := readEvent(t, conn)
	assert.Equal(t, "completed", msg["event"])
	assert.EqualValues(t, 2, msg["score"])
}

func TestStream_ViolationAfterAttemptEndedClosesStream(t *testing.T) {
	e := newEnv(t, studentClaims(studentID))
	e.startAttempt(t)
	conn := dialStream(t, e)

	_, err := e.svc.Terminate(context.Background(), studentClaims(studentID).Actor(), testExamID, "ended on another device")
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "violation", "signal": "focus_lost"}))

	msg := readEvent(t, conn)
	assert.Equal(t, "violation", msg["event"])
	assert.Equal(t, "ignored", msg["action"])

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "stream closes, got %v", err)
}
