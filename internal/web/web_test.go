package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelseq/internal/config"
	"panelseq/internal/control"
	"panelseq/internal/panel"
	"panelseq/internal/schedule"
	"panelseq/internal/sim"
)

type instant struct{ now time.Time }

func (c *instant) Now() time.Time        { return c.now }
func (c *instant) Sleep(d time.Duration) { c.now = c.now.Add(d) }

func newTestServer(t *testing.T, cfg *config.Config) (*httptest.Server, *Server, *sim.Sim) {
	t.Helper()
	board, err := sim.New(cfg.Panel)
	require.NoError(t, err)
	p, err := panel.Attach(panel.AttachConfig{
		Source:  board,
		Channel: board.Channel(),
		Host:    board,
		Clock:   &instant{},
	})
	require.NoError(t, err)

	ctl := control.New(p)
	sched, err := schedule.New(time.UTC, config.ScheduleConfig{PowerOn: "0 7 * * *"}, ctl)
	require.NoError(t, err)

	s := NewServer(cfg, ctl, sched)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return ts, s, board
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func post(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t, config.DefaultConfig())
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPrepareUnprepare(t *testing.T) {
	ts, _, board := newTestServer(t, config.DefaultConfig())

	var st control.Status
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/panel", &st))
	assert.Equal(t, "unprepared", st.State)
	assert.Equal(t, panel.Compatible, st.Compatible)
	assert.Equal(t, "1152x1920", st.Mode)

	var errBody map[string]string
	assert.Equal(t, http.StatusConflict, getJSON(t, ts.URL+"/api/panel/brightness", &errBody))

	require.Equal(t, http.StatusOK, post(t, ts.URL+"/api/panel/prepare", &st))
	assert.Equal(t, "prepared", st.State)
	assert.True(t, board.Device.State().DisplayOn)

	var br brightnessResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/panel/brightness", &br))
	assert.Equal(t, uint16(0xFF), br.Brightness)

	require.Equal(t, http.StatusOK, post(t, ts.URL+"/api/panel/unprepare", &st))
	assert.Equal(t, "unprepared", st.State)
	assert.Equal(t, uint64(1), st.Prepares)
	assert.Equal(t, uint64(1), st.Unprepares)
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _, _ := newTestServer(t, config.DefaultConfig())

	resp, err := http.Get(ts.URL + "/api/panel/prepare")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))

	assert.Equal(t, http.StatusMethodNotAllowed, post(t, ts.URL+"/api/panel", nil))
}

func TestModes(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Panel.Orientation = "upside_down"
	ts, _, _ := newTestServer(t, cfg)

	var raw map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/panel/modes", &raw))
	assert.Equal(t, "upside_down", raw["orientation"])
	assert.Equal(t, float64(70), raw["width_mm"])
	assert.Equal(t, float64(117), raw["height_mm"])

	modes := raw["modes"].([]any)
	require.Len(t, modes, 1)
	m := modes[0].(map[string]any)
	assert.Equal(t, "1152x1920", m["name"])
	assert.Equal(t, float64(149113), m["clock_khz"])
}

func TestSchedule(t *testing.T) {
	ts, _, _ := newTestServer(t, config.DefaultConfig())
	var entries []schedule.Entry
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/schedule", &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, schedule.PowerOn, entries[0].Name)
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "s3cret"}
	ts, _, _ := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/panel")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/panel", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventStream(t *testing.T) {
	ts, s, _ := newTestServer(t, config.DefaultConfig())

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/panel/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first wsMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "status", first.Type)
	require.NotNil(t, first.Status)
	assert.Equal(t, "unprepared", first.Status.State)

	// The subscription is registered before the snapshot is sent.
	require.Equal(t, http.StatusOK, post(t, ts.URL+"/api/panel/prepare", nil))

	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, control.EventPrepared, msg.Event.Kind)
	assert.Equal(t, Source, msg.Event.Source)

	s.Close()
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
