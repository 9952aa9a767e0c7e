package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/verdict/internal/domain"
	"github.com/vadiminshakov/verdict/internal/storage/performance"
)

type fakeView struct{}

func (fakeView) Live() string        { return "baseline" }
func (fakeView) Allocation() float64 { return 0.5 }

func (fakeView) Accounts() map[string]domain.AccountState {
	return map[string]domain.AccountState{"baseline": {Mode: domain.ModeNormal}}
}

func (fakeView) Leaderboard() []performance.Stats {
	return []performance.Stats{{Config: "baseline", Resolved: 10, Wins: 6}}
}

type fakeControl struct {
	mode domain.Mode
}

func (f *fakeControl) Halt(string) error {
	f.mode = domain.ModeHalted
	return nil
}

func (f *fakeControl) Resume() error {
	f.mode = domain.ModeNormal
	return nil
}

func (f *fakeControl) Mode() domain.Mode { return f.mode }

func newTestServer() (*Server, *fakeControl) {
	control := &fakeControl{mode: domain.ModeNormal}
	return NewServer(":0", fakeView{}, control, nil, nil), control
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"live":"baseline"`)
	require.Contains(t, rec.Body.String(), `"allocation":0.5`)
}

func TestModeChangeRequiresConfirmation(t *testing.T) {
	s, control := newTestServer()

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"mode":"halted"}`)
	s.handleMode(rec, httptest.NewRequest(http.MethodPost, "/mode", body))
	require.Equal(t, http.StatusPreconditionRequired, rec.Code)
	require.Equal(t, domain.ModeNormal, control.mode, "unconfirmed request must not change anything")

	rec = httptest.NewRecorder()
	body = strings.NewReader(`{"mode":"halted","confirm":true,"reason":"maintenance"}`)
	s.handleMode(rec, httptest.NewRequest(http.MethodPost, "/mode", body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.ModeHalted, control.mode)
}

func TestModeChangeRejectsDerivedModes(t *testing.T) {
	s, control := newTestServer()

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"mode":"defensive","confirm":true}`)
	s.handleMode(rec, httptest.NewRequest(http.MethodPost, "/mode", body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, domain.ModeNormal, control.mode)
}

func TestHaltAndResume(t *testing.T) {
	s, control := newTestServer()

	rec := httptest.NewRecorder()
	s.handleHalt(rec, httptest.NewRequest(http.MethodPost, "/halt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.ModeHalted, control.mode)

	rec = httptest.NewRecorder()
	s.handleResume(rec, httptest.NewRequest(http.MethodPost, "/resume", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.ModeNormal, control.mode)
}

func TestLeaderboardEndpoint(t *testing.T) {
	s, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.handleLeaderboard(rec, httptest.NewRequest(http.MethodGet, "/leaderboard", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"config":"baseline"`)
}
