package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/fiffu/ttquick/lib"
	"github.com/fiffu/ttquick/lib/models"
	"github.com/fiffu/ttquick/lib/notifier"
	"github.com/fiffu/ttquick/lib/poller"
	"github.com/fiffu/ttquick/lib/registry"
	"github.com/fiffu/ttquick/lib/slotapi"
	"github.com/fiffu/ttquick/lib/testutil"
	"github.com/fiffu/ttquick/senders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type apiFixture struct {
	srv *httptest.Server
	db  *gorm.DB
}

// newAPIFixture wires the real stack against an in-memory database and a
// fake scheduler API serving slotsHandler.
func newAPIFixture(t *testing.T, slotsHandler http.HandlerFunc) *apiFixture {
	upstream := httptest.NewServer(slotsHandler)
	t.Cleanup(upstream.Close)

	cfg := testutil.NewConfig(t)
	cfg.SlotAPI.BaseURL = upstream.URL
	db := testutil.NewDB(t)
	log := zap.NewNop()
	lc := fxtest.NewLifecycle(t)

	transport := NewTransport(lc, cfg, log)
	sendersReg := senders.NewSenderRegistry(log, cfg, transport)
	reg := registry.NewRegistry(db, log)
	notif := notifier.NewNotifier(cfg, log, db, sendersReg)
	p, err := poller.NewPoller(lc, cfg, log, db, slotapi.NewClient(cfg, transport), reg, notif)
	require.NoError(t, err)
	svc := lib.NewService(cfg, log, db, sendersReg, reg, p)

	srv := httptest.NewServer(router(cfg, log, svc))
	t.Cleanup(srv.Close)
	return &apiFixture{srv, db}
}

func (f *apiFixture) do(t *testing.T, method, path string, form url.Values) (*http.Response, []byte) {
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.SetBasicAuth("admin", "password")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func noSlots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`[]`))
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, noSlots)

	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_RequiresAuth(t *testing.T) {
	f := newAPIFixture(t, noSlots)

	resp, err := http.Get(f.srv.URL + "/api/locations")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_SubscriptionLifecycle(t *testing.T) {
	f := newAPIFixture(t, noSlots)

	resp, body := f.do(t, http.MethodPost, "/api/users", url.Values{"id": {"u1"}, "email": {"sam@example.com"}, "display_name": {"Sam"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var user UserView
	require.NoError(t, json.Unmarshal(body, &user))
	assert.Equal(t, 10, user.NotificationsRemaining)

	resp, body = f.do(t, http.MethodPut, "/api/users/u1/locations/5140", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var sub SubscriptionView
	require.NoError(t, json.Unmarshal(body, &sub))
	assert.Equal(t, models.LocationID(5140), sub.LocationID)

	resp, body = f.do(t, http.MethodGet, "/api/users/u1/locations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var locs []LocationView
	require.NoError(t, json.Unmarshal(body, &locs))
	require.Len(t, locs, 1)
	assert.Equal(t, 1, locs[0].SubscriberCount)
	assert.Nil(t, locs[0].LastChecked)

	resp, _ = f.do(t, http.MethodDelete, "/api/users/u1/locations/5140", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/api/users/u1/locations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestAPI_StatusCodes(t *testing.T) {
	f := newAPIFixture(t, noSlots)
	require.NoError(t, f.db.Create(&models.Location{ID: 9, Name: "retired", Subscribers: models.StringSet{}}).Error)

	tests := []struct {
		name   string
		method string
		path   string
		form   url.Values
		want   int
	}{
		{"invalid location id", http.MethodPut, "/api/users/u1/locations/abc", nil, http.StatusBadRequest},
		{"non-positive location id", http.MethodPut, "/api/users/u1/locations/0", nil, http.StatusBadRequest},
		{"unknown user", http.MethodGet, "/api/users/ghost", nil, http.StatusNotFound},
		{"missing email", http.MethodPost, "/api/users", url.Values{"id": {"u1"}}, http.StatusBadRequest},
		{"blank user id", http.MethodPost, "/api/users", url.Values{"id": {" "}, "email": {"a@b.c"}}, http.StatusBadRequest},
		{"bad settings value", http.MethodPut, "/api/users/u1/settings", url.Values{"email_notifications": {"maybe"}}, http.StatusBadRequest},
		{"settings of unknown user", http.MethodPut, "/api/users/ghost/settings", url.Values{"email_notifications": {"false"}}, http.StatusNotFound},
		{"unknown notification", http.MethodPost, "/api/users/u1/notifications/nope/read", nil, http.StatusNotFound},
		{"no tick yet", http.MethodGet, "/api/status", nil, http.StatusNotFound},
		{"retired location", http.MethodPut, "/api/users/u1/locations/9", nil, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, tt.method, tt.path, tt.form)
			assert.Equal(t, tt.want, resp.StatusCode, string(body))
		})
	}
}

func TestAPI_TickNotifiesSubscribers(t *testing.T) {
	f := newAPIFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("locationId") != "5140" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"availableSlots":[{"locationId":5140,"startTimestamp":"2026-10-20T09:15","endTimestamp":"2026-10-20T09:30","duration":15,"active":true}]}`))
	})

	f.do(t, http.MethodPost, "/api/users", url.Values{"id": {"u1"}, "email": {"sam@example.com"}})
	f.do(t, http.MethodPut, "/api/users/u1/locations/5140", nil)
	f.do(t, http.MethodPut, "/api/users/u1/locations/5446", nil)

	resp, body := f.do(t, http.MethodPost, "/api/tick", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var report poller.TickReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Found)
	assert.Equal(t, 1, report.Notified)

	resp, body = f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var check SystemCheckView
	require.NoError(t, json.Unmarshal(body, &check))
	assert.Equal(t, models.CheckStatusSuccess, check.Status)

	resp, body = f.do(t, http.MethodGet, "/api/users/u1/notifications?unread=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var notifs []NotificationView
	require.NoError(t, json.Unmarshal(body, &notifs))
	require.Len(t, notifs, 1)
	assert.Equal(t, "Appointment available for Unknown Location on 2026-10-20T09:15", notifs[0].Message)

	resp, _ = f.do(t, http.MethodPost, "/api/users/u1/notifications/"+notifs[0].ID+"/read", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body = f.do(t, http.MethodGet, "/api/users/u1/notifications?unread=true", nil)
	assert.JSONEq(t, `[]`, string(body))
}

func TestAPI_SyncAndSearchLocations(t *testing.T) {
	f := newAPIFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":5140,"name":"JFK International Global Entry EC","city":"Jamaica","state":"NY","operational":true},
			{"id":5446,"name":"San Francisco Global Entry Enrollment Center","city":"San Francisco","state":"CA","operational":true}
		]`))
	})

	resp, body := f.do(t, http.MethodPost, "/api/locations/sync", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"upserted":2,"retired":0,"skipped":0}`, string(body))

	resp, body = f.do(t, http.MethodGet, "/api/locations?state=ny", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var locs []LocationView
	require.NoError(t, json.Unmarshal(body, &locs))
	require.Len(t, locs, 1)
	assert.Equal(t, "JFK International Global Entry EC", locs[0].Name)
}

func TestFromMany(t *testing.T) {
	views := FromMany[models.Location, LocationView](models.Locations{{ID: 1}, {ID: 2, Name: "Two"}})
	require.Len(t, views, 2)
	assert.Equal(t, "Unknown Location", views[0].Name)
	assert.Equal(t, "Two", views[1].Name)
}

