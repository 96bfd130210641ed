package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kmarket/odds-stream/internal/auth"
	"github.com/kmarket/odds-stream/internal/hub"
	"github.com/kmarket/odds-stream/internal/publish"
	"github.com/kmarket/odds-stream/internal/quote"
)

type fakeCache struct {
	quotes map[int64]quote.Quote
}

func (f *fakeCache) GetQuote(_ context.Context, marketID int64) (quote.Quote, bool, error) {
	q, ok := f.quotes[marketID]
	return q, ok, nil
}

func (f *fakeCache) SetQuote(_ context.Context, q quote.Quote) error {
	f.quotes[q.MarketID] = q
	return nil
}

func (f *fakeCache) GetMarketsActive(context.Context) ([]quote.MarketSummary, bool, error) {
	return nil, false, nil
}

func (f *fakeCache) SetMarketsActive(context.Context, []quote.MarketSummary) error {
	return nil
}

type fakeSource struct {
	markets []quote.MarketSummary
}

func (f *fakeSource) ComputeMoneyline(context.Context, int64) (*quote.Moneyline, error) {
	return nil, nil
}

func (f *fakeSource) ListActiveMarkets(context.Context) ([]quote.MarketSummary, error) {
	return f.markets, nil
}

type fakeValidator struct{}

func (fakeValidator) Validate(_ context.Context, token string) (auth.SessionData, error) {
	if token == "good" {
		return auth.SessionData{UserID: 9}, nil
	}
	return auth.SessionData{}, auth.ErrInvalidToken
}

type fakeOverrideRepo struct {
	lastMarketID int64
	lastPayload  json.RawMessage
}

func (f *fakeOverrideRepo) CreateOddsOverride(_ context.Context, _ int64, marketID int64, payload json.RawMessage) (int64, error) {
	f.lastMarketID = marketID
	f.lastPayload = payload
	return 77, nil
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return m
}

func TestSnapshotFromCache(t *testing.T) {
	cache := &fakeCache{quotes: map[int64]quote.Quote{
		7: {MarketID: 7, Moneyline: &quote.Moneyline{Home: 1.82, Away: 2.15}, Timestamp: 111},
	}}
	api := &API{Quotes: quote.NewService(cache, &fakeSource{}, nil)}
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/markets/7/odds/snapshot")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["marketId"].(float64) != 7 || body["seq"].(float64) != 0 {
		t.Fatalf("body = %v", body)
	}
	payload := body["payload"].(map[string]any)
	ml := payload["moneyline"].(map[string]any)
	if ml["home"] != 1.82 || ml["away"] != 2.15 {
		t.Fatalf("moneyline = %v", ml)
	}
}

func TestSnapshotNotFound(t *testing.T) {
	api := &API{Quotes: quote.NewService(&fakeCache{quotes: map[int64]quote.Quote{}}, &fakeSource{}, nil)}
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/markets/99/odds/snapshot")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["code"] != "NOT_FOUND" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestUpdatesWindow(t *testing.T) {
	h := hub.New(16, nil)
	h.Publish(42, json.RawMessage(`{"home":1.5}`))
	h.Publish(42, json.RawMessage(`{"home":1.6}`))
	h.Publish(42, json.RawMessage(`{"home":1.7}`))

	api := &API{Hub: h, Quotes: quote.NewService(nil, nil, nil)}
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/markets/42/odds/updates?since_seq=1&limit=10")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["fromSeq"].(float64) != 1 || body["toSeq"].(float64) != 3 {
		t.Fatalf("window = from %v to %v, want 1..3", body["fromSeq"], body["toSeq"])
	}
	updates := body["updates"].([]any)
	if len(updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(updates))
	}
	first := updates[0].(map[string]any)
	if first["home"] != 1.6 {
		t.Fatalf("first update = %v", first)
	}
}

func TestUpdatesLimitApplies(t *testing.T) {
	h := hub.New(16, nil)
	for i := 0; i < 5; i++ {
		h.Publish(42, json.RawMessage(`{}`))
	}

	api := &API{Hub: h, Quotes: quote.NewService(nil, nil, nil)}
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/markets/42/odds/updates?since_seq=0&limit=2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := decodeBody(t, resp)
	if len(body["updates"].([]any)) != 2 {
		t.Fatalf("updates = %v", body["updates"])
	}
	if body["toSeq"].(float64) != 2 {
		t.Fatalf("toSeq = %v, want 2", body["toSeq"])
	}
}

func TestUpdatesWithoutHub(t *testing.T) {
	api := &API{Quotes: quote.NewService(nil, nil, nil)}
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/markets/42/odds/updates?since_seq=0")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestActiveMarketsFallsBackToDB(t *testing.T) {
	src := &fakeSource{markets: []quote.MarketSummary{{MarketID: 1, Title: "Final", Category: "football"}}}
	api := &API{Quotes: quote.NewService(&fakeCache{quotes: map[int64]quote.Quote{}}, src, nil)}
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/markets/active")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["source"] != "db" {
		t.Fatalf("source = %v, want db", body["source"])
	}
	if len(body["markets"].([]any)) != 1 {
		t.Fatalf("markets = %v", body["markets"])
	}
}

func TestOverrideRequiresToken(t *testing.T) {
	api := &API{Validator: fakeValidator{}, Repo: &fakeOverrideRepo{}}
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/admin/odds/override", "application/json",
		strings.NewReader(`{"market_id":42,"payload":{}}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestOverrideAuditsThenPublishes(t *testing.T) {
	h := hub.New(16, nil)
	repo := &fakeOverrideRepo{}
	api := &API{
		Validator: fakeValidator{},
		Repo:      repo,
		Publisher: publish.New(nil, h, nil, nil),
	}
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/admin/odds/override",
		strings.NewReader(`{"market_id":42,"payload":{"moneyline":{"home":1.9,"away":1.9}},"reason":"line move"}`))
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["overrideId"].(float64) != 77 || body["applied"] != true {
		t.Fatalf("body = %v", body)
	}

	if repo.lastMarketID != 42 {
		t.Fatalf("audit market = %d, want 42", repo.lastMarketID)
	}
	if !strings.Contains(string(repo.lastPayload), "line move") {
		t.Fatalf("reason not folded into audit payload: %s", repo.lastPayload)
	}

	if evs := h.GetUpdates(42, 0, 10); len(evs) != 1 {
		t.Fatalf("broadcast events = %d, want 1", len(evs))
	}
}

func TestWSStats(t *testing.T) {
	h := hub.New(16, nil)
	h.Publish(1, json.RawMessage(`{}`))

	api := &API{Hub: h, Quotes: quote.NewService(nil, nil, nil)}
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws/stats")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["topics"].(float64) != 1 {
		t.Fatalf("topics = %v, want 1", body["topics"])
	}
}
