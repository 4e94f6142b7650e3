package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/hallcore/corefw/corefw/profile"
	"github.com/hallcore/corefw/corefw/protocol"
	"github.com/hallcore/corefw/corefw/storage"
)

type noopStatus struct{}

func (noopStatus) CurrentLayer() int         { return 0 }
func (noopStatus) KeyPressed(key int) bool   { return false }
func (noopStatus) KeyDistance(key int) uint8 { return 0 }

type noopAK struct{}

func (noopAK) Clear()                             {}
func (noopAK) LoadKeys(keys []profile.AdvancedKey) {}

type noopLayout struct{}

func (noopLayout) LoadAdvancedKeys() {}

type noopMatrix struct{}

func (noopMatrix) Recalibrate(resetBottomOut bool) {}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "image.json"), 4, 1, 1, 1)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	d := protocol.New(store.Image().Profiles[0], store, noopAK{}, noopLayout{}, noopMatrix{}, noopStatus{}, 4, 1000)
	return New(d, "test")
}

func TestHandleStatusReturnsTickRate(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	s.handleStatus(w, req)

	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TickRateHz != 1000 {
		t.Fatalf("expected tick rate 1000, got %d", resp.TickRateHz)
	}
}

func TestHandleActuationSetThenGet(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(actuationRequest{Key: 1, Point: 30, RTDown: 1, RTUp: 1})
	postReq := httptest.NewRequest(http.MethodPost, "/actuation", bytes.NewReader(body))
	postW := httptest.NewRecorder()
	s.handleActuation(postW, postReq)
	if postW.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", postW.Code, postW.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/actuation?key=1", nil)
	getW := httptest.NewRecorder()
	s.handleActuation(getW, getReq)

	var resp actuationRequest
	if err := json.NewDecoder(getW.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Point != 30 {
		t.Fatalf("expected point 30, got %d", resp.Point)
	}
}
