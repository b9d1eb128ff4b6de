package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/plaintext"
	"go.dedis.ch/mupol/storage"
	"go.dedis.ch/mupol/types"
)

type fakeParty struct {
	outputs storage.KVStore
	runs    []peer.RunStatus
}

func (f *fakeParty) Solve(context.Context, string, plaintext.Layout, plaintext.PartyInput) (types.RevealedOutput, error) {
	return types.RevealedOutput{}, nil
}

func (f *fakeParty) Outputs() storage.KVStore {
	return f.outputs
}

func (f *fakeParty) Runs() []peer.RunStatus {
	return f.runs
}

func (f *fakeParty) Stop() error {
	return nil
}

func newFakeParty(t *testing.T) *fakeParty {
	kv := storage.NewBasicKV()
	require.NoError(t, kv.Put("run1", types.RevealedOutput{
		RunID: "run1",
		Party: 1,
		Orders: []types.RevealedOrder{
			{Index: 0, Freighter: 2, Details: &types.OrderDetails{Origin: 0, Destination: 3, Volume: 4}},
		},
		Drives: []types.RevealedDrive{{Iteration: 0, Freighter: 2, Route: &types.Route{From: 2, To: 0}}},
	}))

	return &fakeParty{
		outputs: kv,
		runs: []peer.RunStatus{
			{RunID: "run1", Phase: peer.PhaseFinalize, Done: true, Rounds: 42},
			{RunID: "run2", Phase: peer.PhaseInit, Done: true, Class: peer.RangeViolation, Error: "boom"},
		},
	}
}

func get(t *testing.T, h http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func Test_HTTP_Runs(t *testing.T) {
	h := NewHandler(newFakeParty(t)).Router()

	w := get(t, h, "/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var res RunsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, []string{"run1"}, res.Outputs)
	require.Len(t, res.Runs, 2)
	require.Equal(t, uint64(42), res.Runs[0].Rounds)
	require.Equal(t, peer.RangeViolation, res.Runs[1].Class)
}

func Test_HTTP_Output(t *testing.T) {
	party := newFakeParty(t)
	h := NewHandler(party).Router()

	w := get(t, h, "/runs/run1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out types.RevealedOutput
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))

	expected, _ := party.outputs.Get("run1")
	require.Equal(t, expected, out)

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = get(t, h, "/runs/run1", http.Header{"If-None-Match": []string{etag}})
	require.Equal(t, http.StatusNotModified, w.Code)

	w = get(t, h, "/runs/run2", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func Test_HTTP_Server(t *testing.T) {
	s, err := Start("127.0.0.1:0", newFakeParty(t))
	require.NoError(t, err)

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))

	require.NoError(t, s.Stop(context.Background()))
}
