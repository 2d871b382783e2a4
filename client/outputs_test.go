package client

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imageEntry(name string) map[string]interface{} {
	return map[string]interface{}{"filename": name, "subfolder": "", "type": "output"}
}

// seedHistory registers three output nodes holding 2, 1 and 3 files and one node without files
func seedHistory(srv *fakeComfy) {
	srv.history["p1"] = map[string]interface{}{
		"outputs": map[string]interface{}{
			"12": map[string]interface{}{"images": []interface{}{imageEntry("c1.png")}},
			"9":  map[string]interface{}{"images": []interface{}{imageEntry("a1.png"), imageEntry("a2.png")}},
			"5":  map[string]interface{}{"text": []interface{}{"no files here"}},
			"10": map[string]interface{}{
				"images": []interface{}{imageEntry("b1.png"), imageEntry("b2.png")},
				"gifs":   []interface{}{imageEntry("b3.gif")},
			},
		},
		"status": map[string]interface{}{"status_str": "success", "completed": true},
	}
	for _, name := range []string{"a1.png", "a2.png", "b1.png", "b2.png", "b3.gif", "c1.png"} {
		srv.images[name] = []byte("data:" + name)
	}
}

func TestFetchOutputs(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			srv := newFakeComfy(t)
			seedHistory(srv)
			c := newTestClient(t, srv.URL)
			c.SetFetchConcurrency(concurrency)

			outputs, err := c.FetchOutputs(context.Background(), "p1")
			require.NoError(t, err)

			require.Len(t, outputs, 3)
			assert.Equal(t, "9", outputs[0].NodeID)
			assert.Equal(t, "10", outputs[1].NodeID)
			assert.Equal(t, "12", outputs[2].NodeID)

			names := func(na NodeArtifacts) []string {
				retv := []string{}
				for _, a := range na.Artifacts {
					assert.Equal(t, []byte("data:"+a.Filename), a.Data)
					retv = append(retv, a.Filename)
				}
				return retv
			}
			assert.Equal(t, []string{"a1.png", "a2.png"}, names(outputs[0]))
			assert.Equal(t, []string{"b1.png", "b2.png", "b3.gif"}, names(outputs[1]))
			assert.Equal(t, []string{"c1.png"}, names(outputs[2]))

			for name := range srv.images {
				assert.Equal(t, 1, srv.viewCount(name), name)
			}
		})
	}
}

func TestFetchOutputsFailure(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			srv := newFakeComfy(t)
			seedHistory(srv)
			srv.failView = "b2.png"
			c := newTestClient(t, srv.URL)
			c.SetFetchConcurrency(concurrency)

			outputs, err := c.FetchOutputs(context.Background(), "p1")
			require.Error(t, err)
			assert.Nil(t, outputs)

			var herr *HTTPError
			require.ErrorAs(t, err, &herr)
			assert.Equal(t, http.StatusInternalServerError, herr.StatusCode)
			assert.Contains(t, err.Error(), "b2.png")
		})
	}
}

func TestFetchOutputsUnknownPrompt(t *testing.T) {
	srv := newFakeComfy(t)
	c := newTestClient(t, srv.URL)

	_, err := c.FetchOutputs(context.Background(), "p404")
	assert.ErrorIs(t, err, ErrPromptNotFound)
}

func TestFetchOutputsNoFiles(t *testing.T) {
	srv := newFakeComfy(t)
	srv.history["p1"] = map[string]interface{}{"outputs": map[string]interface{}{}}
	c := newTestClient(t, srv.URL)

	outputs, err := c.FetchOutputs(context.Background(), "p1")
	require.NoError(t, err)
	assert.Empty(t, outputs)
}
