package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

// fakeComfy is a minimal ComfyUI server: it accepts prompts, serves a canned
// history and images, and pushes scripted events over the websocket.
type fakeComfy struct {
	*httptest.Server
	t *testing.T

	mu        sync.Mutex
	conn      *websocket.Conn
	wsClient  string
	connected chan struct{}

	promptID   string
	events     []string
	history    map[string]interface{}
	images     map[string][]byte
	failView   string
	views      map[string]int
	prompts    []map[string]interface{}
	interrupts int
	deleted    []string
}

func newFakeComfy(t *testing.T) *fakeComfy {
	f := &fakeComfy{
		t:         t,
		connected: make(chan struct{}),
		promptID:  "p1",
		history:   make(map[string]interface{}),
		images:    make(map[string][]byte),
		views:     make(map[string]int),
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.wsClient = r.URL.Query().Get("clientId")
		f.mu.Unlock()
		close(f.connected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/prompt", f.handlePrompt)
	mux.HandleFunc("/history/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.URL.Path[len("/history/"):]
		resp := map[string]interface{}{}
		if h, ok := f.history[id]; ok {
			resp[id] = h
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Delete []string `json:"delete"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.deleted = append(f.deleted, body.Delete...)
		f.mu.Unlock()
	})
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("filename")
		f.mu.Lock()
		f.views[name]++
		data, ok := f.images[name]
		fail := name == f.failView
		f.mu.Unlock()
		if fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/interrupt", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.interrupts++
		f.mu.Unlock()
	})
	mux.HandleFunc("/upload/image", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("image")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		_ = json.NewEncoder(w).Encode(map[string]string{
			"name":      "uploaded_" + header.Filename,
			"subfolder": r.FormValue("subfolder"),
			"type":      r.FormValue("type"),
		})
	})
	mux.HandleFunc("/system_stats", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"system": {"os": "posix", "python_version": "3.11", "embedded_python": false},
			"devices": [{"name": "cuda:0", "type": "cuda", "index": 0, "vram_total": 100, "vram_free": 50}]}`))
	})
	mux.HandleFunc("/object_info", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"KSampler": {"name": "KSampler", "category": "sampling", "output": ["LATENT"],
			"input": {"required": {"seed": ["INT", {"default": 0}]}}}}`))
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeComfy) handlePrompt(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		_, _ = w.Write([]byte(`{"exec_info": {"queue_remaining": 3}}`))
		return
	}

	body := map[string]interface{}{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.prompts = append(f.prompts, body)
	conn := f.conn
	events := f.events
	f.mu.Unlock()

	// events go out before the response so the client must buffer them
	if conn != nil {
		for _, ev := range events {
			assert.NoError(f.t, conn.WriteMessage(websocket.TextMessage, []byte(ev)))
		}
	}
	_, _ = w.Write([]byte(`{"prompt_id": "` + f.promptID + `", "number": 1, "node_errors": {}}`))
}

func (f *fakeComfy) viewCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.views[name]
}

func mustMarshal(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
