package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/richinsley/comfybatch/graphapi"
)

/*
@routes.get("/view")
@routes.get("/system_stats")
@routes.get("/prompt")
@routes.get("/object_info")
@routes.get("/history/{prompt_id}")

@routes.post("/prompt")
@routes.post("/interrupt")
@routes.post("/history")
@routes.post("/upload/image")
*/

const maxErrorBody = 4096

func (c *ComfyClient) do(ctx context.Context, method string, path string, query url.Values, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.httpclient.Do(req)
}

// checkResponse turns a non-2xx response into an *HTTPError and closes its body
func checkResponse(method string, path string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}

func (c *ComfyClient) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path, query, "", nil)
	if err != nil {
		return err
	}
	if err := checkResponse(http.MethodGet, path, resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func (c *ComfyClient) postJSON(ctx context.Context, path string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, path, nil, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	if err := checkResponse(http.MethodPost, path, resp); err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *ComfyClient) GetSystemStats(ctx context.Context) (*SystemStats, error) {
	retv := &SystemStats{}
	if err := c.getJSON(ctx, "/system_stats", nil, retv); err != nil {
		return nil, err
	}
	return retv, nil
}

func (c *ComfyClient) GetQueueExecutionInfo(ctx context.Context) (*QueueExecInfo, error) {
	queue_exec := &QueueExecInfo{}
	if err := c.getJSON(ctx, "/prompt", nil, queue_exec); err != nil {
		return nil, err
	}
	return queue_exec, nil
}

// GetObjectInfos retrieves the node classes installed on the server
func (c *ComfyClient) GetObjectInfos(ctx context.Context) (NodeObjects, error) {
	result := make(NodeObjects)
	if err := c.getJSON(ctx, "/object_info", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// QueuePrompt submits the workflow under this client's id. A rejected prompt is
// returned as a *QueueError; nothing is retried.
func (c *ComfyClient) QueuePrompt(ctx context.Context, wf *graphapi.Workflow) (*QueueItem, error) {
	data, err := json.Marshal(wf.ToPrompt(c.clientid))
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/prompt", nil, "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// mmm-k, is it one of these:
		// {"error": {"type": "prompt_outputs_failed_validation",
		//				"message": "Prompt outputs failed validation",
		//				"details": "",
		//				"extra_info": {}
		//			  },
		// "node_errors": {"4": {"errors": [...], "dependent_outputs": ["9"], "class_type": "CheckpointLoaderSimple"}}
		// }
		qerr := &QueueError{StatusCode: resp.StatusCode}
		perror := &PromptErrorMessage{}
		if perr := json.Unmarshal(body, perror); perr != nil {
			slog.Error("error unmarshalling prompt error", "body", string(body))
			qerr.Err.Message = strings.TrimSpace(string(body))
		} else {
			qerr.Err = perror.Error
			qerr.NodeErrors = perror.NodeErrors
		}
		return nil, qerr
	}

	item := &QueueItem{Workflow: wf}
	if err := json.Unmarshal(body, item); err != nil {
		return nil, fmt.Errorf("decoding queue response: %w", err)
	}
	if item.PromptID == "" {
		return nil, errors.New("server accepted the prompt without returning a prompt_id")
	}
	return item, nil
}

// GetHistory returns the history entry of a single prompt
func (c *ComfyClient) GetHistory(ctx context.Context, promptID string) (*HistoryItem, error) {
	history := make(map[string]*HistoryItem)
	if err := c.getJSON(ctx, "/history/"+url.PathEscape(promptID), nil, &history); err != nil {
		return nil, err
	}

	item, ok := history[promptID]
	if !ok || item == nil {
		return nil, fmt.Errorf("%w: %s", ErrPromptNotFound, promptID)
	}
	item.PromptID = promptID
	if item.Outputs == nil {
		item.Outputs = make(map[string]NodeOutput)
	}
	return item, nil
}

// GetImage downloads the bytes of a file produced by a node
func (c *ComfyClient) GetImage(ctx context.Context, image_data DataOutput) ([]byte, error) {
	params := url.Values{}
	params.Add("filename", image_data.Filename)
	params.Add("subfolder", image_data.Subfolder)
	params.Add("type", image_data.Type)

	resp, err := c.do(ctx, http.MethodGet, "/view", params, "", nil)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(http.MethodGet, "/view", resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// Interrupt stops the prompt the server is currently executing
func (c *ComfyClient) Interrupt(ctx context.Context) error {
	return c.postJSON(ctx, "/interrupt", struct{}{})
}

// EraseHistoryItem removes a prompt from the server's history
func (c *ComfyClient) EraseHistoryItem(ctx context.Context, promptID string) error {
	// delete post takes an array of IDs. We'll provide a single ID in a json array
	return c.postJSON(ctx, "/history", map[string][]string{"delete": {promptID}})
}
