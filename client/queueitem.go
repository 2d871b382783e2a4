package client

import "github.com/richinsley/comfybatch/graphapi"

// QueueItem is a prompt accepted by the server
type QueueItem struct {
	PromptID   string                 `json:"prompt_id"`
	Number     int                    `json:"number"`
	NodeErrors map[string]interface{} `json:"node_errors"`
	Workflow   *graphapi.Workflow     `json:"-"`
}
