package nodeworker

import (
	"encoding/json"
	"time"
)

const EventName = "node/execution.requested"

type NodeExecutionRequestedData struct {
	RunID    string          `json:"run_id"`
	Workflow string          `json:"workflow"`
	Node     string          `json:"node"`
	Params   json.RawMessage `json:"params,omitempty"`
}

type NodeExecutionRequestedEnvelope struct {
	EventName string                     `json:"event_name"`
	EventID   string                     `json:"event_id"`
	TS        time.Time                  `json:"ts"`
	Data      NodeExecutionRequestedData `json:"data"`
}

func EventIDForRun(runID string) string {
	return "noderun:" + runID
}
