package ledger

import (
	"encoding/json"
	"fmt"
)

// apiBlock is one element of the response to GET /blocks?height=sealed.
type apiBlock struct {
	Header struct {
		ID        string `json:"id"`
		Height    string `json:"height"`
		Timestamp string `json:"timestamp"`
	} `json:"header"`
}

// apiEventBlock is one element of the response to GET /events. The gateway
// groups events by the block that sealed them.
type apiEventBlock struct {
	BlockID     string     `json:"block_id"`
	BlockHeight string     `json:"block_height"`
	Events      []apiEvent `json:"events"`
}

// apiEvent is a single raw event. Payload is a base64-encoded, schema-tagged
// JSON document.
type apiEvent struct {
	Type             string `json:"type"`
	TransactionID    string `json:"transaction_id"`
	TransactionIndex string `json:"transaction_index"`
	EventIndex       string `json:"event_index"`
	Payload          string `json:"payload"`
}

// apiError is the gateway's error envelope.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// checkHTTPStatus converts a non-2xx gateway response into an error, pulling
// the message out of the error envelope when one is present.
func checkHTTPStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("gateway status %d: %s", status, apiErr.Message)
	}
	return fmt.Errorf("gateway status %d", status)
}
