package fabricbridge

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/opengovern/fabric-bridge/internal"
)

// OperationState is the status a long-running operation reports.
type OperationState string

const (
	OperationNotStarted OperationState = "NotStarted"
	OperationRunning    OperationState = "Running"
	OperationSucceeded  OperationState = "Succeeded"
	OperationFailed     OperationState = "Failed"
	OperationUnknown    OperationState = "Unknown"
)

// ParseOperationState maps a reported status onto the known states. Anything
// unrecognized, including an empty string, is Unknown.
func ParseOperationState(s string) OperationState {
	switch OperationState(s) {
	case OperationNotStarted, OperationRunning, OperationSucceeded, OperationFailed:
		return OperationState(s)
	}
	return OperationUnknown
}

// InProgress reports whether polling should continue.
func (s OperationState) InProgress() bool {
	return s == OperationNotStarted || s == OperationRunning
}

// OperationHandle identifies an accepted operation. Its URLs depend only on
// the operations base URL and the id.
type OperationHandle struct {
	OperationID string
	baseURL     string
}

func newOperationHandle(baseURL, id string) OperationHandle {
	return OperationHandle{OperationID: id, baseURL: strings.TrimRight(baseURL, "/")}
}

// StatusURL is where the operation state is polled.
func (h OperationHandle) StatusURL() string {
	return h.baseURL + "/" + url.PathEscape(h.OperationID)
}

// ResultURL is where the payload of a succeeded operation is fetched.
func (h OperationHandle) ResultURL() string {
	return h.StatusURL() + "/result"
}

// OperationStatus is the decoded body of a status check.
type OperationStatus struct {
	Status          string
	State           OperationState
	CreatedTime     time.Time
	LastUpdatedTime time.Time
	PercentComplete *float64
	Error           *OperationError
}

type operationStatusBody struct {
	Status             string          `json:"status"`
	CreatedTimeUtc     string          `json:"createdTimeUtc"`
	LastUpdatedTimeUtc string          `json:"lastUpdatedTimeUtc"`
	PercentComplete    *float64        `json:"percentComplete"`
	Error              *OperationError `json:"error"`
}

// decodeOperationStatus never fails: a body it cannot read yields an
// Unknown state.
func decodeOperationStatus(data []byte) OperationStatus {
	var body operationStatusBody
	if err := json.Unmarshal(data, &body); err != nil {
		return OperationStatus{State: OperationUnknown}
	}
	return OperationStatus{
		Status:          body.Status,
		State:           ParseOperationState(body.Status),
		CreatedTime:     internal.ParseTimestamp(body.CreatedTimeUtc),
		LastUpdatedTime: internal.ParseTimestamp(body.LastUpdatedTimeUtc),
		PercentComplete: body.PercentComplete,
		Error:           body.Error,
	}
}
