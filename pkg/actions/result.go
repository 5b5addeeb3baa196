package actions

import "errors"

var (
	// ErrSessionUnavailable is returned when the session is unknown or holds
	// no usable page.
	ErrSessionUnavailable = errors.New("session unavailable")

	// ErrActionFailed wraps a driver error that did not indicate navigation.
	ErrActionFailed = errors.New("action failed")

	// ErrInvalidParams is returned for malformed action parameters.
	ErrInvalidParams = errors.New("invalid parameters")
)

// Action names reported in ActionResult.Action.
const (
	ActionClick    = "click"
	ActionFill     = "fill"
	ActionNavigate = "navigate"
)

// Detail keys set on ActionResult.Details.
const (
	DetailSelector     = "selector"
	DetailURL          = "url"
	DetailBeforeURL    = "beforeUrl"
	DetailBeforeTitle  = "beforeTitle"
	DetailAfterURL     = "afterUrl"
	DetailAfterTitle   = "afterTitle"
	DetailDurationMs   = "durationMs"
	DetailWait         = "wait"
	DetailWaitError    = "waitError"
	DetailNavigation   = "navigation"
	DetailURLDelta     = "urlComponents"
	DetailStoreError   = "storePageError"
	DetailSessionID    = "sessionId"
	DetailFieldType    = "fieldType"
	DetailReconnectReq = "requiresSessionManagerReconnect"
)

// ActionResult reports the outcome of one action. Callers branch on Success;
// Error is set only when Success is false.
type ActionResult struct {
	Action  string
	Success bool
	Details map[string]any

	// ContextDestroyed is true when the action or the recovery that followed
	// saw the page's execution context replaced
	ContextDestroyed bool

	URLChanged           bool
	NavigationSuccessful bool

	// PageReconnected is true when a replacement page was stored for the session
	PageReconnected bool

	Error error
}

func failed(action string, details map[string]any, err error) ActionResult {
	return ActionResult{Action: action, Success: false, Details: details, Error: err}
}
