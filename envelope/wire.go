package envelope

// Tab→Host and Host→Tab message kinds (spec §6, literal strings).
const (
	TabInit               = "TAB_INIT"
	TabDisconnect         = "TAB_DISCONNECT"
	TabSend               = "TAB_SEND"
	TabVisibility         = "TAB_VISIBILITY"
	TabRegisterCallback   = "TAB_REGISTER_CALLBACK"
	TabUnregisterCallback = "TAB_UNREGISTER_CALLBACK"
	TabPing               = "TAB_PING"
	TabForceShutdown      = "TAB_FORCE_SHUTDOWN"
	TabForceReset         = "TAB_FORCE_RESET"
	TabNetworkOnline      = "TAB_NETWORK_ONLINE"

	WorkerReady       = "WORKER_READY"
	WorkerConnected   = "WORKER_CONNECTED"
	WorkerDisconnected = "WORKER_DISCONNECTED"
	WorkerMessage     = "WORKER_MESSAGE"
	WorkerError       = "WORKER_ERROR"
	WorkerAuthConflict = "WORKER_AUTH_CONFLICT"
	WorkerPong        = "WORKER_PONG"
	WorkerTabNotFound = "WORKER_TAB_NOT_FOUND"
)

// TabMessage is a message sent from a tab to the SharedHost.
type TabMessage struct {
	Kind      string `json:"type"`
	TabID     string `json:"tabId"`
	Timestamp int64  `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// HostMessage is a message sent from the SharedHost to one or all tabs.
type HostMessage struct {
	Kind      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// TabInitPayload is the payload of a TAB_INIT message.
type TabInitPayload struct {
	BaseURL     string `json:"url"`
	UserID      string `json:"userId"`
	Credential  string `json:"credential"`
	IsVisible   bool   `json:"isVisible"`
	IdleTimeoutMillis int64 `json:"idleTimeout,omitempty"`
}

// TabSendPayload is the payload of a TAB_SEND message.
type TabSendPayload struct {
	Data any `json:"data"`
}

// TabVisibilityPayload is the payload of a TAB_VISIBILITY message.
type TabVisibilityPayload struct {
	IsVisible bool `json:"isVisible"`
}

// CallbackPayload is the payload of TAB_REGISTER_CALLBACK /
// TAB_UNREGISTER_CALLBACK messages.
type CallbackPayload struct {
	Type       string `json:"type"`
	CallbackID string `json:"callbackId,omitempty"`
}

// ForcePayload is the payload of TAB_FORCE_RESET / TAB_FORCE_SHUTDOWN.
type ForcePayload struct {
	Reason string `json:"reason,omitempty"`
}

// WorkerMessagePayload is the payload of a WORKER_MESSAGE emission.
type WorkerMessagePayload struct {
	OriginalFrame []byte          `json:"originalFrame"`
	Envelope      MessageEnvelope `json:"envelope"`
}

// WorkerErrorPayload is the payload of a WORKER_ERROR emission.
type WorkerErrorPayload struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WorkerAuthConflictPayload is the payload of a WORKER_AUTH_CONFLICT
// emission.
type WorkerAuthConflictPayload struct {
	CurrentUserID string `json:"currentUserId"`
	NewUserID     string `json:"newUserId"`
	Explanation   string `json:"explanation,omitempty"`
}
