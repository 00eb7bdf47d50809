package model

// TabID identifies a browser tab (CDP page target) under observation.
type TabID string

// RequestID is the opaque token the debugging channel assigns to one
// network request. It is unique per tab session but may be reused
// sequentially after enough requests.
type RequestID string

// Config is the active monitoring configuration. It is written by the
// operator surface and read as a snapshot by the capture core.
type Config struct {
	TargetURL                string `json:"targetUrl" yaml:"targetUrl"`
	QueryButtonSelector      string `json:"queryButtonSelector" yaml:"queryButtonSelector"`
	NextPageButtonSelector   string `json:"nextPageButtonSelector" yaml:"nextPageButtonSelector"`
	IframeSelector           string `json:"iframeSelector,omitempty" yaml:"iframeSelector,omitempty"`
	UseXPath                 bool   `json:"useXPath,omitempty" yaml:"useXPath,omitempty"`
	QueryClickIntervalMin    int    `json:"queryClickIntervalMin" yaml:"queryClickIntervalMin"`
	NextPageClickIntervalSec int    `json:"nextPageClickIntervalSec" yaml:"nextPageClickIntervalSec"`
	ListenURL                string `json:"listenUrl" yaml:"listenUrl"`
	SubmitURL                string `json:"submitUrl" yaml:"submitUrl"`
	DataProcessingMethod     string `json:"dataProcessingMethod" yaml:"dataProcessingMethod"`
	CustomScript             string `json:"customScript,omitempty" yaml:"customScript,omitempty"`
	ExtractField             string `json:"extractField,omitempty" yaml:"extractField,omitempty"`
}

// Snapshot is a point-in-time read of the running flag and configuration.
// The core never mutates it; configuration may change between snapshots.
type Snapshot struct {
	Running bool
	Config  Config
}

// ResponseBody is the raw body returned by the debugging channel.
type ResponseBody struct {
	Body          string `json:"body"`
	Base64Encoded bool   `json:"base64Encoded"`
}

// NetworkResponse is the normalized record handed to the processing
// pipeline. All fields are populated; maps are never nil.
type NetworkResponse struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Status          int               `json:"status"`
	Timestamp       string            `json:"timestamp"`
	ResponseBody    string            `json:"responseBody"`
	ContentType     string            `json:"contentType"`
	ResponseHeaders map[string]string `json:"responseHeaders"`
	RequestHeaders  map[string]string `json:"requestHeaders"`
}
