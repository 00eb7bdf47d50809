package model

import "time"

// EventKind discriminates the lifecycle events of one network request.
type EventKind int

const (
	KindRequestSent EventKind = iota + 1
	KindResponseReceived
	KindLoadingFinished
)

// RequestSent corresponds to Network.requestWillBeSent.
type RequestSent struct {
	RequestID     RequestID
	URL           string
	Method        string
	Headers       map[string]string
	PostData      string
	Timestamp     time.Time
	Type          string
	InitiatorType string
}

// ResponseReceived corresponds to Network.responseReceived.
type ResponseReceived struct {
	RequestID RequestID
	Status    int
	Headers   map[string]string
	MimeType  string
}

// LoadingFinished corresponds to Network.loadingFinished.
type LoadingFinished struct {
	RequestID         RequestID
	Timestamp         time.Time
	EncodedDataLength float64
}

// NetworkEvent is the neutral envelope delivered by an event source.
// Exactly one payload pointer is set, matching Kind.
type NetworkEvent struct {
	Kind             EventKind
	RequestSent      *RequestSent
	ResponseReceived *ResponseReceived
	LoadingFinished  *LoadingFinished
}
