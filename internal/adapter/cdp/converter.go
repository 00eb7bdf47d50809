package cdp

import (
	"encoding/json"
	"time"

	"tabmon/pkg/model"

	"github.com/mafredri/cdp/protocol/network"
)

// FromRequestWillBeSent converts a CDP request-sent reply into the
// neutral event model.
func FromRequestWillBeSent(ev *network.RequestWillBeSentReply) model.NetworkEvent {
	sent := &model.RequestSent{
		RequestID:     model.RequestID(ev.RequestID),
		URL:           ev.Request.URL,
		Method:        ev.Request.Method,
		Headers:       decodeHeaders(ev.Request.Headers),
		Timestamp:     wallClock(float64(ev.WallTime)),
		Type:          string(ev.Type),
		InitiatorType: ev.Initiator.Type,
	}
	if ev.Request.PostData != nil {
		sent.PostData = *ev.Request.PostData
	}
	return model.NetworkEvent{Kind: model.KindRequestSent, RequestSent: sent}
}

// FromResponseReceived converts a CDP response-received reply.
func FromResponseReceived(ev *network.ResponseReceivedReply) model.NetworkEvent {
	recv := &model.ResponseReceived{
		RequestID: model.RequestID(ev.RequestID),
		Status:    ev.Response.Status,
		Headers:   decodeHeaders(ev.Response.Headers),
		MimeType:  ev.Response.MimeType,
	}
	return model.NetworkEvent{Kind: model.KindResponseReceived, ResponseReceived: recv}
}

// FromLoadingFinished converts a CDP loading-finished reply.
func FromLoadingFinished(ev *network.LoadingFinishedReply) model.NetworkEvent {
	fin := &model.LoadingFinished{
		RequestID:         model.RequestID(ev.RequestID),
		Timestamp:         time.Now(),
		EncodedDataLength: ev.EncodedDataLength,
	}
	return model.NetworkEvent{Kind: model.KindLoadingFinished, LoadingFinished: fin}
}

func decodeHeaders(raw network.Headers) map[string]string {
	h := map[string]string{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &h)
	}
	return h
}

// wallClock converts a seconds-since-epoch protocol timestamp; zero
// (absent) falls back to now.
func wallClock(sec float64) time.Time {
	if sec <= 0 {
		return time.Now()
	}
	return time.Unix(0, int64(sec*float64(time.Second)))
}
