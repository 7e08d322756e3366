/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package protocol

// Event is one decoded protocol event. The concrete types below are the
// only implementations.
type Event interface {
	event()
}

// InfoReceived carries the decoded INFO handshake record.
type InfoReceived struct {
	Info ServerInfo
}

// MsgStarted announces a MSG frame whose payload has not arrived yet.
type MsgStarted struct {
	Topic          string
	SubscriptionID string
	ReplyTo        string
	PayloadLength  int
}

// MsgReceived is a complete MSG frame.
type MsgReceived struct {
	Topic          string
	SubscriptionID string
	ReplyTo        string
	PayloadLength  int
	Payload        []byte
}

// PingReceived is a server keepalive; the client must answer with PONG.
type PingReceived struct{}

// PongReceived answers a client PING.
type PongReceived struct{}

// OKReceived acknowledges a frame in verbose mode.
type OKReceived struct{}

// ErrReceived is a -ERR frame. The message has its quotes removed.
type ErrReceived struct {
	Message string
}

// ProtocolError is the decoder's terminal event. Nothing follows it.
type ProtocolError struct {
	Message string
}

func (InfoReceived) event()  {}
func (MsgStarted) event()    {}
func (MsgReceived) event()   {}
func (PingReceived) event()  {}
func (PongReceived) event()  {}
func (OKReceived) event()    {}
func (ErrReceived) event()   {}
func (ProtocolError) event() {}

// ServerInfo is the broker's INFO record, decoded as generic JSON.
type ServerInfo map[string]interface{}

// ServerID returns the server_id field, or "" if absent.
func (i ServerInfo) ServerID() string {
	return i.str("server_id")
}

// Version returns the broker version string, or "" if absent.
func (i ServerInfo) Version() string {
	return i.str("version")
}

// MaxPayload returns the max_payload field, or 0 if absent.
func (i ServerInfo) MaxPayload() int64 {
	if v, ok := i["max_payload"].(float64); ok {
		return int64(v)
	}
	return 0
}

func (i ServerInfo) str(key string) string {
	if v, ok := i[key].(string); ok {
		return v
	}
	return ""
}
