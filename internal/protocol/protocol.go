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

/*
Package protocol implements the broker's text wire protocol.

PROTOCOL OVERVIEW:
==================
Every frame is a CRLF terminated command line. PUB (outbound) and MSG
(inbound) are followed by a payload block whose exact byte length is
announced on the command line, and by a second CRLF.

OUTBOUND FRAMES (see encoder.go):
=================================

	CONNECT {json-options}\r\n
	PUB <topic> [<reply-to>] <byte-length>\r\n<payload>\r\n
	SUB <topic> [<queue-group>] <subscription-id>\r\n
	UNSUB <subscription-id> [<max-msgs>]\r\n
	PING\r\n
	PONG\r\n

INBOUND FRAMES (see decoder.go):
================================

	INFO {json}\r\n
	MSG <topic> <subscription-id> [<reply-to>] <byte-length>\r\n<payload>\r\n
	PING\r\n
	PONG\r\n
	+OK\r\n
	-ERR '<message>'\r\n

EXAMPLE: PUBLISH "hi" TO "a.b"
==============================

	PUB a.b 2\r\n
	hi\r\n

GRAMMAR:
========
Topics are dot separated alphanumeric tokens. A token may be '*' (one
token) and the final token may be '>' (one or more tokens). Subscription
ids and queue groups are alphanumeric only. See package topic.

The decoder is a streaming state machine: it accepts arbitrary chunks of
the inbound byte stream and emits events as soon as complete frames are
buffered, so frame boundaries never need to line up with read boundaries.
*/
package protocol

// Protocol constants define the wire format parameters.
const (
	// Version is the protocol revision announced in CONNECT.
	Version = 1

	// Lang is announced in CONNECT as the client implementation language.
	Lang = "go"

	// MaxBuffer bounds the total bytes a decoder buffers between frames.
	MaxBuffer = 8 * 1024 * 1024 // 8MB

	// MaxCommand bounds an unterminated command line.
	MaxCommand = 8192

	// ReadSize is the suggested per-read chunk size for receive loops.
	ReadSize = 1024 * 1024 // 1MB
)

var crlf = []byte("\r\n")

// Verbs on the wire.
const (
	verbConnect = "CONNECT"
	verbPub     = "PUB"
	verbSub     = "SUB"
	verbUnsub   = "UNSUB"
	verbInfo    = "INFO"
	verbMsg     = "MSG"
	verbPing    = "PING"
	verbPong    = "PONG"
	verbOK      = "+OK"
	verbErr     = "-ERR"
)
