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

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/hamba/avro/v2"
	"google.golang.org/protobuf/proto"
)

// Encoder turns a value into a message payload.
type Encoder interface {
	Encode(v interface{}) ([]byte, error)
	Name() string
}

// Decoder turns a message payload back into a value.
type Decoder interface {
	Decode(data []byte, v interface{}) error
	Name() string
}

// Serde is an Encoder and Decoder for the same format.
type Serde interface {
	Encoder
	Decoder
}

// Built-in formats.
var (
	BinarySerde Serde = binarySerde{}
	JSONSerde   Serde = jsonSerde{}
	StringSerde Serde = stringSerde{}
	ProtoSerde  Serde = protoSerde{}
)

type binarySerde struct{}

func (binarySerde) Encode(v interface{}) ([]byte, error) {
	if data, ok := v.([]byte); ok {
		return data, nil
	}
	return nil, fmt.Errorf("binary encoder expects []byte, got %T", v)
}

func (binarySerde) Decode(data []byte, v interface{}) error {
	if target, ok := v.(*[]byte); ok {
		*target = data
		return nil
	}
	return fmt.Errorf("binary decoder expects *[]byte, got %T", v)
}

func (binarySerde) Name() string { return "binary" }

type jsonSerde struct{}

func (jsonSerde) Encode(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonSerde) Decode(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonSerde) Name() string { return "json" }

type stringSerde struct{}

func (stringSerde) Encode(v interface{}) ([]byte, error) {
	switch s := v.(type) {
	case string:
		return []byte(s), nil
	case fmt.Stringer:
		return []byte(s.String()), nil
	default:
		return []byte(fmt.Sprint(v)), nil
	}
}

func (stringSerde) Decode(data []byte, v interface{}) error {
	if target, ok := v.(*string); ok {
		*target = string(data)
		return nil
	}
	return fmt.Errorf("string decoder expects *string, got %T", v)
}

func (stringSerde) Name() string { return "string" }

type protoSerde struct{}

func (protoSerde) Encode(v interface{}) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("protobuf encoder expects proto.Message, got %T", v)
	}
	return proto.Marshal(msg)
}

func (protoSerde) Decode(data []byte, v interface{}) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("protobuf decoder expects proto.Message, got %T", v)
	}
	return proto.Unmarshal(data, msg)
}

func (protoSerde) Name() string { return "protobuf" }

// AvroSerde encodes values with one fixed Avro schema.
type AvroSerde struct {
	schema avro.Schema
}

// NewAvroSerde parses schema and returns a serde bound to it.
func NewAvroSerde(schema string) (*AvroSerde, error) {
	sch, err := avro.Parse(schema)
	if err != nil {
		return nil, fmt.Errorf("avro schema: %w", err)
	}
	return &AvroSerde{schema: sch}, nil
}

// Encode marshals v with the serde's schema.
func (s *AvroSerde) Encode(v interface{}) ([]byte, error) {
	return avro.Marshal(s.schema, v)
}

// Decode unmarshals data into v with the serde's schema.
func (s *AvroSerde) Decode(data []byte, v interface{}) error {
	return avro.Unmarshal(s.schema, data, v)
}

// Name returns "avro".
func (s *AvroSerde) Name() string { return "avro" }

var serdes = struct {
	sync.RWMutex
	byName map[string]Serde
}{byName: map[string]Serde{}}

func init() {
	for _, s := range []Serde{BinarySerde, JSONSerde, StringSerde, ProtoSerde} {
		RegisterSerde(s)
	}
}

// RegisterSerde makes s available to LookupSerde under its name, replacing
// any earlier registration.
func RegisterSerde(s Serde) {
	serdes.Lock()
	defer serdes.Unlock()
	serdes.byName[s.Name()] = s
}

// LookupSerde returns the serde registered as name.
func LookupSerde(name string) (Serde, error) {
	serdes.RLock()
	defer serdes.RUnlock()
	s, ok := serdes.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown serde: %s", name)
	}
	return s, nil
}

// SerdeNames lists the registered serde names, sorted.
func SerdeNames() []string {
	serdes.RLock()
	defer serdes.RUnlock()
	names := make([]string, 0, len(serdes.byName))
	for name := range serdes.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PublishValue encodes v with enc and publishes the result.
func (c *Connection) PublishValue(ctx context.Context, subject string, v interface{}, enc Encoder, opts PublishOptions) error {
	data, err := enc.Encode(v)
	if err != nil {
		return fmt.Errorf("%s encode: %w", enc.Name(), err)
	}
	return c.Publish(ctx, subject, data, opts)
}

// DecodeMsg decodes the payload of m into v with dec.
func DecodeMsg(m *Msg, dec Decoder, v interface{}) error {
	if err := dec.Decode(m.Payload, v); err != nil {
		return fmt.Errorf("%s decode %s: %w", dec.Name(), m.Topic, err)
	}
	return nil
}
