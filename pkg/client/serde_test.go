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
	"reflect"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type order struct {
	ID    int    `json:"id" avro:"id"`
	Item  string `json:"item" avro:"item"`
	Price int64  `json:"price" avro:"price"`
}

const orderSchema = `{
	"type": "record",
	"name": "order",
	"fields": [
		{"name": "id", "type": "int"},
		{"name": "item", "type": "string"},
		{"name": "price", "type": "long"}
	]
}`

func TestSerdeRoundTrip(t *testing.T) {
	avroSerde, err := NewAvroSerde(orderSchema)
	if err != nil {
		t.Fatalf("NewAvroSerde() error: %v", err)
	}
	want := order{ID: 7, Item: "widget", Price: 1299}

	tests := []struct {
		name  string
		serde Serde
		in    interface{}
		out   func() interface{}
		check func(t *testing.T, out interface{})
	}{
		{
			name:  "json",
			serde: JSONSerde,
			in:    want,
			out:   func() interface{} { return &order{} },
			check: func(t *testing.T, out interface{}) {
				if *out.(*order) != want {
					t.Errorf("decoded %+v, want %+v", out, want)
				}
			},
		},
		{
			name:  "avro",
			serde: avroSerde,
			in:    want,
			out:   func() interface{} { return &order{} },
			check: func(t *testing.T, out interface{}) {
				if *out.(*order) != want {
					t.Errorf("decoded %+v, want %+v", out, want)
				}
			},
		},
		{
			name:  "string",
			serde: StringSerde,
			in:    "hello",
			out:   func() interface{} { return new(string) },
			check: func(t *testing.T, out interface{}) {
				if *out.(*string) != "hello" {
					t.Errorf("decoded %q", *out.(*string))
				}
			},
		},
		{
			name:  "binary",
			serde: BinarySerde,
			in:    []byte{0, 1, 2},
			out:   func() interface{} { return new([]byte) },
			check: func(t *testing.T, out interface{}) {
				if !reflect.DeepEqual(*out.(*[]byte), []byte{0, 1, 2}) {
					t.Errorf("decoded %v", *out.(*[]byte))
				}
			},
		},
		{
			name:  "protobuf",
			serde: ProtoSerde,
			in:    wrapperspb.String("proto payload"),
			out:   func() interface{} { return &wrapperspb.StringValue{} },
			check: func(t *testing.T, out interface{}) {
				if !proto.Equal(out.(proto.Message), wrapperspb.String("proto payload")) {
					t.Errorf("decoded %v", out)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.serde.Encode(tt.in)
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			out := tt.out()
			if err := DecodeMsg(&Msg{Topic: "t", Payload: data}, tt.serde, out); err != nil {
				t.Fatalf("DecodeMsg() error: %v", err)
			}
			tt.check(t, out)
		})
	}
}

func TestSerdeTypeErrors(t *testing.T) {
	tests := []struct {
		name  string
		serde Serde
		in    interface{}
	}{
		{"binary", BinarySerde, "not bytes"},
		{"protobuf", ProtoSerde, order{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.serde.Encode(tt.in); err == nil {
				t.Error("Encode() succeeded, want error")
			}
			if err := tt.serde.Decode([]byte("x"), &order{}); err == nil {
				t.Error("Decode() succeeded, want error")
			}
		})
	}

	if err := StringSerde.Decode([]byte("x"), new(int)); err == nil {
		t.Error("string Decode() into *int succeeded, want error")
	}
}

func TestNewAvroSerdeInvalidSchema(t *testing.T) {
	if _, err := NewAvroSerde(`{"type":"nope"}`); err == nil {
		t.Error("NewAvroSerde() succeeded, want error")
	}
}

func TestSerdeRegistry(t *testing.T) {
	for _, name := range []string{"binary", "json", "string", "protobuf"} {
		s, err := LookupSerde(name)
		if err != nil {
			t.Fatalf("LookupSerde(%q) error: %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("LookupSerde(%q).Name() = %q", name, s.Name())
		}
	}

	if _, err := LookupSerde("xml"); err == nil {
		t.Error("LookupSerde(xml) succeeded, want error")
	}

	avroSerde, err := NewAvroSerde(orderSchema)
	if err != nil {
		t.Fatalf("NewAvroSerde() error: %v", err)
	}
	RegisterSerde(avroSerde)
	if s, err := LookupSerde("avro"); err != nil || s != Serde(avroSerde) {
		t.Errorf("LookupSerde(avro) = %v, %v", s, err)
	}

	want := []string{"avro", "binary", "json", "protobuf", "string"}
	if got := SerdeNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("SerdeNames() = %v, want %v", got, want)
	}
}

func TestPublishValue(t *testing.T) {
	b := newFakeBroker()
	conn := startConn(t, b)
	bc := b.handshake(t)

	err := conn.PublishValue(context.Background(), "orders.new", order{ID: 1, Item: "a", Price: 2}, JSONSerde, PublishOptions{})
	if err != nil {
		t.Fatalf("PublishValue() error: %v", err)
	}
	f := bc.next(t)
	if string(f.payload) != `{"id":1,"item":"a","price":2}` {
		t.Errorf("payload = %s", f.payload)
	}

	if err := conn.PublishValue(context.Background(), "orders.new", 42, BinarySerde, PublishOptions{}); err == nil {
		t.Error("PublishValue() with a bad value succeeded, want error")
	}
}
