package cluster

import (
	"bytes"
	"reflect"
	"testing"
)

func TestMessage_RoundTrip_Heartbeat(t *testing.T) {
	m := Message{Type: HEARTBEAT, Members: []string{"10.0.0.1:9000"}}
	enc := Encode(m)
	got, err := Decode(bytes.NewReader(enc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, m) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestMessage_RoundTrip_NodelistMultiMember(t *testing.T) {
	m := Message{Type: NODELIST, Members: []string{"10.0.0.1:9000", "10.0.0.2:9001", "10.0.0.3:9002"}}
	got, err := Decode(bytes.NewReader(Encode(m)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, m) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestMessage_RoundTrip_EmptyMembers(t *testing.T) {
	m := Message{Type: GETLIST, Members: []string{}}
	got, err := Decode(bytes.NewReader(Encode(m)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != GETLIST || len(got.Members) != 0 {
		t.Fatalf("unexpected decode result: %+v", got)
	}
}

func TestMessage_DecodeTruncated_IsError(t *testing.T) {
	m := Message{Type: HEARTBEAT, Members: []string{"10.0.0.1:9000"}}
	enc := Encode(m)
	_, err := Decode(bytes.NewReader(enc[:len(enc)-2]))
	if err == nil {
		t.Fatal("expected error decoding truncated message")
	}
}
