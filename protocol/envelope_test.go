package protocol

import (
	"testing"
)

func TestParseEnvelope_Message(t *testing.T) {
	raw := []byte(`{"type":"message","data":{"id":12,"role":"user","msg_type":"user_input","content":"list suppliers","created_at":"2026-02-10T09:15:00"}}`)
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	me, ok := env.(MessageEnvelope)
	if !ok {
		t.Fatalf("expected MessageEnvelope, got %T", env)
	}
	if me.Message.ID != 12 {
		t.Errorf("expected id 12, got %d", me.Message.ID)
	}
	if me.Message.Role != RoleUser {
		t.Errorf("expected role user, got %q", me.Message.Role)
	}
	if me.Message.Kind != KindUserInput {
		t.Errorf("expected kind user_input, got %q", me.Message.Kind)
	}
	if me.Message.Content != "list suppliers" {
		t.Errorf("unexpected content: %q", me.Message.Content)
	}
}

func TestParseEnvelope_MessageMetadata(t *testing.T) {
	raw := []byte(`{"type":"message","data":{"id":3,"role":"tool","msg_type":"action","content":"query_db","metadata":{"tool_name":"query_db","summary":"SELECT ..."}}}`)
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	me, ok := env.(MessageEnvelope)
	if !ok {
		t.Fatalf("expected MessageEnvelope, got %T", env)
	}
	if me.Message.Metadata["tool_name"] != "query_db" {
		t.Errorf("unexpected metadata: %v", me.Message.Metadata)
	}
}

func TestParseEnvelope_Token(t *testing.T) {
	raw := []byte(`{"type":"token","data":{"content":"Hel","msg_id":5,"role":"assistant","msg_type":"text"}}`)
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	te, ok := env.(TokenEnvelope)
	if !ok {
		t.Fatalf("expected TokenEnvelope, got %T", env)
	}
	if te.MsgID != 5 {
		t.Errorf("expected msg_id 5, got %d", te.MsgID)
	}
	if te.Content != "Hel" {
		t.Errorf("expected content 'Hel', got %q", te.Content)
	}
	if te.Role != RoleAssistant {
		t.Errorf("expected role assistant, got %q", te.Role)
	}
}

func TestParseEnvelope_TokenDone(t *testing.T) {
	raw := []byte(`{"type":"token_done","data":{"msg_id":5,"full_content":"Hello","created_at":"T"}}`)
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	td, ok := env.(TokenDoneEnvelope)
	if !ok {
		t.Fatalf("expected TokenDoneEnvelope, got %T", env)
	}
	if td.FullContent != "Hello" {
		t.Errorf("expected full content 'Hello', got %q", td.FullContent)
	}
	if td.CreatedAt != "T" {
		t.Errorf("expected created_at 'T', got %q", td.CreatedAt)
	}
}

func TestParseEnvelope_DoneWithTitle(t *testing.T) {
	raw := []byte(`{"type":"done","data":{"title":"Supplier audit"}}`)
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	de, ok := env.(DoneEnvelope)
	if !ok {
		t.Fatalf("expected DoneEnvelope, got %T", env)
	}
	if de.Title != "Supplier audit" {
		t.Errorf("unexpected title: %q", de.Title)
	}
}

func TestParseEnvelope_DoneEmptyData(t *testing.T) {
	raw := []byte(`{"type":"done","data":{}}`)
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	de, ok := env.(DoneEnvelope)
	if !ok {
		t.Fatalf("expected DoneEnvelope, got %T", env)
	}
	if de.Title != "" {
		t.Errorf("expected empty title, got %q", de.Title)
	}
}

func TestParseEnvelope_Error(t *testing.T) {
	raw := []byte(`{"type":"error","data":{"detail":"agent crashed"}}`)
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ee, ok := env.(ErrorEnvelope)
	if !ok {
		t.Fatalf("expected ErrorEnvelope, got %T", env)
	}
	if ee.Detail != "agent crashed" {
		t.Errorf("unexpected detail: %q", ee.Detail)
	}
}

func TestParseEnvelope_UnknownType(t *testing.T) {
	raw := []byte(`{"type":"heartbeat","data":{}}`)
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error for unknown type: %v", err)
	}
	if env != nil {
		t.Errorf("expected nil for unknown type, got %T", env)
	}
}

func TestParseEnvelope_InvalidJSON(t *testing.T) {
	_, err := ParseEnvelope([]byte(`not json`))
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParseEnvelope_LegacyBareMessage(t *testing.T) {
	raw := []byte(`{"id":7,"role":"assistant","msg_type":"text","content":"done already"}`)
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	me, ok := env.(MessageEnvelope)
	if !ok {
		t.Fatalf("expected MessageEnvelope from legacy frame, got %T", env)
	}
	if me.Message.ID != 7 {
		t.Errorf("expected id 7, got %d", me.Message.ID)
	}
}

func TestParseEnvelope_LegacyMissingRole(t *testing.T) {
	raw := []byte(`{"id":7,"content":"no role"}`)
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env != nil {
		t.Errorf("expected drop for legacy frame without role, got %T", env)
	}
}

func TestParseEnvelope_LegacyMissingID(t *testing.T) {
	raw := []byte(`{"role":"assistant","content":"no id"}`)
	env, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env != nil {
		t.Errorf("expected drop for legacy frame without id, got %T", env)
	}
}
