package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

type mockHandler struct {
	reqCount   int
	notifCount int
	respCount  int
	lastMethod string
	lastID     interface{}
	lastParams json.RawMessage
	lastResult json.RawMessage
	lastErr    *RPCError
}

func (m *mockHandler) HandleRequest(method string, id interface{}, params json.RawMessage) error {
	m.reqCount++
	m.lastMethod = method
	m.lastID = id
	m.lastParams = params
	return nil
}
func (m *mockHandler) HandleResponse(id interface{}, result json.RawMessage, err *RPCError) error {
	m.respCount++
	m.lastID = id
	m.lastResult = result
	m.lastErr = err
	return nil
}
func (m *mockHandler) HandleNotification(method string, params json.RawMessage) error {
	m.notifCount++
	m.lastMethod = method
	m.lastParams = params
	return nil
}

func TestWriteMessage(t *testing.T) {
	p := NewLSPJSONRPCProtocol()
	buf := &bytes.Buffer{}
	msg := CreateMessage("initialize", 1, map[string]any{"capabilities": map[string]any{}})
	if err := p.WriteMessage(buf, msg); err != nil {
		t.Fatalf("WriteMessage error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Content-Length:") {
		t.Fatalf("missing Content-Length header: %q", out)
	}
	parts := bytes.SplitN(buf.Bytes(), []byte("\r\n\r\n"), 2)
	if len(parts) != 2 {
		t.Fatalf("invalid header/body split: %q", out)
	}
	var dec JSONRPCMessage
	if err := json.Unmarshal(parts[1], &dec); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	if dec.Method != "initialize" || dec.ID == nil {
		t.Fatalf("unexpected message decoded: %+v", dec)
	}
}

func TestHandleMessageRoutesResponse(t *testing.T) {
	p := NewLSPJSONRPCProtocol()
	h := &mockHandler{}

	body := []byte(`{"jsonrpc":"2.0","id":7,"result":{"ok":true}}`)
	if err := p.HandleMessage(body, h); err != nil {
		t.Fatalf("HandleMessage error: %v", err)
	}
	if h.respCount != 1 || h.reqCount != 0 || h.notifCount != 0 {
		t.Fatalf("expected one response, got %+v", h)
	}
	if string(h.lastResult) != `{"ok":true}` {
		t.Fatalf("unexpected result payload: %s", h.lastResult)
	}
}

func TestHandleMessageRoutesErrorResponse(t *testing.T) {
	p := NewLSPJSONRPCProtocol()
	h := &mockHandler{}

	body := []byte(`{"jsonrpc":"2.0","id":3,"error":{"code":-32603,"message":"boom"}}`)
	if err := p.HandleMessage(body, h); err != nil {
		t.Fatalf("HandleMessage error: %v", err)
	}
	if h.lastErr == nil || h.lastErr.Code != InternalError || h.lastErr.Message != "boom" {
		t.Fatalf("unexpected error payload: %+v", h.lastErr)
	}
}

func TestHandleMessageRoutesNotification(t *testing.T) {
	p := NewLSPJSONRPCProtocol()
	h := &mockHandler{}

	body := []byte(`{"jsonrpc":"2.0","method":"$/progress","params":{"token":"t"}}`)
	if err := p.HandleMessage(body, h); err != nil {
		t.Fatalf("HandleMessage error: %v", err)
	}
	if h.notifCount != 1 || h.lastMethod != "$/progress" {
		t.Fatalf("notification not routed: %+v", h)
	}
}

func TestHandleMessageRoutesServerRequest(t *testing.T) {
	p := NewLSPJSONRPCProtocol()
	h := &mockHandler{}

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"workspace/configuration","params":{}}`)
	if err := p.HandleMessage(body, h); err != nil {
		t.Fatalf("HandleMessage error: %v", err)
	}
	if h.reqCount != 1 || h.lastMethod != "workspace/configuration" {
		t.Fatalf("server request not routed: %+v", h)
	}
}

func TestHandleMessageMalformed(t *testing.T) {
	p := NewLSPJSONRPCProtocol()
	h := &mockHandler{}

	if err := p.HandleMessage([]byte(`{"jsonrpc":"2.0"}`), h); err == nil {
		t.Fatal("expected error for message with no id and no method")
	}
	if err := p.HandleMessage([]byte(`not json`), h); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if h.reqCount+h.respCount+h.notifCount != 0 {
		t.Fatalf("malformed messages must not be routed: %+v", h)
	}
}

func TestHandleResponsesReadsFramedStream(t *testing.T) {
	p := NewLSPJSONRPCProtocol()
	h := &mockHandler{}

	frame := func(body string) string {
		return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
	}
	stream := frame(`{"jsonrpc":"2.0","id":1,"result":"a"}`) +
		frame(`{"jsonrpc":"2.0","method":"window/logMessage","params":{"type":3,"message":"hi"}}`) +
		frame(`garbage`) +
		frame(`{"jsonrpc":"2.0","id":2,"result":"b"}`)

	stopCh := make(chan struct{})
	if err := p.HandleResponses(strings.NewReader(stream), h, stopCh); err != nil {
		t.Fatalf("HandleResponses error: %v", err)
	}
	if h.respCount != 2 {
		t.Fatalf("expected 2 responses, got %d", h.respCount)
	}
	if h.notifCount != 1 {
		t.Fatalf("expected 1 notification, got %d", h.notifCount)
	}
}

func TestHandleResponsesStops(t *testing.T) {
	p := NewLSPJSONRPCProtocol()
	h := &mockHandler{}

	stopCh := make(chan struct{})
	close(stopCh)
	if err := p.HandleResponses(strings.NewReader("Content-Length: 2\r\n\r\n{}"), h, stopCh); err != nil {
		t.Fatalf("HandleResponses should return nil on stop, got: %v", err)
	}
	if h.respCount+h.reqCount+h.notifCount != 0 {
		t.Fatalf("no message should be handled after stop: %+v", h)
	}
}

func TestRPCErrorIsError(t *testing.T) {
	err := NewRPCError(MethodNotFound, "unknown method", nil)
	if err.Error() != "server error -32601: unknown method" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}
