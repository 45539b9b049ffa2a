package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

type capturedCall struct {
	path  string
	token string
	body  resultBody
}

func TestHandlePostsStartedThenCompleted(t *testing.T) {
	var calls []capturedCall

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		payload, _ := io.ReadAll(r.Body)
		var body resultBody
		if err := json.Unmarshal(payload, &body); err != nil {
			t.Errorf("decode callback body: %v", err)
		}
		calls = append(calls, capturedCall{
			path:  r.URL.Path,
			token: r.Header.Get("X-Callback-Token"),
			body:  body,
		})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProcessor(srv.URL, "worker-token", zap.NewNop())
	ev := events.SQSEvent{
		Records: []events.SQSMessage{
			{Body: `{"report_id":"rep-1","product_code":"basic"}`},
		},
	}
	if err := p.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("got %d callback calls, want 2", len(calls))
	}
	for i, call := range calls {
		if call.path != "/internal/reports/rep-1/result" {
			t.Errorf("call %d path = %q", i, call.path)
		}
		if call.token != "worker-token" {
			t.Errorf("call %d token = %q", i, call.token)
		}
	}
	if calls[0].body.Outcome != "started" {
		t.Errorf("first outcome = %q, want started", calls[0].body.Outcome)
	}

	final := calls[1].body
	if final.Outcome != "completed" {
		t.Fatalf("final outcome = %q, want completed", final.Outcome)
	}
	artifact, err := base64.StdEncoding.DecodeString(final.ArtifactB64)
	if err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	var content struct {
		ReportID    string `json:"report_id"`
		ProductCode string `json:"product_code"`
	}
	if err := json.Unmarshal(artifact, &content); err != nil {
		t.Fatalf("decode artifact content: %v", err)
	}
	if content.ReportID != "rep-1" || content.ProductCode != "basic" {
		t.Errorf("artifact content = %+v", content)
	}
}

func TestHandleArtifactIsDeterministic(t *testing.T) {
	msg := TaskMessage{ReportID: "rep-1", ProductCode: "basic"}

	first, err := buildArtifact(msg)
	if err != nil {
		t.Fatalf("buildArtifact: %v", err)
	}
	second, err := buildArtifact(msg)
	if err != nil {
		t.Fatalf("buildArtifact: %v", err)
	}
	if string(first) != string(second) {
		t.Error("repeated builds produced different artifacts")
	}
}

func TestHandleInvalidMessage(t *testing.T) {
	p := NewProcessor("http://unused", "tok", zap.NewNop())

	ev := events.SQSEvent{Records: []events.SQSMessage{{Body: "not json"}}}
	if err := p.Handle(context.Background(), ev); err == nil {
		t.Fatal("Handle accepted an unparseable message")
	}

	ev = events.SQSEvent{Records: []events.SQSMessage{{Body: `{"product_code":"basic"}`}}}
	if err := p.Handle(context.Background(), ev); err == nil {
		t.Fatal("Handle accepted a message without report_id")
	}
}

func TestHandleCallbackRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewProcessor(srv.URL, "wrong-token", zap.NewNop())
	ev := events.SQSEvent{
		Records: []events.SQSMessage{
			{Body: `{"report_id":"rep-1","product_code":"basic"}`},
		},
	}
	if err := p.Handle(context.Background(), ev); err == nil {
		t.Fatal("Handle succeeded despite rejected callback")
	}
}
