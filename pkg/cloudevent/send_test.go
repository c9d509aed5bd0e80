package cloudevent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSend(t *testing.T) {
	t.Parallel()

	var gotType, gotSubject string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Ce-Type")
		gotSubject = r.Header.Get("Ce-Subject")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	event := New("tracker.job.state", "eotracker", "J-100", "evt-1", map[string]any{"state": "running"})
	sender := NewSender(5 * time.Second)

	if err := sender.Send(context.Background(), server.URL, event, SendOptions{}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotType != "tracker.job.state" {
		t.Errorf("Ce-Type = %q", gotType)
	}
	if gotSubject != "J-100" {
		t.Errorf("Ce-Subject = %q", gotSubject)
	}

	var decoded CloudEvent
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("body is not a CloudEvent: %v", err)
	}
	if decoded.SpecVersion != "1.0" {
		t.Errorf("specversion = %q", decoded.SpecVersion)
	}
}

func TestSendSigned(t *testing.T) {
	t.Parallel()

	const key = "topsecret"
	var gotSig string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature-256")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	event := New("tracker.job.imported", "eotracker", "J-100", "evt-2", nil)
	sender := NewSender(5 * time.Second)

	if err := sender.Send(context.Background(), server.URL, event, SendOptions{SigningKey: key}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotSig == "" {
		t.Fatal("expected X-Signature-256 header")
	}
	if !Verify(gotBody, key, gotSig) {
		t.Error("signature does not verify against payload")
	}
	if Verify(gotBody, "wrong-key", gotSig) {
		t.Error("signature verified with wrong key")
	}
}

func TestSendErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sender := NewSender(5 * time.Second)
	err := sender.Send(context.Background(), server.URL, New("t", "s", "sub", "id", nil), SendOptions{})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !IsClientError(err) {
		t.Errorf("expected client error, got %v", err)
	}
}
