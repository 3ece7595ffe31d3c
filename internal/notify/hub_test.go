package notify_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-progress/internal/notify"
)

func TestHub_SubscribeAndAppend(t *testing.T) {
	log := notify.NewMemoryLog()
	hub := notify.NewHub(log)
	ctx := t.Context()

	feed, cancel := hub.Subscribe("teacher-1")
	other, cancelOther := hub.Subscribe("teacher-2")
	defer cancelOther()

	if hub.Subscribers("teacher-1") != 1 {
		t.Fatalf("Subscribers() = %d, want 1", hub.Subscribers("teacher-1"))
	}

	err := hub.Append(ctx, notify.Activity{
		TeacherID: "teacher-1",
		StudentID: "student-1",
		Kind:      notify.KindMaterialsViewed,
		Topic:     "polynomial-functions",
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	select {
	case got := <-feed:
		if got.Kind != notify.KindMaterialsViewed || got.ID == "" {
			t.Errorf("received %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive activity")
	}

	select {
	case got := <-other:
		t.Errorf("other teacher received %+v", got)
	default:
	}

	if len(log.Activities()) != 1 {
		t.Errorf("underlying log has %d entries, want 1", len(log.Activities()))
	}

	cancel()
	cancel()
	if hub.Subscribers("teacher-1") != 0 {
		t.Errorf("Subscribers() after cancel = %d, want 0", hub.Subscribers("teacher-1"))
	}
	if _, ok := <-feed; ok {
		t.Error("feed still open after cancel")
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := notify.NewHub(nil)
	ctx := t.Context()

	_, cancel := hub.Subscribe("teacher-1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 100 {
			_ = hub.Append(ctx, notify.Activity{TeacherID: "teacher-1", Kind: notify.KindQuizSubmitted})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Append() blocked on a subscriber that never reads")
	}
}

func TestHub_AppendValidation(t *testing.T) {
	hub := notify.NewHub(nil)
	if err := hub.Append(t.Context(), notify.Activity{Kind: notify.KindQuizSubmitted}); err == nil {
		t.Error("Append() without teacher should error")
	}
}

func TestHub_ServeWS(t *testing.T) {
	hub := notify.NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "teacher-1")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	// Wait for the server side to register before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("teacher-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	err = hub.Append(ctx, notify.Activity{
		TeacherID: "teacher-1",
		StudentID: "student-1",
		Kind:      notify.KindQuizSubmitted,
		Message:   "Aina scored 4/4",
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	var got notify.Activity
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("wsjson.Read() error = %v", err)
	}
	if got.Message != "Aina scored 4/4" || got.StudentID != "student-1" {
		t.Errorf("received %+v", got)
	}

	conn.Close(websocket.StatusNormalClosure, "")
	deadline = time.Now().Add(2 * time.Second)
	for hub.Subscribers("teacher-1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not released after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
