// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"sync"
	"testing"
)

// =============================================================================
// ROLE TESTS
// =============================================================================

func TestRole_DisplayName(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleUser, "You"},
		{RoleAssistant, "Assistant"},
		{Role("other"), "other"},
	}

	for _, tc := range tests {
		t.Run(string(tc.role), func(t *testing.T) {
			if got := tc.role.DisplayName(); got != tc.want {
				t.Errorf("DisplayName() = %q, want %q", got, tc.want)
			}
		})
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_Preview(t *testing.T) {
	tests := []struct {
		name    string
		content string
		maxLen  int
		want    string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"unicode", "héllo wörld", 8, "héllo..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMessage(RoleUser, tc.content)
			if got := m.Preview(tc.maxLen); got != tc.want {
				t.Errorf("Preview(%d) = %q, want %q", tc.maxLen, got, tc.want)
			}
		})
	}
}

func TestMessage_ImageCount(t *testing.T) {
	m := NewMessage(RoleUser, "look")
	m.Parts = []ContentPart{
		TextPart("look"),
		ImagePart("data:image/png;base64,AAAA"),
		ImagePart("data:image/jpeg;base64,BBBB"),
	}
	if !m.IsMultipart() {
		t.Fatal("expected multipart message")
	}
	if got := m.ImageCount(); got != 2 {
		t.Errorf("ImageCount() = %d, want 2", got)
	}
}

func TestAttachment_IsImage(t *testing.T) {
	if !(Attachment{MediaType: "image/png"}).IsImage() {
		t.Error("image/png should be an image")
	}
	if (Attachment{MediaType: "application/pdf"}).IsImage() {
		t.Error("application/pdf should not be an image")
	}
}

// =============================================================================
// TRANSCRIPT TESTS
// =============================================================================

func TestTranscript_AppendOrder(t *testing.T) {
	tr := NewTranscript()
	tr.AppendUser("one", nil, nil)
	tr.AppendAssistant(NewMessage(RoleAssistant, "two"))
	tr.AppendUser("three", nil, nil)

	msgs := tr.Messages()
	if len(msgs) != 3 {
		t.Fatalf("Len = %d, want 3", len(msgs))
	}
	want := []string{"one", "two", "three"}
	for i, m := range msgs {
		if m.Content != want[i] {
			t.Errorf("message %d = %q, want %q", i, m.Content, want[i])
		}
	}
	if msgs[1].Role != RoleAssistant {
		t.Errorf("message 1 role = %s, want assistant", msgs[1].Role)
	}
}

func TestTranscript_MessagesAreCopies(t *testing.T) {
	tr := NewTranscript()
	tr.AppendUser("hi", []ContentPart{TextPart("hi")}, nil)

	msgs := tr.Messages()
	msgs[0].Content = "mutated"
	msgs[0].Role = RoleAssistant
	msgs[0].Parts[0].Text = "mutated"

	last, ok := tr.Last()
	if !ok {
		t.Fatal("Last() returned false")
	}
	if last.Content != "hi" || last.Role != RoleUser || last.Parts[0].Text != "hi" {
		t.Errorf("transcript was mutated through a copy: %+v", last)
	}
}

func TestStreamTarget_Update(t *testing.T) {
	tr := NewTranscript()
	tr.AppendUser("Hi", nil, nil)

	target, err := tr.BeginAssistant()
	if err != nil {
		t.Fatalf("BeginAssistant() error = %v", err)
	}
	if !tr.Streaming() {
		t.Error("Streaming() should be true while a target is open")
	}

	for _, s := range []string{"He", "Hello", "Hello!"} {
		if err := target.Update(s); err != nil {
			t.Fatalf("Update(%q) error = %v", s, err)
		}
	}
	target.Close()

	msgs := tr.Messages()
	if len(msgs) != 2 {
		t.Fatalf("Len = %d, want 2", len(msgs))
	}
	if msgs[1].Content != "Hello!" || msgs[1].Role != RoleAssistant {
		t.Errorf("assistant message = %+v", msgs[1])
	}
	if msgs[1].Streaming {
		t.Error("closed message should not be streaming")
	}
	if tr.Streaming() {
		t.Error("Streaming() should be false after Close")
	}
}

func TestStreamTarget_RejectsClosedWrites(t *testing.T) {
	tr := NewTranscript()
	target, _ := tr.BeginAssistant()
	_ = target.Update("done")
	target.Close()
	target.Close()

	if err := target.Update("late"); !errors.Is(err, ErrTargetClosed) {
		t.Errorf("Update after Close error = %v, want ErrTargetClosed", err)
	}
	if last, _ := tr.Last(); last.Content != "done" {
		t.Errorf("content = %q, want %q", last.Content, "done")
	}
}

func TestStreamTarget_RejectsWhenNotLast(t *testing.T) {
	tr := NewTranscript()
	target, _ := tr.BeginAssistant()
	tr.AppendUser("interleaved", nil, nil)

	if err := target.Update("should not land"); !errors.Is(err, ErrNotLast) {
		t.Fatalf("Update error = %v, want ErrNotLast", err)
	}
	msgs := tr.Messages()
	if msgs[0].Content != "" || msgs[1].Content != "interleaved" {
		t.Errorf("unexpected transcript after rejected write: %+v", msgs)
	}
}

func TestTranscript_SingleOpenTarget(t *testing.T) {
	tr := NewTranscript()
	first, err := tr.BeginAssistant()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.BeginAssistant(); !errors.Is(err, ErrStreamInFlight) {
		t.Errorf("second BeginAssistant error = %v, want ErrStreamInFlight", err)
	}
	first.Close()
	if _, err := tr.BeginAssistant(); err != nil {
		t.Errorf("BeginAssistant after Close error = %v", err)
	}
}

func TestStreamTarget_Fail(t *testing.T) {
	tr := NewTranscript()
	tr.AppendUser("Hi", nil, nil)
	target, _ := tr.BeginAssistant()
	_ = target.Update("partial")

	if err := target.Fail("Sorry"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	msgs := tr.Messages()
	if len(msgs) != 2 {
		t.Fatalf("Len = %d, want 2 (failure replaces the placeholder)", len(msgs))
	}
	if msgs[1].Content != "Sorry" || !msgs[1].Error {
		t.Errorf("failure message = %+v", msgs[1])
	}
	if !target.Closed() {
		t.Error("target should be closed after Fail")
	}
}

func TestTranscript_History(t *testing.T) {
	tr := NewTranscript()
	tr.AppendUser("q1", nil, nil)
	tr.AppendError("Sorry")
	tr.AppendUser("q2", nil, nil)
	target, _ := tr.BeginAssistant()

	hist := tr.History()
	if len(hist) != 2 {
		t.Fatalf("History len = %d, want 2", len(hist))
	}
	if hist[0].Content != "q1" || hist[1].Content != "q2" {
		t.Errorf("History = %+v", hist)
	}
	target.Close()
}

func TestTranscript_ConcurrentReads(t *testing.T) {
	tr := NewTranscript()
	target, _ := tr.BeginAssistant()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = tr.Messages()
				_ = tr.Len()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		_ = target.Update("x")
	}
	wg.Wait()
	target.Close()
}
