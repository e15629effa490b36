package services

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/jwebster45206/closed-ai/pkg/chat"
	"github.com/jwebster45206/closed-ai/pkg/stream"
)

func TestMockStream_ParsesAsDeltas(t *testing.T) {
	r := stream.NewReader(MockStream("The ", "fog | ", "lifts."))

	var got string
	for {
		msg, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		d, err := stream.Delta(msg)
		if err != nil {
			t.Fatalf("failed to decode %q: %v", msg, err)
		}
		got += d
	}

	if got != "The fog | lifts." {
		t.Errorf("Expected reassembled text, got %q", got)
	}
}

func TestMockLLMAPI_RecordsCalls(t *testing.T) {
	m := NewMockLLMAPI()
	ctx := context.Background()
	msgs := []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "look"}}

	body, err := m.StreamChat(ctx, msgs, ChatOptions{Temperature: 0.7})
	if err != nil {
		t.Fatalf("StreamChat failed: %v", err)
	}
	_ = body.Close()

	if _, err := m.Chat(ctx, msgs, ChatOptions{}); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if _, err := m.GenerateImage(ctx, "a cave"); err != nil {
		t.Fatalf("GenerateImage failed: %v", err)
	}
	verdicts, err := m.VerifyThemes(ctx, []string{"a", "b"})
	if err != nil || len(verdicts) != 2 || !verdicts[0] || !verdicts[1] {
		t.Fatalf("unexpected verdicts %v, %v", verdicts, err)
	}

	if len(m.GetStreamChatCalls()) != 1 || m.GetStreamChatCalls()[0].Options.Temperature != 0.7 {
		t.Errorf("stream call not recorded: %+v", m.GetStreamChatCalls())
	}
	if len(m.GetChatCalls()) != 1 {
		t.Errorf("chat call not recorded")
	}
	if calls := m.GetGenerateImageCalls(); len(calls) != 1 || calls[0] != "a cave" {
		t.Errorf("image call not recorded: %v", calls)
	}
}

func TestMockLLMAPI_Errors(t *testing.T) {
	m := NewMockLLMAPI()
	boom := errors.New("boom")
	m.SetStreamError(boom)
	m.SetImageError(boom)

	if _, err := m.StreamChat(context.Background(), nil, ChatOptions{}); !errors.Is(err, boom) {
		t.Errorf("expected stream error, got %v", err)
	}
	if _, err := m.GenerateImage(context.Background(), "x"); !errors.Is(err, boom) {
		t.Errorf("expected image error, got %v", err)
	}
}
