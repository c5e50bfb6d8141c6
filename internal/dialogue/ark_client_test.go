package dialogue

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type fakeChatModel struct {
	replies []*schema.Message
	errs    []error
	calls   int
	input   []*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	i := f.calls
	f.calls++
	f.input = input
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return nil, nil
}

func TestArkClient_NextUtterance(t *testing.T) {
	fake := &fakeChatModel{replies: []*schema.Message{schema.AssistantMessage("Was it whole milk?", nil)}}
	client := newArkClient(testConfig(""), fake)

	reply, err := client.NextUtterance(context.Background(), []Message{
		{Role: RoleUser, Text: "Cereal with milk"},
		{Role: RoleAssistant, Text: "How much cereal?"},
		{Role: RoleUser, Text: "One cup"},
	})
	if err != nil {
		t.Fatalf("NextUtterance failed: %v", err)
	}
	if reply != "Was it whole milk?" {
		t.Errorf("Unexpected reply %q", reply)
	}

	if len(fake.input) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(fake.input))
	}
	if fake.input[0].Role != schema.System || fake.input[0].Content != SystemPrompt {
		t.Errorf("Expected system prompt first, got %+v", fake.input[0])
	}
	if fake.input[2].Role != schema.Assistant || fake.input[3].Role != schema.User {
		t.Errorf("Roles not preserved: %v, %v", fake.input[2].Role, fake.input[3].Role)
	}
}

func TestArkClient_APIErrorNotRetried(t *testing.T) {
	fake := &fakeChatModel{errs: []error{errors.New("model not found")}}

	_, err := newArkClient(testConfig(""), fake).NextUtterance(context.Background(), []Message{{Role: RoleUser, Text: "hi"}})

	var dErr *Error
	if !errors.As(err, &dErr) || dErr.Kind != KindAPI || dErr.Provider != arkProvider {
		t.Fatalf("Expected ark api error, got %v", err)
	}
	if fake.calls != 1 {
		t.Errorf("Expected 1 call, got %d", fake.calls)
	}
}

func TestArkClient_TransportErrorRetried(t *testing.T) {
	fake := &fakeChatModel{
		errs:    []error{context.DeadlineExceeded, nil},
		replies: []*schema.Message{nil, schema.AssistantMessage("Any toppings?", nil)},
	}

	reply, err := newArkClient(testConfig(""), fake).NextUtterance(context.Background(), []Message{{Role: RoleUser, Text: "Pizza"}})
	if err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if reply != "Any toppings?" || fake.calls != 2 {
		t.Errorf("Expected second attempt reply, got %q after %d calls", reply, fake.calls)
	}
}

func TestArkClient_NilMessage(t *testing.T) {
	fake := &fakeChatModel{}

	_, err := newArkClient(testConfig(""), fake).NextUtterance(context.Background(), []Message{{Role: RoleUser, Text: "hi"}})

	var dErr *Error
	if !errors.As(err, &dErr) || dErr.Kind != KindEmptyResponse {
		t.Fatalf("Expected empty_response error, got %v", err)
	}
}
