package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type stubConverse struct {
	gotInput *bedrockruntime.ConverseInput
	out      *bedrockruntime.ConverseOutput
	err      error
}

func (s *stubConverse) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.gotInput = params
	return s.out, s.err
}

func converseTextOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
			},
		},
		StopReason: brtypes.StopReasonEndTurn,
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(10),
			OutputTokens: aws.Int32(5),
			TotalTokens:  aws.Int32(15),
		},
	}
}

func TestBedrockComplete(t *testing.T) {
	stub := &stubConverse{out: converseTextOutput(" Olá! ")}
	c := NewBedrockClient(stub)

	resp, err := c.Complete(context.Background(), Request{
		Model:       "anthropic.claude-3-haiku-20240307-v1:0",
		System:      []string{"seja breve"},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "oi"}},
		MaxTokens:   200,
		Temperature: 0.4,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "Olá!" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.StopReason != string(brtypes.StopReasonEndTurn) {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v", resp.Usage)
	}

	if len(stub.gotInput.System) != 1 || len(stub.gotInput.Messages) != 1 {
		t.Errorf("input = %+v", stub.gotInput)
	}
	if stub.gotInput.InferenceConfig == nil || *stub.gotInput.InferenceConfig.MaxTokens != 200 {
		t.Errorf("inference config = %+v", stub.gotInput.InferenceConfig)
	}
}

func TestBedrockCompleteErrors(t *testing.T) {
	c := NewBedrockClient(&stubConverse{err: errors.New("throttled")})
	if _, err := c.Complete(context.Background(), Request{
		Model:    "m",
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "oi"}},
	}); err == nil {
		t.Error("expected provider error")
	}

	c = NewBedrockClient(&stubConverse{out: &bedrockruntime.ConverseOutput{}})
	if _, err := c.Complete(context.Background(), Request{
		Model:    "m",
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "oi"}},
	}); err == nil {
		t.Error("expected missing-output error")
	}

	c = NewBedrockClient(&stubConverse{})
	if _, err := c.Complete(context.Background(), Request{}); err == nil {
		t.Error("expected missing-model error")
	}
}
