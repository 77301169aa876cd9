package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestPublisher_Publish(t *testing.T) {
	q := &fakeSQS{}
	p := NewPublisher(q, "https://sqs.local/webhooks")

	err := p.Publish(context.Background(), `{"id":"evt_1"}`, map[string]string{
		"event_id": "evt_1",
		"order_id": "",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.inputs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(q.inputs))
	}
	in := q.inputs[0]
	if *in.QueueUrl != "https://sqs.local/webhooks" || *in.MessageBody != `{"id":"evt_1"}` {
		t.Fatalf("unexpected input: %+v", in)
	}
	if len(in.MessageAttributes) != 1 {
		t.Fatalf("empty attributes should be dropped, got %v", in.MessageAttributes)
	}
	if got := *in.MessageAttributes["event_id"].StringValue; got != "evt_1" {
		t.Fatalf("event_id attribute = %s", got)
	}
}

func TestPublisher_PublishError(t *testing.T) {
	boom := errors.New("throttled")
	p := NewPublisher(&fakeSQS{err: boom}, "q")
	if err := p.Publish(context.Background(), "{}", nil); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
