package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/segmentio/kafka-go"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/hossain-rashid/Smartshop/internal/domain"
)

var fixedOccurredAt = time.Date(2024, 5, 10, 9, 30, 1, 0, time.UTC)

func testOptions() []Option {
	return []Option{
		WithClock(func() time.Time { return fixedOccurredAt }),
		WithIDGenerator(func() string { return "01HXEVENT" }),
	}
}

func testOrder() domain.OrderRecord {
	return domain.OrderRecord{
		OrderID: 1715333400123,
		Date:    "2024-05-10T09:30:00.123Z",
		Items: []domain.LineItem{
			{ID: 1, Title: "Backpack", Price: domain.NewMoney(250, 0), Quantity: 2},
			{ID: 7, Title: "Ring", Price: domain.NewMoney(9, 99), Quantity: 1},
		},
		Totals: domain.TotalsBreakdown{Total: domain.NewMoney(510, 0)},
	}
}

func assertPayload(t *testing.T, data []byte) {
	t.Helper()
	var payload OrderPlaced
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	want := OrderPlaced{
		EventID:    "01HXEVENT",
		Type:       OrderPlacedType,
		OrderID:    1715333400123,
		Date:       "2024-05-10T09:30:00.123Z",
		Total:      domain.NewMoney(510, 0),
		ItemCount:  3,
		OccurredAt: fixedOccurredAt,
	}
	if !payload.OccurredAt.Equal(want.OccurredAt) {
		t.Fatalf("unexpected occurredAt %s", payload.OccurredAt)
	}
	payload.OccurredAt = want.OccurredAt
	if payload != want {
		t.Fatalf("unexpected payload %#v", payload)
	}
}

func TestPubSubPublisherPublishesOrderPlaced(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "smartshop-orders")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubPublisher(topic, testOptions()...)
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}
	defer publisher.Close()

	if err := publisher.PublishOrderPlaced(ctx, testOrder()); err != nil {
		t.Fatalf("PublishOrderPlaced: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	assertPayload(t, messages[0].Data)
	if attr := messages[0].Attributes["orderId"]; attr != "1715333400123" {
		t.Fatalf("expected orderId attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["eventType"]; attr != OrderPlacedType {
		t.Fatalf("expected eventType attribute, got %q", attr)
	}
}

func TestNewPubSubPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherWritesKeyedMessage(t *testing.T) {
	writer := &fakeKafkaWriter{}
	publisher, err := NewKafkaPublisher(writer, testOptions()...)
	if err != nil {
		t.Fatalf("NewKafkaPublisher: %v", err)
	}

	if err := publisher.PublishOrderPlaced(context.Background(), testOrder()); err != nil {
		t.Fatalf("PublishOrderPlaced: %v", err)
	}
	if len(writer.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.msgs))
	}
	msg := writer.msgs[0]
	if string(msg.Key) != "1715333400123" {
		t.Fatalf("expected order id key, got %q", msg.Key)
	}
	assertPayload(t, msg.Value)
	if !msg.Time.Equal(fixedOccurredAt) {
		t.Fatalf("unexpected message time %s", msg.Time)
	}

	if err := publisher.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer closed, err %v", err)
	}
}

func TestKafkaPublisherAddsStaticAttributes(t *testing.T) {
	writer := &fakeKafkaWriter{}
	opts := append(testOptions(), WithAttributes(map[string]string{
		"environment": "prod",
		"orderId":     "overridden",
	}))
	publisher, err := NewKafkaPublisher(writer, opts...)
	if err != nil {
		t.Fatalf("NewKafkaPublisher: %v", err)
	}
	if err := publisher.PublishOrderPlaced(context.Background(), testOrder()); err != nil {
		t.Fatalf("PublishOrderPlaced: %v", err)
	}

	headers := make(map[string]string)
	for _, header := range writer.msgs[0].Headers {
		headers[header.Key] = string(header.Value)
	}
	if headers["environment"] != "prod" {
		t.Fatalf("expected environment header, got %#v", headers)
	}
	if headers["orderId"] != "1715333400123" {
		t.Fatalf("expected event orderId to win, got %q", headers["orderId"])
	}
	if len(headers) != 4 {
		t.Fatalf("expected 4 headers, got %#v", headers)
	}
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	writeErr := errors.New("leader not available")
	publisher, err := NewKafkaPublisher(&fakeKafkaWriter{err: writeErr})
	if err != nil {
		t.Fatalf("NewKafkaPublisher: %v", err)
	}
	if err := publisher.PublishOrderPlaced(context.Background(), testOrder()); !errors.Is(err, writeErr) {
		t.Fatalf("expected wrapped write error, got %v", err)
	}
}

func TestNewKafkaWriterValidates(t *testing.T) {
	if _, err := NewKafkaWriter([]string{" "}, "orders"); err == nil {
		t.Fatalf("expected error for empty brokers")
	}
	if _, err := NewKafkaWriter([]string{"localhost:9092"}, " "); err == nil {
		t.Fatalf("expected error for empty topic")
	}
	writer, err := NewKafkaWriter([]string{"localhost:9092", ""}, "orders")
	if err != nil {
		t.Fatalf("NewKafkaWriter: %v", err)
	}
	if writer.Topic != "orders" {
		t.Fatalf("unexpected topic %q", writer.Topic)
	}
}

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSPublisherSendsMessage(t *testing.T) {
	client := &fakeSQS{}
	publisher, err := NewSQSPublisher(client, " https://sqs.ap-south-1.amazonaws.com/123/orders ", testOptions()...)
	if err != nil {
		t.Fatalf("NewSQSPublisher: %v", err)
	}

	if err := publisher.PublishOrderPlaced(context.Background(), testOrder()); err != nil {
		t.Fatalf("PublishOrderPlaced: %v", err)
	}
	if len(client.inputs) != 1 {
		t.Fatalf("expected 1 send, got %d", len(client.inputs))
	}
	input := client.inputs[0]
	if *input.QueueUrl != "https://sqs.ap-south-1.amazonaws.com/123/orders" {
		t.Fatalf("unexpected queue url %q", *input.QueueUrl)
	}
	assertPayload(t, []byte(*input.MessageBody))
	attr, ok := input.MessageAttributes["eventId"]
	if !ok || *attr.StringValue != "01HXEVENT" || *attr.DataType != "String" {
		t.Fatalf("unexpected eventId attribute %+v", attr)
	}
}

func TestSQSPublisherValidatesAndWrapsErrors(t *testing.T) {
	if _, err := NewSQSPublisher(nil, "queue"); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := NewSQSPublisher(&fakeSQS{}, " "); err == nil {
		t.Fatalf("expected error for empty queue url")
	}

	sendErr := errors.New("throttled")
	publisher, err := NewSQSPublisher(&fakeSQS{err: sendErr}, "queue")
	if err != nil {
		t.Fatalf("NewSQSPublisher: %v", err)
	}
	if err := publisher.PublishOrderPlaced(context.Background(), testOrder()); !errors.Is(err, sendErr) {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}
