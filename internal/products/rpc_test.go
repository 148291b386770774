package products

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/ariefcatur/go-marketplace/internal/kafka"
	"github.com/ariefcatur/go-marketplace/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tableRegistrar struct {
	replies map[string]kafka.ReplyHandler
	events  map[string]kafka.EventHandler
}

func (r *tableRegistrar) RegisterReplyHandler(topic string, h kafka.ReplyHandler) { r.replies[topic] = h }
func (r *tableRegistrar) RegisterEventHandler(topic string, h kafka.EventHandler) { r.events[topic] = h }

func registered(t *testing.T) (*tableRegistrar, *memLedger) {
	t.Helper()
	svc, _, _ := newTestService(t, widget())
	store := newMemLedger()
	store.put("p1", 1, 0, "s1")
	r := &tableRegistrar{replies: map[string]kafka.ReplyHandler{}, events: map[string]kafka.EventHandler{}}
	Register(r, svc, NewLedger(store, svc.Cache, logging.Discard()))
	return r, store
}

func TestRegisterBindsAllTopics(t *testing.T) {
	r, _ := registered(t)
	assert.Contains(t, r.replies, TopicDetailsBulk)
	assert.Contains(t, r.replies, TopicIDsBySeller)
	assert.Contains(t, r.events, TopicStockDecrease)
	assert.Contains(t, r.events, TopicStockIncrease)
}

func TestStockDecreaseEventBeyondStockIsRejected(t *testing.T) {
	r, store := registered(t)
	env, err := kafka.NewEnvelope("order-service", TopicStockDecrease, "o1",
		StockEvent{OrderID: "o1", Items: []StockItem{{ProductID: "p1", Quantity: 2}}})
	require.NoError(t, err)

	err = r.events[TopicStockDecrease](context.Background(), env)

	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))
	assert.False(t, kafka.Retryable(err))
	assert.Equal(t, 1, store.get("p1").Stock)
}

func TestStockIncreaseEventReleasesStock(t *testing.T) {
	r, store := registered(t)
	env, err := kafka.NewEnvelope("order-service", TopicStockIncrease, "o1",
		StockEvent{Items: []StockItem{{ProductID: "p1", Quantity: 2}}})
	require.NoError(t, err)

	require.NoError(t, r.events[TopicStockIncrease](context.Background(), env))
	assert.Equal(t, 3, store.get("p1").Stock)
}

func TestCancelAfterRejectedDecreaseKeepsStock(t *testing.T) {
	r, store := registered(t)
	items := []StockItem{{ProductID: "p1", Quantity: 2}}
	dec, err := kafka.NewEnvelope("order-service", TopicStockDecrease, "o1", StockEvent{OrderID: "o1", Items: items})
	require.NoError(t, err)
	inc, err := kafka.NewEnvelope("order-service", TopicStockIncrease, "o1", StockEvent{OrderID: "o1", Items: items})
	require.NoError(t, err)

	assert.True(t, errors.Is(r.events[TopicStockDecrease](context.Background(), dec), apperr.ErrInsufficientStock))
	require.NoError(t, r.events[TopicStockIncrease](context.Background(), inc))

	assert.Equal(t, 1, store.get("p1").Stock)
}

func TestIDsBySellerReply(t *testing.T) {
	r, _ := registered(t)

	out, err := r.replies[TopicIDsBySeller](context.Background(), json.RawMessage(`{"sellerId":"s1"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, out)

	_, err = r.replies[TopicDetailsBulk](context.Background(), json.RawMessage(`"not an object"`))
	assert.True(t, errors.Is(err, apperr.ErrBadRequest))
}

type stubRequester struct {
	topic   string
	payload any
	reply   string
}

func (s *stubRequester) Request(ctx context.Context, topic string, payload, out any) error {
	s.topic, s.payload = topic, payload
	return json.Unmarshal([]byte(s.reply), out)
}

func TestUserDirectory(t *testing.T) {
	req := &stubRequester{reply: `[{"id":"s1","email":"seller@shop.io","firstName":"Sam","role":"Seller","isTemp":false}]`}
	sellers, err := UserDirectory{Broker: req}.Sellers(context.Background(), []string{"s1"})
	require.NoError(t, err)

	assert.Equal(t, "user.get.bulk", req.topic)
	assert.Equal(t, map[string][]string{"userIds": {"s1"}}, req.payload)
	require.Len(t, sellers, 1)
	assert.Equal(t, "Sam", sellers[0].FirstName)

	none, err := UserDirectory{Broker: req}.Sellers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
