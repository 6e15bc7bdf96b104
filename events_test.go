package sentinel_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-sentinel"
	"github.com/stretchr/testify/assert"
)

func TestMultiSinkPublishesToEverySink(t *testing.T) {
	var got []string
	record := func(tag string) sentinel.EventSink {
		return sentinel.EventSinkFunc(func(ctx context.Context, e sentinel.Event) error {
			got = append(got, tag+":"+string(e.Name))
			return nil
		})
	}
	failing := sentinel.EventSinkFunc(func(context.Context, sentinel.Event) error {
		return errors.New("bus down")
	})

	sink := sentinel.MultiSink{record("audit"), nil, failing, record("mail")}
	err := sink.Publish(context.Background(), sentinel.Event{Name: sentinel.EventUserRegistered})

	assert.EqualError(t, err, "bus down")
	assert.Equal(t, []string{"audit:user.registered", "mail:user.registered"}, got)
}

func TestNilEventSinkFunc(t *testing.T) {
	var fn sentinel.EventSinkFunc
	assert.NoError(t, fn.Publish(context.Background(), sentinel.Event{}))
	assert.NoError(t, sentinel.MultiSink{}.Publish(context.Background(), sentinel.Event{}))
}
