package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(Settings{
		Name:             "test",
		FailureThreshold: 2,
		Timeout:          time.Hour,
	})
	boom := errors.New("boom")

	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, "open", cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	benign := errors.New("benign")
	cb := NewCircuitBreaker(Settings{
		Name:             "test",
		FailureThreshold: 1,
		IsSuccessful:     func(err error) bool { return err == nil || errors.Is(err, benign) },
	})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return benign }), benign)
	}
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(Settings{
		Name:             "test",
		FailureThreshold: 1,
		Timeout:          time.Hour,
		OnStateChange: func(name, from, to string) {
			transitions = append(transitions, from+"->"+to)
		},
	})

	_ = cb.Execute(func() error { return errors.New("x") })
	assert.Equal(t, []string{"closed->open"}, transitions)
}
