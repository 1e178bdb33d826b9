package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vgarvardt/gue/v5"
)

type testMsg struct {
	ID string `json:"id"`
}

type testData struct {
	calls int
	got   string
	err   error
}

func testHandler(ctx context.Context, m *testMsg, data *testData) error {
	data.calls++
	data.got = m.ID
	return data.err
}

func TestCreate_OK(t *testing.T) {
	data := &testData{}
	f := Create(data, testHandler, DefaultOpts[testMsg]())
	err := f(context.Background(), &gue.Job{Args: []byte(`{"id":"olia"}`)})
	assert.Nil(t, err)
	assert.Equal(t, 1, data.calls)
	assert.Equal(t, "olia", data.got)
}

func TestCreate_WrongMsg_Drops(t *testing.T) {
	data := &testData{}
	f := Create(data, testHandler, DefaultOpts[testMsg]())
	err := f(context.Background(), &gue.Job{Args: []byte(`{"id":`)})
	assert.Nil(t, err)
	assert.Equal(t, 0, data.calls)
}

func TestCreate_Fail_Reschedules(t *testing.T) {
	data := &testData{err: errors.New("olia")}
	gaveUp := false
	f := Create(data, testHandler, DefaultOpts[testMsg]().WithBackoff(NoBackoff()).
		WithGiveUp(func(ctx context.Context, tm *testMsg, err error) error {
			gaveUp = true
			return nil
		}))
	err := f(context.Background(), &gue.Job{Args: []byte(`{"id":"olia"}`), ErrorCount: 1})
	assert.NotNil(t, err)
	assert.False(t, gaveUp)
}

func TestCreate_Fail_GivesUp(t *testing.T) {
	data := &testData{err: errors.New("olia")}
	var gotErr error
	var gotMsg *testMsg
	f := Create(data, testHandler, DefaultOpts[testMsg]().WithBackoff(NoBackoff()).
		WithGiveUp(func(ctx context.Context, tm *testMsg, err error) error {
			gotErr, gotMsg = err, tm
			return nil
		}))
	err := f(context.Background(), &gue.Job{Args: []byte(`{"id":"olia"}`), ErrorCount: 3})
	assert.Nil(t, err)
	assert.Equal(t, data.err, gotErr)
	assert.Equal(t, "olia", gotMsg.ID)
}

func TestCreate_GiveUpFails_ReturnsErr(t *testing.T) {
	data := &testData{err: errors.New("olia")}
	f := Create(data, testHandler, DefaultOpts[testMsg]().
		WithGiveUp(func(ctx context.Context, tm *testMsg, err error) error {
			return errors.New("restore")
		}))
	err := f(context.Background(), &gue.Job{Args: []byte(`{"id":"olia"}`), ErrorCount: 5})
	assert.NotNil(t, err)
}

func TestCreate_CustomFailure(t *testing.T) {
	data := &testData{err: errors.New("olia")}
	gaveUp := false
	f := Create(data, testHandler, DefaultOpts[testMsg]().
		WithFailure(func(ctx context.Context, tm *testMsg, err error, j *gue.Job) (bool, time.Duration, error) {
			return false, 0, nil
		}).
		WithGiveUp(func(ctx context.Context, tm *testMsg, err error) error {
			gaveUp = true
			return nil
		}))
	err := f(context.Background(), &gue.Job{Args: []byte(`{"id":"olia"}`)})
	assert.Nil(t, err)
	assert.True(t, gaveUp)
}

func TestCreate_Timeout(t *testing.T) {
	data := &testData{}
	var deadline bool
	f := Create(data, func(ctx context.Context, m *testMsg, data *testData) error {
		_, deadline = ctx.Deadline()
		return nil
	}, DefaultOpts[testMsg]().WithTimeout(time.Second))
	assert.Nil(t, f(context.Background(), &gue.Job{Args: []byte(`{}`)}))
	assert.True(t, deadline)
}

func TestFullJitter(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := fullJitter(time.Second)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, time.Second)
	}
}

func TestDefaultBackoffOrTest(t *testing.T) {
	assert.Equal(t, time.Duration(0), DefaultBackoffOrTest(true)(5))
	assert.Less(t, DefaultBackoffOrTest(false)(1), 10*time.Second)
}
