package limit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/airenas/whispers/internal/pkg/test"
	"github.com/airenas/whispers/internal/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testStore struct{ mock.Mock }

func (m *testStore) ConsumeUsage(ctx context.Context, userID, resource string, day time.Time, amount, limit int) (bool, error) {
	args := m.Called(ctx, userID, resource, day, amount, limit)
	return args.Bool(0), args.Error(1)
}

func (m *testStore) RestoreUsage(ctx context.Context, userID, resource string, day time.Time, amount int) error {
	args := m.Called(ctx, userID, resource, day, amount)
	return args.Error(0)
}

func (m *testStore) LoadUsage(ctx context.Context, userID, resource string, day time.Time) (int, error) {
	args := m.Called(ctx, userID, resource, day)
	return args.Int(0), args.Error(1)
}

var (
	storeMock *testStore
	tGate     *Gate
	tNow      = time.Date(2024, 3, 4, 23, 30, 0, 0, time.FixedZone("x", 2*3600))
	tDay      = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
)

func initTest(t *testing.T) {
	t.Helper()
	storeMock = &testStore{}
	var err error
	tGate, err = NewGate(storeMock, 30, 10)
	require.Nil(t, err)
	tGate.now = func() time.Time { return tNow }
}

func TestMinutes(t *testing.T) {
	tests := []struct {
		d    float64
		want int
	}{
		{d: 1, want: 1},
		{d: 0.5, want: 1},
		{d: 59.9, want: 1},
		{d: 60, want: 1},
		{d: 61, want: 2},
		{d: 120, want: 2},
		{d: 120.01, want: 3},
		{d: 3600, want: 60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Minutes(tt.d), "duration %v", tt.d)
	}
}

func TestConsumeMinutes(t *testing.T) {
	initTest(t)
	storeMock.On("ConsumeUsage", mock.Anything, "u1", ResourceMinutes, tDay, 3, 30).Return(true, nil)

	r, err := tGate.ConsumeMinutes(test.Ctx(t), "u1", false, 3)

	assert.Nil(t, err)
	assert.Equal(t, &Reservation{UserID: "u1", Resource: ResourceMinutes, Day: tDay, Amount: 3}, r)
	storeMock.AssertExpectations(t)
}

func TestConsumeMinutes_OwnKey(t *testing.T) {
	initTest(t)

	r, err := tGate.ConsumeMinutes(test.Ctx(t), "u1", true, 3)

	assert.Nil(t, err)
	assert.Nil(t, r)
	storeMock.AssertNotCalled(t, "ConsumeUsage", mock.Anything, mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything)
}

func TestConsumeMinutes_Exceeded(t *testing.T) {
	initTest(t)
	storeMock.On("ConsumeUsage", mock.Anything, "u1", ResourceMinutes, tDay, 31, 30).Return(false, nil)

	r, err := tGate.ConsumeMinutes(test.Ctx(t), "u1", false, 31)

	assert.True(t, errors.Is(err, utils.ErrQuotaExceeded))
	assert.Contains(t, err.Error(), "daily audio minutes limit")
	assert.Nil(t, r)
}

func TestConsumeMinutes_Fails(t *testing.T) {
	initTest(t)
	storeMock.On("ConsumeUsage", mock.Anything, "u1", ResourceMinutes, tDay, 1, 30).Return(false, errors.New("olia"))

	_, err := tGate.ConsumeMinutes(test.Ctx(t), "u1", false, 1)

	assert.NotNil(t, err)
	assert.False(t, errors.Is(err, utils.ErrQuotaExceeded))
}

func TestConsumeMinutes_WrongAmount(t *testing.T) {
	initTest(t)

	_, err := tGate.ConsumeMinutes(test.Ctx(t), "u1", false, 0)

	assert.True(t, errors.Is(err, utils.ErrValidation))
}

func TestConsumeTransformation(t *testing.T) {
	initTest(t)
	storeMock.On("ConsumeUsage", mock.Anything, "u1", ResourceTransformations, tDay, 1, 10).Return(true, nil)

	r, err := tGate.ConsumeTransformation(test.Ctx(t), "u1")

	assert.Nil(t, err)
	assert.Equal(t, &Reservation{UserID: "u1", Resource: ResourceTransformations, Day: tDay, Amount: 1}, r)
}

func TestConsumeTransformation_Exceeded(t *testing.T) {
	initTest(t)
	storeMock.On("ConsumeUsage", mock.Anything, "u1", ResourceTransformations, tDay, 1, 10).Return(false, nil)

	_, err := tGate.ConsumeTransformation(test.Ctx(t), "u1")

	assert.True(t, errors.Is(err, utils.ErrQuotaExceeded))
}

func TestRestore(t *testing.T) {
	initTest(t)
	day := tDay.Add(-24 * time.Hour)
	storeMock.On("RestoreUsage", mock.Anything, "u1", ResourceMinutes, day, 3).Return(nil)

	err := tGate.Restore(test.Ctx(t), &Reservation{UserID: "u1", Resource: ResourceMinutes, Day: day, Amount: 3})

	assert.Nil(t, err)
	storeMock.AssertExpectations(t)
}

func TestRestore_Nil(t *testing.T) {
	initTest(t)

	assert.Nil(t, tGate.Restore(test.Ctx(t), nil))
}

func TestRestore_Fails(t *testing.T) {
	initTest(t)
	storeMock.On("RestoreUsage", mock.Anything, "u1", ResourceMinutes, tDay, 3).Return(errors.New("olia"))

	err := tGate.Restore(test.Ctx(t), &Reservation{UserID: "u1", Resource: ResourceMinutes, Day: tDay, Amount: 3})

	assert.NotNil(t, err)
}

func TestLeft(t *testing.T) {
	initTest(t)
	storeMock.On("LoadUsage", mock.Anything, "u1", ResourceMinutes, tDay).Return(12, nil)
	storeMock.On("LoadUsage", mock.Anything, "u1", ResourceTransformations, tDay).Return(11, nil)

	m, tr, err := tGate.Left(test.Ctx(t), "u1", false)

	assert.Nil(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 18, *m)
	assert.Equal(t, 0, tr)
}

func TestLeft_OwnKey(t *testing.T) {
	initTest(t)
	storeMock.On("LoadUsage", mock.Anything, "u1", ResourceTransformations, tDay).Return(2, nil)

	m, tr, err := tGate.Left(test.Ctx(t), "u1", true)

	assert.Nil(t, err)
	assert.Nil(t, m)
	assert.Equal(t, 8, tr)
}

func TestNewGate(t *testing.T) {
	_, err := NewGate(nil, 1, 1)
	assert.NotNil(t, err)
	_, err = NewGate(&testStore{}, -1, 1)
	assert.NotNil(t, err)
	_, err = NewGate(&testStore{}, 0, 0)
	assert.Nil(t, err)
}

func TestDay(t *testing.T) {
	assert.Equal(t, tDay, Day(tNow))
	assert.Equal(t, "2024-03-04", FormatDay(tDay))
	d, err := ParseDay("2024-03-04")
	assert.Nil(t, err)
	assert.Equal(t, tDay, d)
	_, err = ParseDay("olia")
	assert.NotNil(t, err)
}
