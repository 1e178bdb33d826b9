package limit

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whispers/internal/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// ResourceMinutes - transcription minutes
	ResourceMinutes = "minutes"
	// ResourceTransformations - generated transformations
	ResourceTransformations = "transformations"
)

// Store keeps daily usage counters
type Store interface {
	// ConsumeUsage adds amount to the usage if the result stays <= limit, returns false otherwise
	ConsumeUsage(ctx context.Context, userID, resource string, day time.Time, amount, limit int) (bool, error)
	RestoreUsage(ctx context.Context, userID, resource string, day time.Time, amount int) error
	LoadUsage(ctx context.Context, userID, resource string, day time.Time) (int, error)
}

// Reservation is a consumed amount that can be given back
type Reservation struct {
	UserID   string
	Resource string
	Day      time.Time
	Amount   int
}

// Gate checks and consumes daily user limits
type Gate struct {
	store           Store
	minutes         int
	transformations int
	now             func() time.Time
}

var usageMetric *prometheus.CounterVec

func init() {
	usageMetric = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whispers_usage_total",
		Help: "Consumed and restored usage units",
	}, []string{"resource", "action"})
	prometheus.MustRegister(usageMetric)
}

// NewGate creates limit gate
func NewGate(store Store, minutes, transformations int) (*Gate, error) {
	if store == nil {
		return nil, fmt.Errorf("no store")
	}
	if minutes < 0 || transformations < 0 {
		return nil, fmt.Errorf("wrong limits %d, %d", minutes, transformations)
	}
	goapp.Log.Info().Int("minutes", minutes).Int("transformations", transformations).Msg("daily limits")
	return &Gate{store: store, minutes: minutes, transformations: transformations, now: time.Now}, nil
}

// Minutes returns charged whole minutes for duration in seconds
func Minutes(durationSeconds float64) int {
	res := int(durationSeconds / 60)
	if float64(res*60) < durationSeconds {
		res++
	}
	return res
}

// ConsumeMinutes takes minutes from the user's daily limit.
// Returns nil reservation if user uses own key
func (g *Gate) ConsumeMinutes(ctx context.Context, userID string, ownKey bool, minutes int) (*Reservation, error) {
	if ownKey {
		goapp.Log.Info().Str("user", userID).Msg("own key, skip limits")
		return nil, nil
	}
	res, err := g.consume(ctx, userID, ResourceMinutes, minutes, g.minutes)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w: you have exceeded your daily audio minutes limit", utils.ErrQuotaExceeded)
	}
	return res, nil
}

// ConsumeTransformation takes one transformation from the user's daily limit
func (g *Gate) ConsumeTransformation(ctx context.Context, userID string) (*Reservation, error) {
	res, err := g.consume(ctx, userID, ResourceTransformations, 1, g.transformations)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w: you have exceeded your daily transformations limit", utils.ErrQuotaExceeded)
	}
	return res, nil
}

func (g *Gate) consume(ctx context.Context, userID, resource string, amount, limit int) (*Reservation, error) {
	if amount < 1 {
		return nil, fmt.Errorf("%w: wrong amount %d", utils.ErrValidation, amount)
	}
	day := Day(g.now())
	ok, err := g.store.ConsumeUsage(ctx, userID, resource, day, amount, limit)
	if err != nil {
		return nil, fmt.Errorf("can't consume %s: %w", resource, err)
	}
	if !ok {
		goapp.Log.Info().Str("user", userID).Str("resource", resource).Int("amount", amount).Msg("limit exceeded")
		return nil, nil
	}
	usageMetric.WithLabelValues(resource, "consumed").Add(float64(amount))
	return &Reservation{UserID: userID, Resource: resource, Day: day, Amount: amount}, nil
}

// Restore gives back the reserved amount
func (g *Gate) Restore(ctx context.Context, r *Reservation) error {
	if r == nil {
		return nil
	}
	goapp.Log.Info().Str("user", r.UserID).Str("resource", r.Resource).Int("amount", r.Amount).Msg("restore usage")
	if err := g.store.RestoreUsage(ctx, r.UserID, r.Resource, r.Day, r.Amount); err != nil {
		return fmt.Errorf("can't restore %s: %w", r.Resource, err)
	}
	usageMetric.WithLabelValues(r.Resource, "restored").Add(float64(r.Amount))
	return nil
}

// Left returns what is left for today
func (g *Gate) Left(ctx context.Context, userID string, ownKey bool) (minutes *int, transformations int, err error) {
	day := Day(g.now())
	if !ownKey {
		used, err := g.store.LoadUsage(ctx, userID, ResourceMinutes, day)
		if err != nil {
			return nil, 0, fmt.Errorf("can't load minutes usage: %w", err)
		}
		v := max0(g.minutes - used)
		minutes = &v
	}
	used, err := g.store.LoadUsage(ctx, userID, ResourceTransformations, day)
	if err != nil {
		return nil, 0, fmt.Errorf("can't load transformations usage: %w", err)
	}
	return minutes, max0(g.transformations - used), nil
}

// Day returns usage day of the time
func Day(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// ParseDay parses day saved by FormatDay
func ParseDay(s string) (time.Time, error) {
	return time.Parse(dayLayout, s)
}

// FormatDay formats usage day
func FormatDay(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

const dayLayout = "2006-01-02"

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
