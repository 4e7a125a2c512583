package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Elizabethomito/greenquest/internal/metrics"
)

// ErrClassifierUnavailable is returned by the classifier that stands in
// when no CLASSIFIER_URL is configured.
var ErrClassifierUnavailable = errors.New("classifier unavailable")

// DefaultTimeout bounds one classifier call.
const DefaultTimeout = 20 * time.Second

// Classifier scores an image against candidate labels.
type Classifier interface {
	Score(ctx context.Context, image []byte, labels []string) (map[string]float64, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, image []byte, labels []string) (map[string]float64, error)

func (f ClassifierFunc) Score(ctx context.Context, image []byte, labels []string) (map[string]float64, error) {
	return f(ctx, image, labels)
}

// Unavailable always fails, so every verification degrades to the
// fallback verdict.
var Unavailable Classifier = ClassifierFunc(func(context.Context, []byte, []string) (map[string]float64, error) {
	return nil, ErrClassifierUnavailable
})

// Verifier wraps a Classifier with the catalog, a timeout and the
// fallback policy.
type Verifier struct {
	catalog    *Catalog
	classifier Classifier
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Verifier.
type Option func(*Verifier)

func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// NewVerifier returns a Verifier. A nil classifier is treated as Unavailable.
func NewVerifier(catalog *Catalog, classifier Classifier, opts ...Option) *Verifier {
	if classifier == nil {
		classifier = Unavailable
	}
	v := &Verifier{
		catalog:    catalog,
		classifier: classifier,
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Catalog returns the catalog the verifier scores against.
func (v *Verifier) Catalog() *Catalog { return v.catalog }

// Verify scores image for category. Classifier failures are logged and
// mapped to FallbackVerdict; the only error returned is ErrUnknownCategory.
func (v *Verifier) Verify(ctx context.Context, category string, image []byte) (Verdict, error) {
	verdict, err := v.verify(ctx, category, image)
	if err != nil && !errors.Is(err, ErrClassifierUnavailable) {
		return Verdict{}, err
	}
	if err != nil {
		v.logger.Warn("classifier failed, using fallback verdict",
			slog.String("category", category), slog.Any("err", err))
		verdict = FallbackVerdict(category)
	}
	v.metrics.ObserveVerdict(verdict.Category, string(verdict.Source), verdict.Matches)
	return verdict, nil
}

// Analyze is Verify without the fallback: a classifier failure is returned
// wrapped in ErrClassifierUnavailable so callers can report it.
func (v *Verifier) Analyze(ctx context.Context, category string, image []byte) (Verdict, error) {
	verdict, err := v.verify(ctx, category, image)
	if err != nil {
		return Verdict{}, err
	}
	v.metrics.ObserveVerdict(verdict.Category, string(verdict.Source), verdict.Matches)
	return verdict, nil
}

func (v *Verifier) verify(ctx context.Context, category string, image []byte) (Verdict, error) {
	labels, err := v.catalog.Labels(category)
	if err != nil {
		return Verdict{}, err
	}
	if len(image) == 0 {
		return NoImageVerdict(category), nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	scores, err := v.classifier.Score(ctx, image, labels)
	v.metrics.ObserveClassifier(time.Since(start), err)
	if err != nil {
		if errors.Is(err, ErrClassifierUnavailable) {
			return Verdict{}, err
		}
		return Verdict{}, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	return Normalize(v.catalog, category, scores)
}
