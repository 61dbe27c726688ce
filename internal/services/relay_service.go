package services

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"notegate/internal/bindings"
	"notegate/internal/notes"
)

// RelayService orchestrates the license-gated note relay: key validation,
// first-use device binding and note extraction, plus key issuance.
type RelayService interface {
	// Parse validates (key, device) against the binding store and, on
	// success, extracts the note behind url.
	Parse(ctx context.Context, key, device, url string) (*notes.Descriptor, error)

	// IssueKey generates a fresh unbound license key. The admin
	// credential check happens at the transport layer.
	IssueKey(ctx context.Context) (string, error)
}

// RelayMetrics carries the service-level OTel counters.
type RelayMetrics struct {
	Validations metric.Int64Counter
	KeysIssued  metric.Int64Counter
	Extractions metric.Int64Counter
}

// NewRelayMetrics registers the relay counters on meter. A nil meter yields
// nil metrics, which the service treats as disabled.
func NewRelayMetrics(meter metric.Meter) (*RelayMetrics, error) {
	validations, err := meter.Int64Counter("notegate_validations_total",
		metric.WithDescription("License validations by outcome"))
	if err != nil {
		return nil, err
	}
	keysIssued, err := meter.Int64Counter("notegate_keys_issued_total",
		metric.WithDescription("License keys issued"))
	if err != nil {
		return nil, err
	}
	extractions, err := meter.Int64Counter("notegate_extractions_total",
		metric.WithDescription("Note extractions by outcome"))
	if err != nil {
		return nil, err
	}
	return &RelayMetrics{
		Validations: validations,
		KeysIssued:  keysIssued,
		Extractions: extractions,
	}, nil
}

type relayService struct {
	validator *bindings.Validator
	issuer    *bindings.Issuer
	extractor *notes.Extractor
	metrics   *RelayMetrics
	logger    *slog.Logger
}

// NewRelayService wires the validator, issuer and extractor together.
// metrics may be nil when telemetry is disabled.
func NewRelayService(
	validator *bindings.Validator,
	issuer *bindings.Issuer,
	extractor *notes.Extractor,
	metrics *RelayMetrics,
	logger *slog.Logger,
) RelayService {
	return &relayService{
		validator: validator,
		issuer:    issuer,
		extractor: extractor,
		metrics:   metrics,
		logger:    logger.With(slog.String("service", "relay")),
	}
}

func (s *relayService) Parse(ctx context.Context, key, device, url string) (*notes.Descriptor, error) {
	if err := s.validator.Validate(ctx, key, device); err != nil {
		s.countValidation(ctx, validationOutcome(err))
		s.logger.WarnContext(ctx, "validation rejected",
			slog.String("error", err.Error()))
		return nil, err
	}
	s.countValidation(ctx, "accepted")

	desc, err := s.extractor.Extract(ctx, url)
	if err != nil {
		s.countExtraction(ctx, "error")
		s.logger.ErrorContext(ctx, "note extraction failed",
			slog.String("url", url),
			slog.String("error", err.Error()))
		return nil, err
	}
	s.countExtraction(ctx, desc.NoteType)
	return desc, nil
}

func (s *relayService) IssueKey(ctx context.Context) (string, error) {
	key, err := s.issuer.Issue(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "key issuance failed",
			slog.String("error", err.Error()))
		return "", err
	}
	if s.metrics != nil {
		s.metrics.KeysIssued.Add(ctx, 1)
	}
	return key, nil
}

func (s *relayService) countValidation(ctx context.Context, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Validations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (s *relayService) countExtraction(ctx context.Context, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Extractions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

func validationOutcome(err error) string {
	switch {
	case errors.Is(err, bindings.ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, bindings.ErrDeviceMismatch):
		return "device_mismatch"
	case errors.Is(err, bindings.ErrBindingWrite):
		return "binding_write_failed"
	default:
		return "store_error"
	}
}
