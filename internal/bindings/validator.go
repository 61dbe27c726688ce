package bindings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Validation failure taxonomy.
var (
	// ErrInvalidKey means the presented key is not in the store.
	ErrInvalidKey = errors.New("invalid license key")

	// ErrDeviceMismatch means the key is already bound to a different
	// device.
	ErrDeviceMismatch = errors.New("license key is bound to another device")

	// ErrBindingWrite means a first-use binding could not be persisted.
	// The binding is not considered applied when this is returned.
	ErrBindingWrite = errors.New("device binding write failed")
)

// Validator decides whether a (key, device) pair may proceed, binding the
// key to the device on first use. Each key has exactly one owning device,
// established lazily without a separate registration step.
type Validator struct {
	store   RecordStore
	fast    FastReader
	logger  *slog.Logger
	retries int
}

// NewValidator creates a validator over the transactional store path.
// retries bounds the compare-and-swap loop when a first-use bind races a
// concurrent writer.
func NewValidator(store RecordStore, retries int, logger *slog.Logger) *Validator {
	if retries < 0 {
		retries = 0
	}
	return &Validator{
		store:   store,
		logger:  logger.With(slog.String("component", "binding_validator")),
		retries: retries,
	}
}

// WithFastReader routes the initial read through the raw mirror. The mirror
// carries no version token, so any request that needs to bind re-reads
// through the transactional path before writing.
func (v *Validator) WithFastReader(fast FastReader) *Validator {
	v.fast = fast
	return v
}

// Validate runs the per-request state machine:
//
//	key absent            -> ErrInvalidKey
//	stored == UNBOUND     -> bind to device, persist; failure -> ErrBindingWrite
//	stored == device      -> accept, no write
//	otherwise             -> ErrDeviceMismatch
//
// The store is read fresh on every call; successful validations of an
// already-bound key never mutate it.
func (v *Validator) Validate(ctx context.Context, key, device string) error {
	if v.fast != nil {
		b, err := v.fast.ReadFast(ctx)
		if err == nil {
			stored, ok := b.Get(key)
			switch {
			case !ok:
				return ErrInvalidKey
			case stored == device:
				return nil
			case stored != Unbound:
				return ErrDeviceMismatch
			}
			// UNBOUND on the mirror: fall through to the
			// transactional path, which alone may write.
		} else {
			v.logger.WarnContext(ctx, "fast read failed, falling back to transactional read",
				slog.String("error", err.Error()))
		}
	}
	return v.validateConsistent(ctx, key, device)
}

func (v *Validator) validateConsistent(ctx context.Context, key, device string) error {
	for attempt := 0; ; attempt++ {
		b, token, err := v.store.Read(ctx)
		if err != nil {
			if errors.Is(err, ErrStoreNotFound) {
				return fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
			}
			return err
		}

		stored, ok := b.Get(key)
		switch {
		case !ok:
			return ErrInvalidKey
		case stored == device:
			return nil
		case stored != Unbound:
			return ErrDeviceMismatch
		}

		b.Set(key, device)
		err = v.store.Write(ctx, b, token)
		if err == nil {
			v.logger.InfoContext(ctx, "bound license key to device",
				slog.Int("attempt", attempt+1))
			return nil
		}
		if errors.Is(err, ErrVersionConflict) && attempt < v.retries {
			v.logger.WarnContext(ctx, "bind write conflict, retrying",
				slog.Int("attempt", attempt+1))
			continue
		}
		return fmt.Errorf("%w: %v", ErrBindingWrite, err)
	}
}
