package medvault

import "log/slog"

// VaultOption customizes a Vault at construction time.
type VaultOption func(v *Vault) error

// WithClock injects a time source. Tests use this to drive expiry without
// wall-clock sleeps.
func WithClock(clock Clock) VaultOption {
	return func(v *Vault) error {
		v.clock = clock
		return nil
	}
}

// WithKDFParams overrides the master-key derivation parameters. Parameters
// must stay fixed for the life of a deployment or previously sealed records
// become unreachable.
func WithKDFParams(params *KDFParams) VaultOption {
	return func(v *Vault) error {
		if err := params.Validate(); err != nil {
			return err
		}
		v.kdfParams = params
		return nil
	}
}

// WithLogger injects a structured logger.
func WithLogger(logger *slog.Logger) VaultOption {
	return func(v *Vault) error {
		v.logger = logger
		return nil
	}
}

// WithMetrics injects a metrics collector.
func WithMetrics(metrics MetricsCollector) VaultOption {
	return func(v *Vault) error {
		v.metrics = metrics
		return nil
	}
}

// WithNotifier injects the best-effort notification channel used by
// break-glass activation.
func WithNotifier(notifier Notifier) VaultOption {
	return func(v *Vault) error {
		v.notifier = notifier
		return nil
	}
}
