package cart

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes one cart operation and its outcome.
type OperationLog struct {
	Operation string
	Source    string
	ProductID string
	ItemID    string
	Quantity  int64
	CartID    string
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithReconcileConfig overrides the default totals-reconciliation thresholds.
func WithReconcileConfig(config ReconcileConfig) ServiceOption {
	return func(service *Service) {
		service.reconcile = config
	}
}

// WithMetadataCache shares an existing metadata cache with the service.
func WithMetadataCache(cache *MetadataCache) ServiceOption {
	return func(service *Service) {
		if cache != nil {
			service.cache = cache
		}
	}
}
