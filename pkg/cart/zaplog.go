package cart

import (
	"context"

	"go.uber.org/zap"
)

// ZapOperationLogger adapts a zap logger to the OperationLogger contract.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger wires the adapter. A nil logger falls back to zap.NewNop.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapOperationLogger{logger: logger}
}

// LogOperation writes one structured line per cart operation.
func (adapter *ZapOperationLogger) LogOperation(_ context.Context, entry OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("source", entry.Source),
		zap.String("status", entry.Status),
	}
	if entry.ProductID != "" {
		fields = append(fields, zap.String("product_id", entry.ProductID))
	}
	if entry.ItemID != "" {
		fields = append(fields, zap.String("item_id", entry.ItemID))
	}
	if entry.Quantity != 0 {
		fields = append(fields, zap.Int64("quantity", entry.Quantity))
	}
	if entry.CartID != "" {
		fields = append(fields, zap.String("cart_id", entry.CartID))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("cart operation failed", fields...)
		return
	}
	adapter.logger.Info("cart operation", fields...)
}
