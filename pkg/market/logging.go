package market

import "context"

// OperationLogger records domain-level events emitted by market operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing market operation.
type OperationLog struct {
	Operation string
	User      UserID
	Actor     ActorID
	RequestID RequestID
	LineID    LineID
	CatalogID CatalogID
	Cost      Nuyen
	Karma     Karma
	Status    string
	Error     error
}

func emitOperation(ctx context.Context, logger OperationLogger, entry OperationLog) {
	if logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	logger.LogOperation(ctx, entry)
}
