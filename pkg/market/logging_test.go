package market

import (
	"context"
	"errors"
	"testing"
)

func TestEmitOperationDefaultsStatus(test *testing.T) {
	test.Parallel()
	recorder := &recorderLogger{}

	emitOperation(context.Background(), recorder, OperationLog{Operation: operationAddItem})
	emitOperation(context.Background(), recorder, OperationLog{Operation: operationSubmit, Error: errors.New("boom")})
	emitOperation(context.Background(), recorder, OperationLog{Operation: operationClear, Status: "custom"})

	if len(recorder.entries) != 3 {
		test.Fatalf("expected 3 entries, got %d", len(recorder.entries))
	}
	if recorder.entries[0].Status != operationStatusOK {
		test.Fatalf("expected ok status, got %q", recorder.entries[0].Status)
	}
	if recorder.entries[1].Status != operationStatusError {
		test.Fatalf("expected error status, got %q", recorder.entries[1].Status)
	}
	if recorder.entries[2].Status != "custom" {
		test.Fatalf("explicit status must win, got %q", recorder.entries[2].Status)
	}
}

func TestEmitOperationNilLoggerIsSilent(test *testing.T) {
	test.Parallel()
	emitOperation(context.Background(), nil, OperationLog{Operation: operationAddItem})
}

func TestBasketOperationsAreLogged(test *testing.T) {
	test.Parallel()
	gear := gearTemplate(test, "gear-1", 100)
	recorder := &recorderLogger{}
	service := mustBasketService(test, newStubFlags(), newStubPriceBook(gear),
		WithBasketIDGenerator(sequentialIDs("id")),
		WithBasketOperationLogger(recorder),
	)
	user := mustUserID(test, "user-1")
	actor := mustActorID(test, "actor-1")

	if _, err := service.AddItem(context.Background(), user, gear.CatalogID, 0, actor); err != nil {
		test.Fatalf("add: %v", err)
	}
	if _, err := service.AddItem(context.Background(), user, mustCatalogID(test, "missing"), 0, actor); !errors.Is(err, ErrItemNotFound) {
		test.Fatalf("expected ErrItemNotFound, got %v", err)
	}

	if len(recorder.entries) != 2 {
		test.Fatalf("expected 2 entries, got %d", len(recorder.entries))
	}
	success := recorder.entries[0]
	if success.Operation != operationAddItem || success.Status != operationStatusOK {
		test.Fatalf("unexpected success entry: %+v", success)
	}
	if success.User != user || success.Actor != actor {
		test.Fatalf("entry must carry user and actor: %+v", success)
	}
	failure := recorder.entries[1]
	if failure.Status != operationStatusError || failure.Error == nil {
		test.Fatalf("unexpected failure entry: %+v", failure)
	}
}
