package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCodeGRPCMapping(t *testing.T) {
	tests := []struct {
		code Code
		want codes.Code
	}{
		{CodeValidationFailed, codes.InvalidArgument},
		{CodeConcurrencyConflict, codes.Aborted},
		{CodeSagaTimeout, codes.DeadlineExceeded},
		{CodeNotFound, codes.NotFound},
		{CodeSystemError, codes.Internal},
		{CodeUnknown, codes.Internal},
	}
	for _, tc := range tests {
		if got := tc.code.GRPCCode(); got != tc.want {
			t.Fatalf("%s.GRPCCode() = %s, want %s", tc.code, got, tc.want)
		}
	}
}

func TestIsRetryableOnlyForConflicts(t *testing.T) {
	conflict := fmt.Errorf("append: %w", New(CodeConcurrencyConflict, "stale version"))
	if !IsRetryable(conflict) {
		t.Fatal("expected wrapped conflict to be retryable")
	}
	if IsRetryable(New(CodeValidationFailed, "amount must be positive")) {
		t.Fatal("validation failures must not be retryable")
	}
	if IsRetryable(stderrors.New("plain")) {
		t.Fatal("plain errors must not be retryable")
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := Wrap(CodeSystemError, "provider failed", stderrors.New("timeout"))
	if !stderrors.Is(err, New(CodeSystemError, "")) {
		t.Fatal("expected errors.Is to match by code")
	}
	if stderrors.Is(err, New(CodeNotFound, "")) {
		t.Fatal("expected different codes not to match")
	}
	if CodeOf(err) != CodeSystemError {
		t.Fatalf("CodeOf = %s, want %s", CodeOf(err), CodeSystemError)
	}
}

func TestToGRPCStatusCarriesReason(t *testing.T) {
	err := WithMetadata(CodeValidationFailed, "amount must be positive", map[string]string{"rejection": "AUTHORIZATION_AMOUNT_INVALID"})
	st, ok := status.FromError(err.ToGRPCStatus())
	if !ok {
		t.Fatal("expected grpc status")
	}
	if st.Code() != codes.InvalidArgument {
		t.Fatalf("status code = %s, want %s", st.Code(), codes.InvalidArgument)
	}
	var found bool
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok {
			found = true
			if info.Reason != string(CodeValidationFailed) {
				t.Fatalf("reason = %s, want %s", info.Reason, CodeValidationFailed)
			}
			if info.Metadata["rejection"] != "AUTHORIZATION_AMOUNT_INVALID" {
				t.Fatalf("metadata = %v", info.Metadata)
			}
		}
	}
	if !found {
		t.Fatal("expected error info detail")
	}
}

func TestStatusConvertsAnyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"wrapped conflict", fmt.Errorf("submit: %w", New(CodeConcurrencyConflict, "stale version")), codes.Aborted},
		{"not found", Wrap(CodeNotFound, "payment missing", stderrors.New("no rows")), codes.NotFound},
		{"canceled", fmt.Errorf("load: %w", context.Canceled), codes.Canceled},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"plain", stderrors.New("disk full"), codes.Internal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Status(tc.err).Code(); got != tc.want {
				t.Fatalf("Status(%v).Code() = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
	if got := Status(nil).Code(); got != codes.OK {
		t.Fatalf("Status(nil).Code() = %s, want %s", got, codes.OK)
	}
}
