package pkg

import (
	"errors"
	"testing"
)

func TestTransferStatus_String(t *testing.T) {
	tests := []struct {
		status TransferStatus
		want   string
	}{
		{TransferStatusSuccess, "success"},
		{TransferStatusError, "error"},
		{TransferStatusStall, "stall"},
		{TransferStatusXactError, "xacterr"},
		{TransferStatusBabble, "babbleerr"},
		{TransferStatusFrameOverrun, "frameerr"},
		{TransferStatusCancelled, "cancel"},
		{TransferStatus(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("TransferStatus.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransferStatus_Err(t *testing.T) {
	tests := []struct {
		status  TransferStatus
		wantErr error
	}{
		{TransferStatusSuccess, nil},
		{TransferStatusStall, ErrStall},
		{TransferStatusXactError, ErrXact},
		{TransferStatusBabble, ErrBabble},
		{TransferStatusFrameOverrun, ErrFrameOverrun},
		{TransferStatusCancelled, ErrCancelled},
		{TransferStatusError, ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			err := tt.status.Err()
			if tt.wantErr == nil && err != nil {
				t.Errorf("TransferStatus.Err() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("TransferStatus.Err() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSentinelErrors(t *testing.T) {
	errs := []error{
		ErrStall,
		ErrXact,
		ErrBabble,
		ErrFrameOverrun,
		ErrCancelled,
		ErrProtocol,
		ErrInvalidParameter,
		ErrNoMemory,
		ErrBusy,
		ErrIncorrectMode,
		ErrNotSupported,
		ErrAlreadyRunning,
	}

	for i, err1 := range errs {
		if err1 == nil {
			t.Errorf("error %d is nil", i)
			continue
		}
		for j, err2 := range errs {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("error %d and %d are equal", i, j)
			}
		}
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err     error
		wantMsg string
	}{
		{ErrStall, "endpoint stalled"},
		{ErrXact, "transaction error"},
		{ErrInvalidParameter, "invalid parameter"},
		{ErrIncorrectMode, "incorrect controller mode"},
	}

	for _, tt := range tests {
		t.Run(tt.wantMsg, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("error.Error() = %v, want %v", got, tt.wantMsg)
			}
		})
	}
}
