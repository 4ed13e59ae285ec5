package ezsp

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusError(t *testing.T) {
	err := fmt.Errorf("ezsp %s: %w", FrameNop, StatusNoResponse)
	if !errors.Is(err, StatusNoResponse) {
		t.Error("wrapped status not matched by errors.Is")
	}
	var s Status
	if !errors.As(err, &s) || s != StatusNoResponse {
		t.Errorf("errors.As: got %v", s)
	}
	if StatusSuccess.Err() != nil {
		t.Error("success should have no error")
	}
	if got := Status(0xEE).String(); got != "EZSP_STATUS_0xEE" {
		t.Errorf("unknown status: got %s", got)
	}
}

func TestEmberStatusSL(t *testing.T) {
	tests := []struct {
		in   EmberStatus
		want SLStatus
	}{
		{EmberSuccess, SLOK},
		{EmberNetworkUp, SLNetworkUp},
		{EmberDeliveryFailed, SLZigbeeDeliveryFailed},
		{EmberMacNoAckReceived, SLMacNoAck},
		{EmberStatus(0xFE), SLFail},
	}
	for _, tt := range tests {
		if got := tt.in.SL(); got != tt.want {
			t.Errorf("0x%02X: got %v, want %v", uint8(tt.in), got, tt.want)
		}
	}
}
