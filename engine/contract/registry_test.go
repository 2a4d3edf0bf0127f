package contract

import (
	"errors"
	"testing"

	"github.com/tripscoutai/tripscout/engine/errs"
)

func mustRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestValidateTravelEvidenceRequest(t *testing.T) {
	r := mustRegistry(t)

	tests := []struct {
		name    string
		payload map[string]any
		wantErr bool
	}{
		{
			name: "valid",
			payload: map[string]any{
				"x_contract_version": "1.0",
				"request":            map[string]any{"user_query": "dicas para Orlando"},
			},
		},
		{
			name: "missing user_query",
			payload: map[string]any{
				"x_contract_version": "1.0",
				"request":            map[string]any{"destination": "Orlando"},
			},
			wantErr: true,
		},
		{
			name:    "missing request",
			payload: map[string]any{"x_contract_version": "1.0"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Validate(tc.payload, TravelEvidenceRequest)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr && !errors.Is(err, errs.ErrContractViolation) {
				t.Fatalf("expected ErrContractViolation, got %v", err)
			}
		})
	}
}

func TestValidateVisionResponseModeEnum(t *testing.T) {
	r := mustRegistry(t)

	ok := map[string]any{
		"x_contract_version": "1.0",
		"mode":                "packing",
		"signals":             map[string]any{},
	}
	if err := r.Validate(ok, VisionResponse); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := map[string]any{
		"x_contract_version": "1.0",
		"mode":                "not_a_mode",
		"signals":             map[string]any{},
	}
	if err := r.Validate(bad, VisionResponse); err == nil {
		t.Fatalf("expected mode enum violation")
	}
}

func TestValidateUnknownSchema(t *testing.T) {
	r := mustRegistry(t)
	err := r.Validate(map[string]any{}, "does_not_exist")
	if !errors.Is(err, errs.ErrFatalMisconfiguration) {
		t.Fatalf("expected ErrFatalMisconfiguration, got %v", err)
	}
}

func TestValidateBytes(t *testing.T) {
	r := mustRegistry(t)
	data := []byte(`{"x_contract_version":"1.0","audio_ref":"data:audio/wav;base64,AA==","format":"wav"}`)
	if err := r.ValidateBytes(data, TTSResponse); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
