// errors_test.go: structured error constructor tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/agilira/go-errors"
)

func TestConfigurationErrorConstructors(t *testing.T) {
	t.Run("NewConfigNotFoundError", func(t *testing.T) {
		err := NewConfigNotFoundError("/etc/modloader.yaml")

		if err.ErrorCode() != errors.ErrorCode(ErrCodeConfigNotFound) {
			t.Errorf("Expected error code %s, got %s", ErrCodeConfigNotFound, err.ErrorCode())
		}
		if err.Context["path"] != "/etc/modloader.yaml" {
			t.Errorf("Expected path context, got %v", err.Context["path"])
		}
		if err.Severity != "error" {
			t.Errorf("Expected severity error, got %q", err.Severity)
		}
	})

	t.Run("NewConfigParseError", func(t *testing.T) {
		err := NewConfigParseError("modloader.json", fmt.Errorf("unexpected end of JSON input"))

		if err.ErrorCode() != errors.ErrorCode(ErrCodeConfigParseError) {
			t.Errorf("Expected error code %s, got %s", ErrCodeConfigParseError, err.ErrorCode())
		}
		if err.Cause == nil {
			t.Error("Expected cause to be set")
		}
		expectedMsg := "The configuration file could not be parsed"
		if err.UserMessage() != expectedMsg {
			t.Errorf("Expected user message %q, got %q", expectedMsg, err.UserMessage())
		}
	})

	t.Run("NewConfigValidationError", func(t *testing.T) {
		withoutCause := NewConfigValidationError("unknown metrics backend", nil)
		if withoutCause.Cause != nil {
			t.Error("Expected no cause")
		}
		withCause := NewConfigValidationError("invalid build_number", NewInvalidBuildNumberError("x", nil))
		if withCause.Cause == nil {
			t.Error("Expected cause to be set")
		}
		if withCause.ErrorCode() != errors.ErrorCode(ErrCodeConfigValidationError) {
			t.Errorf("Expected error code %s, got %s", ErrCodeConfigValidationError, withCause.ErrorCode())
		}
	})
}

func TestResolutionErrorConstructors(t *testing.T) {
	t.Run("NewResolutionContractError", func(t *testing.T) {
		err := NewResolutionContractError("com.example.a")
		if err.ErrorCode() != errors.ErrorCode(ErrCodeResolutionContract) {
			t.Errorf("Expected error code %s, got %s", ErrCodeResolutionContract, err.ErrorCode())
		}
		if err.Severity != "critical" {
			t.Errorf("Expected critical severity, got %q", err.Severity)
		}
	})

	t.Run("NewPackageCollisionError", func(t *testing.T) {
		err := NewPackageCollisionError("com.shared", modID("com.example.a"), modID("com.example.b"))
		if err.Context["package_prefix"] != "com.shared" {
			t.Errorf("Expected package_prefix context, got %v", err.Context["package_prefix"])
		}
		if err.Context["first"] != "com.example.a" || err.Context["second"] != "com.example.b" {
			t.Errorf("Unexpected participants: %v", err.Context)
		}
	})

	t.Run("NewDependencyCycleError", func(t *testing.T) {
		err := NewDependencyCycleError([]ModuleID{modID("com.example.a"), modID("com.example.b")})
		names, ok := err.Context["modules"].([]string)
		if !ok || len(names) != 2 || names[0] != "com.example.a" {
			t.Errorf("Unexpected modules context: %v", err.Context["modules"])
		}
	})
}

func TestRuntimeErrorConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *errors.Error
		code string
	}{
		{"ModuleNotFound", NewModuleNotFoundError(modID("com.example.a")), ErrCodeModuleNotFound},
		{"LoadRejected", NewLoadRejectedError(modID("com.example.a"), ExclusionReason{Kind: ExclusionExpired}), ErrCodeLoadRejected},
		{"UnloadRequiresRestart", NewUnloadRequiresRestartError(modID("com.example.a"), "Plugin requires restart to be unloaded"), ErrCodeUnloadRequiresRestart},
		{"IdentityConflict", NewIdentityConflictError(modID("com.example.a"), modID("com.example.api")), ErrCodeIdentityConflict},
		{"UnresolvedDependency", NewUnresolvedDependencyError(modID("com.example.a"), ModuleEdge{Target: modID("com.example.b")}), ErrCodeUnresolvedDependency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.ErrorCode() != errors.ErrorCode(tt.code) {
				t.Errorf("Expected error code %s, got %s", tt.code, tt.err.ErrorCode())
			}
			if tt.err.Context["module"] != "com.example.a" {
				t.Errorf("Expected module context, got %v", tt.err.Context["module"])
			}
		})
	}
}

func TestHasErrorCode(t *testing.T) {
	err := NewStoreError("/tmp/disabled", "failed to read disabled set", fmt.Errorf("permission denied"))

	if !HasErrorCode(err, ErrCodeStoreError) {
		t.Error("Expected store error code")
	}
	if HasErrorCode(err, ErrCodeDiscoveryError) {
		t.Error("Did not expect discovery error code")
	}
	if !HasErrorCode(fmt.Errorf("saving: %w", err), ErrCodeStoreError) {
		t.Error("Expected the code to be found through wrapping")
	}
	if HasErrorCode(stderrors.New("plain"), ErrCodeStoreError) {
		t.Error("Plain errors carry no code")
	}
	if HasErrorCode(nil, ErrCodeStoreError) {
		t.Error("nil carries no code")
	}
}
