// errors.go: structured error definitions for the go-modloader system
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	stderrors "errors"

	"github.com/agilira/go-errors"
)

// Error codes for the go-modloader system
const (
	// Configuration errors (1700-1799)
	ErrCodeConfigNotFound        = "CONFIG_1701"
	ErrCodeConfigParseError      = "CONFIG_1702"
	ErrCodeConfigValidationError = "CONFIG_1703"
	ErrCodeConfigWatcherError    = "CONFIG_1704"
	ErrCodeConfigPathError       = "CONFIG_1705"

	// Resolution errors (2100-2199)
	ErrCodeResolutionContract = "RESOLVE_2101"
	ErrCodeDependencyCycle    = "RESOLVE_2102"
	ErrCodePackageCollision   = "RESOLVE_2103"
	ErrCodeInvalidBuildNumber = "RESOLVE_2104"
	ErrCodeInvalidDescriptor  = "RESOLVE_2105"

	// Runtime activation errors (2200-2299)
	ErrCodeModuleNotFound        = "RUNTIME_2201"
	ErrCodeLoadRejected          = "RUNTIME_2202"
	ErrCodeUnloadRequiresRestart = "RUNTIME_2203"
	ErrCodeIdentityConflict      = "RUNTIME_2204"
	ErrCodeUnresolvedDependency  = "RUNTIME_2205"
	ErrCodeUnloadVetoed          = "RUNTIME_2206"

	// Collaborator errors (2300-2499)
	ErrCodeStoreError     = "STORE_2301"
	ErrCodeDiscoveryError = "DISCOVERY_2401"
)

// Configuration error constructors

func NewConfigNotFoundError(path string) *errors.Error {
	return errors.New(ErrCodeConfigNotFound, "Configuration file not found").
		WithUserMessage("The specified configuration file does not exist").
		WithContext("path", path).
		WithSeverity("error")
}

func NewConfigParseError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigParseError, "Failed to parse configuration").
		WithUserMessage("The configuration file could not be parsed").
		WithContext("path", path).
		WithSeverity("error")
}

func NewConfigValidationError(message string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeConfigValidationError, message).
			WithUserMessage("Configuration validation failed").
			WithSeverity("error")
	}
	return errors.New(ErrCodeConfigValidationError, message).
		WithUserMessage("Configuration validation failed").
		WithSeverity("error")
}

func NewConfigWatcherError(message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigWatcherError, message).
		WithSeverity("warning")
}

func NewConfigPathError(path string, message string) *errors.Error {
	return errors.New(ErrCodeConfigPathError, message).
		WithContext("path", path).
		WithSeverity("error")
}

// Resolution error constructors

// NewResolutionContractError reports a conflict resolver that returned a
// non-null result for a self-conflict. This is a programming error.
func NewResolutionContractError(key any) *errors.Error {
	return errors.New(ErrCodeResolutionContract, "Resolution map contract violation").
		WithUserMessage("A conflict resolver must return no element when an element conflicts with itself").
		WithContext("key", key).
		WithSeverity("critical")
}

func NewDependencyCycleError(members []ModuleID) *errors.Error {
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.String())
	}
	return errors.New(ErrCodeDependencyCycle, "Dependency cycle among required modules").
		WithContext("modules", names).
		WithSeverity("error")
}

func NewPackageCollisionError(prefix string, first, second ModuleID) *errors.Error {
	return errors.New(ErrCodePackageCollision, "Package prefix declared by two modules").
		WithContext("package_prefix", prefix).
		WithContext("first", first.String()).
		WithContext("second", second.String()).
		WithSeverity("error")
}

func NewInvalidBuildNumberError(value string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeInvalidBuildNumber, "Invalid build number").
			WithContext("value", value).
			WithSeverity("error")
	}
	return errors.New(ErrCodeInvalidBuildNumber, "Invalid build number").
		WithContext("value", value).
		WithSeverity("error")
}

func NewInvalidDescriptorError(message string, id ModuleID) *errors.Error {
	return errors.New(ErrCodeInvalidDescriptor, message).
		WithContext("module", id.String()).
		WithSeverity("error")
}

// Runtime error constructors

func NewModuleNotFoundError(id ModuleID) *errors.Error {
	return errors.New(ErrCodeModuleNotFound, "Module not found").
		WithUserMessage("The requested module is not known to the runtime").
		WithContext("module", id.String()).
		WithSeverity("error")
}

func NewLoadRejectedError(id ModuleID, reason ExclusionReason) *errors.Error {
	return errors.New(ErrCodeLoadRejected, "Module load rejected").
		WithUserMessage("The module cannot be loaded without restart").
		WithContext("module", id.String()).
		WithContext("reason", reason.String()).
		WithSeverity("error")
}

func NewUnloadRequiresRestartError(id ModuleID, reason string) *errors.Error {
	return errors.New(ErrCodeUnloadRequiresRestart, "Module cannot be unloaded without restart").
		WithUserMessage(reason).
		WithContext("module", id.String()).
		WithSeverity("warning")
}

func NewUnloadVetoedError(id ModuleID, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeUnloadVetoed, "Module unload vetoed").
		WithUserMessage("A listener refused to unload the module").
		WithContext("module", id.String()).
		WithSeverity("warning")
}

func NewIdentityConflictError(id, key ModuleID) *errors.Error {
	return errors.New(ErrCodeIdentityConflict, "Module declares an identity that is already loaded").
		WithContext("module", id.String()).
		WithContext("conflicting_id", key.String()).
		WithSeverity("error")
}

func NewUnresolvedDependencyError(id ModuleID, edge DependencyEdge) *errors.Error {
	return errors.New(ErrCodeUnresolvedDependency, "Module has an unresolved required dependency").
		WithContext("module", id.String()).
		WithContext("dependency", edge.TargetID().String()).
		WithSeverity("error")
}

// Collaborator error constructors

func NewStoreError(path string, message string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeStoreError, message).
		WithContext("path", path).
		WithSeverity("error")
}

func NewDiscoveryError(message string, cause error) *errors.Error {
	if cause == nil {
		return errors.New(ErrCodeDiscoveryError, message).WithSeverity("warning")
	}
	return errors.Wrap(cause, ErrCodeDiscoveryError, message).
		WithSeverity("warning")
}

// HasErrorCode reports whether err (or anything it wraps) is a structured
// error carrying code.
func HasErrorCode(err error, code string) bool {
	var structured *errors.Error
	if !stderrors.As(err, &structured) {
		return false
	}
	return structured.ErrorCode() == errors.ErrorCode(code)
}
