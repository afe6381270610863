// Package catalogerr holds the error taxonomy raised by the Catalog
// Gateway, RSE selector and storage protocol driver, and the
// classification the daemon loops use to turn a raised error into a
// retry decision instead of branching on concrete error types.
package catalogerr

import "errors"

// Kind identifies one taxonomy member. Two errors of the same Kind
// compare equal under Is, regardless of their Msg.
type Kind int

const (
	Unknown Kind = iota
	SourceNotFound
	DestinationNotAccessible
	ServiceUnavailable
	RucioException
	DataIdentifierNotFound
	DatabaseException
	InvalidReplicationRule
	InvalidRuleWeight
	InvalidRSEExpression
	StagingAreaRuleRequiresLifetime
	DuplicateRule
	ReplicationRuleCreationTemporaryFailed
	InsufficientTargetRSEs
	InsufficientAccountLimit
	RSEBlacklisted
	InputValidationError
)

func (k Kind) String() string {
	switch k {
	case SourceNotFound:
		return "SourceNotFound"
	case DestinationNotAccessible:
		return "DestinationNotAccessible"
	case ServiceUnavailable:
		return "ServiceUnavailable"
	case RucioException:
		return "RucioException"
	case DataIdentifierNotFound:
		return "DataIdentifierNotFound"
	case DatabaseException:
		return "DatabaseException"
	case InvalidReplicationRule:
		return "InvalidReplicationRule"
	case InvalidRuleWeight:
		return "InvalidRuleWeight"
	case InvalidRSEExpression:
		return "InvalidRSEExpression"
	case StagingAreaRuleRequiresLifetime:
		return "StagingAreaRuleRequiresLifetime"
	case DuplicateRule:
		return "DuplicateRule"
	case ReplicationRuleCreationTemporaryFailed:
		return "ReplicationRuleCreationTemporaryFailed"
	case InsufficientTargetRSEs:
		return "InsufficientTargetRSEs"
	case InsufficientAccountLimit:
		return "InsufficientAccountLimit"
	case RSEBlacklisted:
		return "RSEBlacklisted"
	case InputValidationError:
		return "InputValidationError"
	default:
		return "unknown"
	}
}

// Error is a taxonomy-classified error.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Msg }

// Is makes errors.Is(err, New(SomeKind, "")) match any Error of that Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs a taxonomy error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// KindOf extracts the Kind of err, or Unknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Disposition is the outcome of classifying an error for the purpose of
// the retry loops in the transmogrifier and reaper workers.
type Disposition int

const (
	// Retryable errors should be retried by the caller, up to its
	// attempt budget.
	Retryable Disposition = iota
	// TerminalSuccess errors terminate a retry loop as if the
	// operation had succeeded (e.g. DuplicateRule: some other attempt,
	// possibly from a previous run, already did the work).
	TerminalSuccess
	// TerminalFailure errors terminate a retry loop as a definitive,
	// non-retryable failure of this attempt (not of the whole DID).
	TerminalFailure
	// DisUnknown errors are unclassified; callers log and count them
	// without consuming a retry attempt.
	DisUnknown
)

// Classify maps a taxonomy error to a retry disposition per the policy
// table of spec §7.
func Classify(err error) Disposition {
	switch KindOf(err) {
	case DuplicateRule,
		InvalidReplicationRule,
		InvalidRuleWeight,
		InvalidRSEExpression,
		StagingAreaRuleRequiresLifetime:
		return TerminalSuccess
	case ReplicationRuleCreationTemporaryFailed,
		InsufficientTargetRSEs,
		InsufficientAccountLimit,
		RSEBlacklisted,
		DatabaseException:
		return Retryable
	case SourceNotFound,
		DestinationNotAccessible,
		ServiceUnavailable,
		RucioException,
		DataIdentifierNotFound,
		InputValidationError:
		return TerminalFailure
	default:
		return DisUnknown
	}
}
