package signature

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. A negative verification result is not an error and has no kind.
var (
	ErrKeyGeneration          = errors.New("key generation failed")
	ErrKeyDecoding            = errors.New("public key decoding failed")
	ErrSigning                = errors.New("signing failed")
	ErrVerificationStructural = errors.New("verification failed structurally")
)

// Operations named in verification errors.
const (
	OpParsePublicKey = "parse public key"
	OpCheckPublicKey = "check public key"
	OpCheckSignature = "check signature"
	OpReadMessage    = "read message"
	OpVerifyDigest   = "verify digest"
)

// Error carries the kind of failure together with the operation and the
// artifact (file, key id or scheme) it happened on.
type Error struct {
	Kind     error
	Op       string
	Artifact string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Artifact != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Artifact)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error kind so callers can use errors.Is(err, ErrSigning).
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func NewError(kind error, op string, artifact string, err error) *Error {
	return &Error{
		Kind:     kind,
		Op:       op,
		Artifact: artifact,
		Err:      err,
	}
}

// WithArtifact returns err re-attributed to artifact, keeping its kind and
// operation. Errors that are not *Error are returned unchanged.
func WithArtifact(err error, artifact string) error {
	var sigErr *Error
	if !errors.As(err, &sigErr) {
		return err
	}
	return NewError(sigErr.Kind, sigErr.Op, artifact, sigErr.Err)
}

func newKeyDecodingError(op, artifact string, err error) error {
	return NewError(ErrKeyDecoding, op, artifact, err)
}

func newSigningError(op, artifact string, err error) error {
	return NewError(ErrSigning, op, artifact, err)
}

func newStructuralError(op, artifact string, err error) error {
	return NewError(ErrVerificationStructural, op, artifact, err)
}

// KindOf returns the error kind carried by err, or nil for foreign errors.
func KindOf(err error) error {
	var sigErr *Error
	if errors.As(err, &sigErr) {
		return sigErr.Kind
	}
	return nil
}
