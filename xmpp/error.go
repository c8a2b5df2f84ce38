/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xmpp

import (
	"fmt"
)

// StanzaError represents a stanza "error" element.
type StanzaError struct {
	errorType string
	condition string
	text      string
}

func newStanzaError(errorType string, condition string) *StanzaError {
	return &StanzaError{
		errorType: errorType,
		condition: condition,
	}
}

// NewStanzaErrorFromElement decodes an <error/> element received from a peer.
// Unknown conditions are kept verbatim.
func NewStanzaErrorFromElement(e XElement) *StanzaError {
	if e == nil {
		return nil
	}
	se := &StanzaError{errorType: e.Type()}
	for _, child := range e.Elements().All() {
		if child.Namespace() != NamespaceStanzas {
			continue
		}
		if child.Name() == "text" {
			se.text = child.Text()
			continue
		}
		if len(se.condition) == 0 {
			se.condition = child.Name()
		}
	}
	if len(se.condition) == 0 {
		se.condition = undefinedConditionErrorReason
	}
	return se
}

// Error satisfies error interface.
func (se *StanzaError) Error() string {
	if len(se.text) > 0 {
		return fmt.Sprintf("%s (%s): %s", se.condition, se.errorType, se.text)
	}
	return fmt.Sprintf("%s (%s)", se.condition, se.errorType)
}

// Type returns the error type ('auth', 'cancel', 'modify', 'wait').
func (se *StanzaError) Type() string {
	return se.errorType
}

// Condition returns the defined condition name.
func (se *StanzaError) Condition() string {
	return se.condition
}

// Text returns the optional human readable description.
func (se *StanzaError) Text() string {
	return se.text
}

// Element returns StanzaError equivalent XML element.
func (se *StanzaError) Element() *Element {
	err := &Element{}
	err.SetName("error")
	err.SetAttribute("type", se.errorType)
	err.AppendElement(NewElementNamespace(se.condition, NamespaceStanzas))
	if len(se.text) > 0 {
		err.AppendElement(NewElementNamespace("text", NamespaceStanzas).SetText(se.text))
	}
	return err
}

const (
	authErrorType   = "auth"
	cancelErrorType = "cancel"
	modifyErrorType = "modify"
	waitErrorType   = "wait"
)

const (
	badRequestErrorReason            = "bad-request"
	conflictErrorReason              = "conflict"
	featureNotImplementedErrorReason = "feature-not-implemented"
	forbiddenErrorReason             = "forbidden"
	internalServerErrorErrorReason   = "internal-server-error"
	itemNotFoundErrorReason          = "item-not-found"
	jidMalformedErrorReason          = "jid-malformed"
	notAcceptableErrorReason         = "not-acceptable"
	notAllowedErrorReason            = "not-allowed"
	notAuthorizedErrorReason         = "not-authorized"
	recipientUnavailableErrorReason  = "recipient-unavailable"
	remoteServerNotFoundErrorReason  = "remote-server-not-found"
	remoteServerTimeoutErrorReason   = "remote-server-timeout"
	resourceConstraintErrorReason    = "resource-constraint"
	serviceUnavailableErrorReason    = "service-unavailable"
	undefinedConditionErrorReason    = "undefined-condition"
	unexpectedConditionErrorReason   = "unexpected-condition"
)

var (
	// ErrBadRequest is returned when the sender has sent XML that is malformed or that cannot be processed.
	ErrBadRequest = newStanzaError(modifyErrorType, badRequestErrorReason)

	// ErrConflict is returned when access cannot be granted because an existing resource exists with the same name.
	ErrConflict = newStanzaError(cancelErrorType, conflictErrorReason)

	// ErrFeatureNotImplemented is returned when the feature requested is not implemented by the recipient.
	ErrFeatureNotImplemented = newStanzaError(cancelErrorType, featureNotImplementedErrorReason)

	// ErrForbidden is returned when the requesting entity does not possess the required permissions.
	ErrForbidden = newStanzaError(authErrorType, forbiddenErrorReason)

	// ErrInternalServerError is returned when the recipient could not process the stanza.
	ErrInternalServerError = newStanzaError(cancelErrorType, internalServerErrorErrorReason)

	// ErrItemNotFound is returned when the addressed JID or item requested cannot be found.
	ErrItemNotFound = newStanzaError(cancelErrorType, itemNotFoundErrorReason)

	// ErrJidMalformed is returned when the sending entity has provided an invalid XMPP address.
	ErrJidMalformed = newStanzaError(modifyErrorType, jidMalformedErrorReason)

	// ErrNotAcceptable is returned when the request does not meet criteria defined by the recipient.
	ErrNotAcceptable = newStanzaError(modifyErrorType, notAcceptableErrorReason)

	// ErrNotAllowed is returned when the recipient does not allow any entity to perform the action.
	ErrNotAllowed = newStanzaError(cancelErrorType, notAllowedErrorReason)

	// ErrNotAuthorized is returned when the sender needs to provide proper credentials.
	ErrNotAuthorized = newStanzaError(authErrorType, notAuthorizedErrorReason)

	// ErrRecipientUnavailable is returned when the intended recipient is temporarily unavailable.
	ErrRecipientUnavailable = newStanzaError(waitErrorType, recipientUnavailableErrorReason)

	// ErrRemoteServerNotFound is returned when a remote server could not be contacted.
	ErrRemoteServerNotFound = newStanzaError(cancelErrorType, remoteServerNotFoundErrorReason)

	// ErrRemoteServerTimeout is returned when a remote server could not be contacted in time.
	ErrRemoteServerTimeout = newStanzaError(waitErrorType, remoteServerTimeoutErrorReason)

	// ErrResourceConstraint is returned when the recipient lacks the resources to service the request.
	ErrResourceConstraint = newStanzaError(waitErrorType, resourceConstraintErrorReason)

	// ErrServiceUnavailable is returned when the recipient does not provide the requested service.
	ErrServiceUnavailable = newStanzaError(cancelErrorType, serviceUnavailableErrorReason)

	// ErrUndefinedCondition is returned when the error condition is not one of those defined.
	ErrUndefinedCondition = newStanzaError(waitErrorType, undefinedConditionErrorReason)

	// ErrUnexpectedCondition is returned when the recipient understood the request but was not expecting it.
	ErrUnexpectedCondition = newStanzaError(waitErrorType, unexpectedConditionErrorReason)
)
