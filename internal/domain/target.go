package domain

import (
	"fmt"
	"strings"
)

// Target identifies one of the two vendor platforms holding a do-not-call list.
type Target string

const (
	TargetCloud  Target = "cloud"
	TargetOnPrem Target = "onPrem"
)

// AllTargets lists targets in the order responses and audit rows present them.
var AllTargets = []Target{TargetCloud, TargetOnPrem}

func (t Target) String() string { return string(t) }

func (t Target) IsValid() bool {
	switch t {
	case TargetCloud, TargetOnPrem:
		return true
	}
	return false
}

// Label is the environment label used in diagnostics and notifications.
func (t Target) Label() string {
	switch t {
	case TargetCloud:
		return "Cloud"
	case TargetOnPrem:
		return "OnPremise"
	}
	return "Unknown"
}

// JSONKey is the key a target's result is published under.
func (t Target) JSONKey() string { return string(t) }

// DuplicateToken is the reason reported when the vendor answers DuplicateKey.
func (t Target) DuplicateToken() string {
	switch t {
	case TargetCloud:
		return "JA_EXISTE_CLOUD"
	case TargetOnPrem:
		return "JA_EXISTE_ON_PREM"
	}
	return "JA_EXISTE"
}

// Operation is the mutating call issued against a target list.
type Operation string

const (
	OperationAdd    Operation = "ADD"
	OperationRemove Operation = "REMOVE"
)

func (o Operation) String() string { return string(o) }

func (o Operation) IsValid() bool {
	switch o {
	case OperationAdd, OperationRemove:
		return true
	}
	return false
}

// Discriminator is the vendor-side tag identifying the caller of the list API.
func (o Operation) Discriminator() string {
	if o == OperationRemove {
		return "DNCL_REMOVER"
	}
	return "DNCL_LOADER"
}

// Credentials are the username/password pair used for a vendor password grant.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) IsZero() bool {
	return strings.TrimSpace(c.Username) == "" && c.Password == ""
}

// String masks the password so credentials can be logged safely.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username: %q, Password: ***}", c.Username)
}

// CredentialSet maps each requested target to its explicit credentials.
// A nil entry means the invoker resolves credentials on its own.
type CredentialSet map[Target]*Credentials

// Login returns the username supplied for target, if any.
func (s CredentialSet) Login(target Target) *string {
	if s == nil {
		return nil
	}
	creds := s[target]
	if creds == nil || strings.TrimSpace(creds.Username) == "" {
		return nil
	}
	login := creds.Username
	return &login
}

// TargetRequest is the list entry shared by every target of one call.
type TargetRequest struct {
	listName    string
	phoneNumber string
}

func NewTargetRequest(listName string, phoneNumber string) (TargetRequest, error) {
	listName = strings.TrimSpace(listName)
	phoneNumber = strings.TrimSpace(phoneNumber)

	if listName == "" {
		return TargetRequest{}, fmt.Errorf("%w: doNotCallListName is required", ErrValidation)
	}
	if phoneNumber == "" {
		return TargetRequest{}, fmt.Errorf("%w: number is required", ErrValidation)
	}

	return TargetRequest{listName: listName, phoneNumber: phoneNumber}, nil
}

func (r TargetRequest) ListName() string    { return r.listName }
func (r TargetRequest) PhoneNumber() string { return r.phoneNumber }

func (r TargetRequest) IsZero() bool {
	return r.listName == "" && r.phoneNumber == ""
}
