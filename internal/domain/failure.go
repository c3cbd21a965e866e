package domain

// EnvironmentLogging labels notifications raised by a failed audit write.
const EnvironmentLogging = "Logging"

// RequestSnapshot is the password-free view of a request handed to
// notifications.
type RequestSnapshot struct {
	ListName    string  `json:"doNotCallListName"`
	PhoneNumber string  `json:"number"`
	LoginCloud  *string `json:"cloudLogin,omitempty"`
	LoginOnPrem *string `json:"onPremLogin,omitempty"`
}

func NewRequestSnapshot(req TargetRequest, creds CredentialSet) RequestSnapshot {
	return RequestSnapshot{
		ListName:    req.ListName(),
		PhoneNumber: req.PhoneNumber(),
		LoginCloud:  creds.Login(TargetCloud),
		LoginOnPrem: creds.Login(TargetOnPrem),
	}
}

// FailureNotification describes one failure to report out of band.
type FailureNotification struct {
	Environment string
	Request     RequestSnapshot
	ErrorDetail string
	Attachments []string
}
