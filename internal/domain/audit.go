package domain

// AuditRecord is the persisted trace of one removal call. It holds logins
// only; passwords never reach it.
type AuditRecord struct {
	PhoneNumber  string
	ListName     string
	LoginCloud   *string
	LoginOnPrem  *string
	CloudStatus  *string
	OnPremStatus *string
	Status       AggregateStatus
}

func NewAuditRecord(
	req TargetRequest,
	creds CredentialSet,
	outcomes map[Target]TargetOutcome,
	status AggregateStatus,
) AuditRecord {
	record := AuditRecord{
		PhoneNumber: req.PhoneNumber(),
		ListName:    req.ListName(),
		Status:      status,
	}

	if outcome, ok := outcomes[TargetCloud]; ok {
		value := outcome.AuditStatus()
		record.CloudStatus = &value
		record.LoginCloud = creds.Login(TargetCloud)
	}
	if outcome, ok := outcomes[TargetOnPrem]; ok {
		value := outcome.AuditStatus()
		record.OnPremStatus = &value
		record.LoginOnPrem = creds.Login(TargetOnPrem)
	}

	return record
}
