package domain

// Status is the canonical schedule status shared by induction and review
// schedules. Exactly one status is current per version; exemption statuses
// carry the reason in the status itself.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"

	// Automated exemptions, applied by lifecycle events.
	StatusExemptTransfer         Status = "exempt-transfer"
	StatusExemptTemporaryAbsence Status = "exempt-temporary-absence"
	StatusExemptRelease          Status = "exempt-release"
	StatusExemptDeath            Status = "exempt-death"
	StatusExemptMerge            Status = "exempt-merge"

	// Manual exemptions, applied by staff through the application.
	// Lifecycle events never override these.
	StatusExemptDrugAlcoholDependency Status = "exempt-drug-alcohol-dependency"
	StatusExemptHealthIssue           Status = "exempt-health-issue"
	StatusExemptSafetyIssue           Status = "exempt-safety-issue"
	StatusExemptStaffRedeployment     Status = "exempt-staff-redeployment"
	StatusExemptSecurityIssue         Status = "exempt-security-issue"
)

// IsTerminal reports whether the status ends the schedule's lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

// IsExemption reports whether the status is any exemption.
func (s Status) IsExemption() bool {
	return s.IsAutomatedExemption() || s.IsManualExemption()
}

// IsAutomatedExemption reports whether the status is an exemption applied
// by a lifecycle event.
func (s Status) IsAutomatedExemption() bool {
	switch s {
	case StatusExemptTransfer, StatusExemptTemporaryAbsence,
		StatusExemptRelease, StatusExemptDeath, StatusExemptMerge:
		return true
	}
	return false
}

// ManualExemptionReasons returns every staff-applied exemption status, in a
// stable order. Surfaces that present the valid reasons to staff build their
// lists from this.
func ManualExemptionReasons() []Status {
	return []Status{
		StatusExemptDrugAlcoholDependency,
		StatusExemptHealthIssue,
		StatusExemptSafetyIssue,
		StatusExemptStaffRedeployment,
		StatusExemptSecurityIssue,
	}
}

// IsManualExemption reports whether the status is a staff-applied exemption.
func (s Status) IsManualExemption() bool {
	switch s {
	case StatusExemptDrugAlcoholDependency, StatusExemptHealthIssue,
		StatusExemptSafetyIssue, StatusExemptStaffRedeployment,
		StatusExemptSecurityIssue:
		return true
	}
	return false
}

// CalculationRule names the business rule that produced a deadline. It is
// carried for audit and reporting only; later calculations never read it.
type CalculationRule string

const (
	RuleNewAdmission           CalculationRule = "new-admission"
	RuleNewAdmissionExtended   CalculationRule = "new-admission-extended"
	RuleTransfer               CalculationRule = "transfer"
	RuleTemporaryAbsenceReturn CalculationRule = "temporary-absence-return"
	RuleReadmission            CalculationRule = "prisoner-readmission"
	RuleNextReview             CalculationRule = "next-review"
	RuleExemptionCleared       CalculationRule = "exemption-cleared"
)
