package domain

// Step is one entry in the ordered list of status changes a lifecycle event
// produces. A re-entry event yields two steps (exemption, then reschedule);
// returning them as one list lets callers apply both atomically so a partial
// application (exemption written, reschedule lost) cannot occur.
type Step struct {
	Status Status
	// Rule is set on reschedule steps; the deadline calculator pairs it
	// with a reference date to produce the new deadline or window.
	Rule CalculationRule
}

// Reschedules reports whether this step replaces the deadline.
func (s Step) Reschedules() bool {
	return s.Status == StatusScheduled
}

// Transition is the pure decision table mapping (current status, event kind)
// to the ordered steps to apply. An empty result is a no-op: completed
// schedules are never reopened, manual exemptions are never overridden by
// automated events, and re-applying an event against its own resulting
// status changes nothing. That last property is what makes at-least-once
// delivery safe.
func Transition(current Status, kind EventKind) []Step {
	if current.IsTerminal() {
		return nil
	}

	switch kind {
	case KindAdmission, KindTransfer, KindTemporaryAbsenceReturn:
		if current.IsManualExemption() {
			return nil
		}
		return []Step{
			{Status: exemptionFor(kind)},
			{Status: StatusScheduled, Rule: rescheduleRuleFor(kind)},
		}

	case KindRelease:
		if current.IsExemption() {
			return nil
		}
		return []Step{{Status: StatusExemptRelease}}

	case KindDeath:
		if current.IsExemption() {
			return nil
		}
		return []Step{{Status: StatusExemptDeath}}

	case KindMerge:
		if current.IsExemption() {
			return nil
		}
		return []Step{{Status: StatusExemptMerge}}
	}

	return nil
}

func exemptionFor(kind EventKind) Status {
	if kind == KindTemporaryAbsenceReturn {
		return StatusExemptTemporaryAbsence
	}
	return StatusExemptTransfer
}

func rescheduleRuleFor(kind EventKind) CalculationRule {
	if kind == KindTemporaryAbsenceReturn {
		return RuleTemporaryAbsenceReturn
	}
	return RuleTransfer
}
