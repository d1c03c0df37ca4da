package domain

import "time"

// DeadlineRules holds the date-arithmetic business constants. The values are
// policy, not invariants, so they are configuration rather than code.
type DeadlineRules struct {
	// AdmissionLeadDays is the induction deadline offset for a person
	// admitted with no prior schedule.
	AdmissionLeadDays int
	// ExtendedAdmissionLeadDays replaces AdmissionLeadDays when the
	// reference date falls inside the holiday window.
	ExtendedAdmissionLeadDays int
	// HolidayFrom/HolidayTo bound the extended-deadline period. Zero
	// values disable it.
	HolidayFrom time.Time
	HolidayTo   time.Time

	// RescheduleLeadDays is the induction deadline offset after a
	// transfer or temporary-absence return.
	RescheduleLeadDays int

	// ReviewTransferWindowDays is the review window length after a
	// transfer (and for readmission restarts).
	ReviewTransferWindowDays int
	// ReviewAbsenceWindowDays is the review window length after a
	// temporary-absence return.
	ReviewAbsenceWindowDays int

	// ReviewIntervalDays is how far out the next review cycle is placed
	// when a review completes.
	ReviewIntervalDays int

	// PreReleaseHorizonDays is the remaining-sentence horizon below which
	// a completed review is final and no next cycle starts.
	PreReleaseHorizonDays int
}

// DefaultDeadlineRules returns the standard policy values.
func DefaultDeadlineRules() DeadlineRules {
	return DeadlineRules{
		AdmissionLeadDays:         20,
		ExtendedAdmissionLeadDays: 40,
		RescheduleLeadDays:        5,
		ReviewTransferWindowDays:  10,
		ReviewAbsenceWindowDays:   5,
		ReviewIntervalDays:        90,
		PreReleaseHorizonDays:     17,
	}
}

// DateOnly truncates a timestamp to a UTC calendar date. All deadlines are
// date-granular.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (r DeadlineRules) inHolidayWindow(ref time.Time) bool {
	if r.HolidayFrom.IsZero() || r.HolidayTo.IsZero() {
		return false
	}
	return !ref.Before(r.HolidayFrom) && !ref.After(r.HolidayTo)
}

// InductionDeadline computes the induction deadline for an event kind.
// The reference date is always "now" at processing time, never the event's
// occurrence time, so queue delay cannot skew deadlines.
func (r DeadlineRules) InductionDeadline(kind EventKind, ref time.Time) (time.Time, CalculationRule) {
	ref = DateOnly(ref)

	switch kind {
	case KindAdmission:
		if r.inHolidayWindow(ref) {
			return ref.AddDate(0, 0, r.ExtendedAdmissionLeadDays), RuleNewAdmissionExtended
		}
		return ref.AddDate(0, 0, r.AdmissionLeadDays), RuleNewAdmission
	case KindTemporaryAbsenceReturn:
		return ref.AddDate(0, 0, r.RescheduleLeadDays), RuleTemporaryAbsenceReturn
	default:
		return ref.AddDate(0, 0, r.RescheduleLeadDays), RuleTransfer
	}
}

// ReviewWindow computes the review date window for an event kind.
func (r DeadlineRules) ReviewWindow(kind EventKind, ref time.Time) (from, to time.Time, rule CalculationRule) {
	ref = DateOnly(ref)

	switch kind {
	case KindTemporaryAbsenceReturn:
		return ref, ref.AddDate(0, 0, r.ReviewAbsenceWindowDays), RuleTemporaryAbsenceReturn
	default:
		return ref, ref.AddDate(0, 0, r.ReviewTransferWindowDays), RuleTransfer
	}
}

// InitialReviewWindow computes the window for the first review schedule of a
// person, created once their induction is complete and an action plan exists.
func (r DeadlineRules) InitialReviewWindow(ref time.Time) (from, to time.Time, rule CalculationRule) {
	ref = DateOnly(ref)
	return ref, ref.AddDate(0, 0, r.ReviewTransferWindowDays), RuleNewAdmission
}

// NextReviewWindow computes the window for the cycle that follows a
// completed review.
func (r DeadlineRules) NextReviewWindow(ref time.Time) (from, to time.Time, rule CalculationRule) {
	ref = DateOnly(ref)
	to = ref.AddDate(0, 0, r.ReviewIntervalDays)
	from = to.AddDate(0, 0, -r.ReviewTransferWindowDays)
	return from, to, RuleNextReview
}

// ReadmissionWindow computes the window for a review cycle restarted by a
// transfer after a pre-release completion.
func (r DeadlineRules) ReadmissionWindow(ref time.Time) (from, to time.Time, rule CalculationRule) {
	ref = DateOnly(ref)
	return ref, ref.AddDate(0, 0, r.ReviewTransferWindowDays), RuleReadmission
}

// WithinPreReleaseHorizon reports whether a release date leaves less than
// (or exactly) the pre-release horizon remaining from the reference date.
// A nil release date means no release is planned.
func (r DeadlineRules) WithinPreReleaseHorizon(releaseDate *time.Time, ref time.Time) bool {
	if releaseDate == nil {
		return false
	}
	remaining := DateOnly(*releaseDate).Sub(DateOnly(ref))
	return remaining <= time.Duration(r.PreReleaseHorizonDays)*24*time.Hour
}
