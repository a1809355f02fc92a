package reservation

import "strings"

type PMSStatus string

const (
	PMSStatusBooked               PMSStatus = "booked"
	PMSStatusPreCheckinInProgress PMSStatus = "pre_checkin_in_progress"
	PMSStatusPreCheckinComplete   PMSStatus = "pre_checkin_complete"
	PMSStatusInHouse              PMSStatus = "in_house"
	PMSStatusCheckedOut           PMSStatus = "checked_out"
	PMSStatusUnknown              PMSStatus = "unknown"
)

// ParsePMSStatus maps both vendor status strings and our own stored values
// onto the closed set. Anything else becomes PMSStatusUnknown.
func ParsePMSStatus(raw string) PMSStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "confirmed", "not_confirmed", "booked":
		return PMSStatusBooked
	case "pre_checkin_in_progress":
		return PMSStatusPreCheckinInProgress
	case "pre_checkin_complete":
		return PMSStatusPreCheckinComplete
	case "checked_in", "in_house":
		return PMSStatusInHouse
	case "checked_out":
		return PMSStatusCheckedOut
	default:
		return PMSStatusUnknown
	}
}

// localProgress reports statuses that only this system knows about; a PMS
// "booked" must not overwrite them.
func (s PMSStatus) localProgress() bool {
	return s == PMSStatusPreCheckinInProgress || s == PMSStatusPreCheckinComplete
}

// MergePMSStatus decides the stored status when a PMS sync reports remote for
// a record currently at local.
func MergePMSStatus(local, remote PMSStatus) PMSStatus {
	switch {
	case remote == PMSStatusUnknown || remote == "":
		if local == "" {
			return PMSStatusUnknown
		}

		return local
	case remote == PMSStatusBooked && local.localProgress():
		return local
	default:
		return remote
	}
}

type DepositStatus string

const (
	DepositPending          DepositStatus = "pending"
	DepositInitiated        DepositStatus = "initiated"
	DepositAuthorized       DepositStatus = "authorized"
	DepositFailed           DepositStatus = "failed"
	DepositReleaseScheduled DepositStatus = "release_scheduled"
	DepositReleased         DepositStatus = "released"
	DepositError            DepositStatus = "error"
	DepositUnknown          DepositStatus = "unknown"
)

func ParseDepositStatus(raw string) DepositStatus {
	switch s := DepositStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case DepositPending, DepositInitiated, DepositAuthorized, DepositFailed,
		DepositReleaseScheduled, DepositReleased, DepositError:
		return s
	case "scheduled":
		return DepositReleaseScheduled
	default:
		return DepositUnknown
	}
}

func (s DepositStatus) Valid() bool {
	return ParseDepositStatus(string(s)) == s && s != DepositUnknown
}

var depositTransitions = map[DepositStatus][]DepositStatus{
	DepositPending:          {DepositInitiated, DepositAuthorized, DepositFailed, DepositReleased, DepositError},
	DepositInitiated:        {DepositAuthorized, DepositFailed, DepositReleased, DepositError},
	DepositAuthorized:       {DepositReleaseScheduled, DepositReleased, DepositError},
	DepositReleaseScheduled: {DepositReleased, DepositError},
	DepositFailed:           {DepositPending, DepositInitiated, DepositAuthorized, DepositReleased, DepositError},
}

// CanTransitionTo reports whether the deposit lifecycle allows moving from s to next.
func (s DepositStatus) CanTransitionTo(next DepositStatus) bool {
	for _, allowed := range depositTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}
