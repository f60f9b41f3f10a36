package queue

import "roommate/server/internal/apperr"

var (
	ErrListingClosed     = apperr.New(apperr.InvalidState, "listing is not accepting interest")
	ErrDuplicateInterest = apperr.New(apperr.Conflict, "tenant or group already has an open interest on this listing")
	ErrAdmissionRace     = apperr.New(apperr.Conflict, "active slot was taken concurrently, retry to join the waitlist")
	ErrTenantBlocked     = apperr.New(apperr.Blocked, "tenant is temporarily blocked from expressing interest")
	ErrNotInActiveQueue  = apperr.New(apperr.InvalidState, "interest is not in the active queue")
	ErrGroupDissolved    = apperr.New(apperr.InvalidState, "group has been dissolved")
	ErrNotGroupMember    = apperr.New(apperr.Unauthorized, "tenant is not a member of the group")
)
