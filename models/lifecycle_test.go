package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pendingRequest() *EmergencyDetails {
	return &EmergencyDetails{
		Status: StatusPending,
		Patient: PatientSnapshot{
			UserID:   "patient-1",
			FullName: "Jane Doe",
		},
	}
}

func TestAuthorizeForwardPath(t *testing.T) {
	policy := DefaultTransitionPolicy
	driver := CallerIdentity{ID: "driver-1", Role: RoleDriver}
	hospital := CallerIdentity{ID: "hospital-1", Role: RoleHospital}

	e := pendingRequest()
	assert.NoError(t, policy.Authorize(e, StatusAccepted, driver))

	e.Status = StatusAccepted
	e.AssignedResponder = "driver-1"
	assert.NoError(t, policy.Authorize(e, StatusEnRoute, driver))

	e.Status = StatusEnRoute
	assert.NoError(t, policy.Authorize(e, StatusArrived, driver))

	e.Status = StatusArrived
	assert.NoError(t, policy.Authorize(e, StatusCompleted, hospital))
}

func TestAuthorizeRejectsEveryEdgeOutsideTheGraph(t *testing.T) {
	policy := DefaultTransitionPolicy
	admin := CallerIdentity{ID: "admin-1", Role: RoleAdmin}

	legal := map[[2]EmergencyStatus]bool{
		{StatusPending, StatusAccepted}:   true,
		{StatusAccepted, StatusEnRoute}:  true,
		{StatusEnRoute, StatusArrived}:   true,
		{StatusArrived, StatusCompleted}: true,
	}

	all := []EmergencyStatus{StatusPending, StatusAccepted, StatusEnRoute, StatusArrived, StatusCompleted, StatusCancelled}
	for _, from := range all {
		for _, to := range all {
			if legal[[2]EmergencyStatus{from, to}] || to == StatusCancelled {
				continue
			}
			e := pendingRequest()
			e.Status = from
			err := policy.Authorize(e, to, admin)
			assert.ErrorIs(t, err, ErrInvalidTransition, "edge %s -> %s should be illegal", from, to)
		}
	}
}

func TestAuthorizeTerminalStatesAbsorb(t *testing.T) {
	policy := DefaultTransitionPolicy
	admin := CallerIdentity{ID: "admin-1", Role: RoleAdmin}

	for _, terminal := range []EmergencyStatus{StatusCompleted, StatusCancelled} {
		e := pendingRequest()
		e.Status = terminal
		for _, to := range []EmergencyStatus{StatusPending, StatusAccepted, StatusEnRoute, StatusArrived, StatusCompleted, StatusCancelled} {
			assert.ErrorIs(t, policy.Authorize(e, to, admin), ErrInvalidTransition)
		}
	}
}

func TestAuthorizeRoleGates(t *testing.T) {
	policy := DefaultTransitionPolicy

	// patients may not accept
	e := pendingRequest()
	err := policy.Authorize(e, StatusAccepted, CallerIdentity{ID: "patient-1", Role: RolePatient})
	assert.ErrorIs(t, err, ErrUnauthorizedTransition)

	// emts may accept
	assert.NoError(t, policy.Authorize(e, StatusAccepted, CallerIdentity{ID: "emt-1", Role: RoleEmt}))

	// only the assigned responder advances beyond accepted
	e.Status = StatusAccepted
	e.AssignedResponder = "driver-1"
	err = policy.Authorize(e, StatusEnRoute, CallerIdentity{ID: "driver-2", Role: RoleDriver})
	assert.ErrorIs(t, err, ErrUnauthorizedTransition)

	// drivers may not complete
	e.Status = StatusArrived
	err = policy.Authorize(e, StatusCompleted, CallerIdentity{ID: "driver-1", Role: RoleDriver})
	assert.ErrorIs(t, err, ErrUnauthorizedTransition)
}

func TestAuthorizeCompletedFromPendingIsInvalidBeforeRoleCheck(t *testing.T) {
	policy := DefaultTransitionPolicy
	e := pendingRequest()

	err := policy.Authorize(e, StatusCompleted, CallerIdentity{ID: "driver-1", Role: RoleDriver})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAuthorizeCancel(t *testing.T) {
	policy := DefaultTransitionPolicy

	e := pendingRequest()
	e.Status = StatusEnRoute
	e.AssignedResponder = "driver-1"

	assert.NoError(t, policy.Authorize(e, StatusCancelled, CallerIdentity{ID: "patient-1", Role: RolePatient}))
	assert.NoError(t, policy.Authorize(e, StatusCancelled, CallerIdentity{ID: "driver-1", Role: RoleDriver}))
	assert.NoError(t, policy.Authorize(e, StatusCancelled, CallerIdentity{ID: "admin-1", Role: RoleAdmin}))

	// an uninvolved user may not cancel
	err := policy.Authorize(e, StatusCancelled, CallerIdentity{ID: "driver-9", Role: RoleDriver})
	assert.ErrorIs(t, err, ErrUnauthorizedTransition)
}

func TestAuthorizeCancelAfterArrivalIsConfigurable(t *testing.T) {
	e := pendingRequest()
	e.Status = StatusArrived
	e.AssignedResponder = "driver-1"
	caller := CallerIdentity{ID: "patient-1", Role: RolePatient}

	assert.NoError(t, DefaultTransitionPolicy.Authorize(e, StatusCancelled, caller))

	strict := TransitionPolicy{AllowCancelAfterArrival: false}
	assert.ErrorIs(t, strict.Authorize(e, StatusCancelled, caller), ErrInvalidTransition)
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusEnRoute.Valid())
	assert.False(t, EmergencyStatus("lost").Valid())
}
