package models

import "errors"

// EmergencyStatus is the lifecycle state of an emergency request
type EmergencyStatus string

// Lifecycle states. Forward order is pending -> accepted -> en_route ->
// arrived -> completed. Cancelled is reachable from any non-terminal state.
const (
	StatusPending   EmergencyStatus = "pending"
	StatusAccepted  EmergencyStatus = "accepted"
	StatusEnRoute   EmergencyStatus = "en_route"
	StatusArrived   EmergencyStatus = "arrived"
	StatusCompleted EmergencyStatus = "completed"
	StatusCancelled EmergencyStatus = "cancelled"
)

// Role is the account role of a user
type Role string

// Account roles
const (
	RolePatient   Role = "patient"
	RoleDriver    Role = "driver"
	RoleEmt       Role = "emt"
	RoleHospital  Role = "hospital"
	RoleInsurance Role = "insurance"
	RoleAdmin     Role = "admin"
)

// ValidRoles lists every role accepted at registration
var ValidRoles = []Role{RolePatient, RoleDriver, RoleEmt, RoleHospital, RoleInsurance, RoleAdmin}

// Valid reports whether r is one of the defined roles
func (r Role) Valid() bool {
	for _, role := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// CallerIdentity is the authenticated caller as supplied by the auth middleware
type CallerIdentity struct {
	ID   string
	Role Role
}

// Transition errors surfaced by the lifecycle authorizer. Handlers map these
// to 409 and 403 respectively.
var (
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrUnauthorizedTransition = errors.New("caller not authorized for this transition")
)

// Valid reports whether s is one of the defined lifecycle states
func (s EmergencyStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusEnRoute, StatusArrived, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s accepts no further transitions
func (s EmergencyStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type edge struct {
	from EmergencyStatus
	to   EmergencyStatus
}

// transitionRule says who may drive a forward edge. assignedOnly means the
// caller must be the responder already assigned to the request.
type transitionRule struct {
	roles        map[Role]bool
	assignedOnly bool
}

// forwardRules is the capability table for the forward edges of the state
// machine. Cancellation is handled separately because its from-state is any
// non-terminal state.
var forwardRules = map[edge]transitionRule{
	{StatusPending, StatusAccepted}: {
		roles: map[Role]bool{RoleDriver: true, RoleEmt: true},
	},
	{StatusAccepted, StatusEnRoute}: {
		roles:        map[Role]bool{RoleDriver: true, RoleEmt: true},
		assignedOnly: true,
	},
	{StatusEnRoute, StatusArrived}: {
		roles:        map[Role]bool{RoleDriver: true, RoleEmt: true},
		assignedOnly: true,
	},
	{StatusArrived, StatusCompleted}: {
		roles: map[Role]bool{RoleHospital: true, RoleAdmin: true},
	},
}

// TransitionPolicy decides which callers may move a request between lifecycle
// states. AllowCancelAfterArrival is configurable because source systems
// disagree on whether a patient already being transported can still cancel.
type TransitionPolicy struct {
	AllowCancelAfterArrival bool
}

// DefaultTransitionPolicy allows cancellation from every non-terminal state
var DefaultTransitionPolicy = TransitionPolicy{AllowCancelAfterArrival: true}

// Authorize checks a requested transition against the capability table. The
// legality of the edge is checked before the caller's role so that an illegal
// transition is always reported as such regardless of who asks for it.
func (p TransitionPolicy) Authorize(e *EmergencyDetails, requested EmergencyStatus, caller CallerIdentity) error {
	current := e.Status

	if !requested.Valid() || current.Terminal() {
		return ErrInvalidTransition
	}

	if requested == StatusCancelled {
		if current == StatusArrived && !p.AllowCancelAfterArrival {
			return ErrInvalidTransition
		}
		return p.authorizeCancel(e, caller)
	}

	rule, ok := forwardRules[edge{current, requested}]
	if !ok {
		return ErrInvalidTransition
	}
	if !rule.roles[caller.Role] {
		return ErrUnauthorizedTransition
	}
	if rule.assignedOnly && !e.IsAssignedResponder(caller.ID) {
		return ErrUnauthorizedTransition
	}
	return nil
}

// authorizeCancel allows any involved party to cancel: the patient the
// request belongs to, the assigned responder, or an admin.
func (p TransitionPolicy) authorizeCancel(e *EmergencyDetails, caller CallerIdentity) error {
	switch {
	case caller.Role == RoleAdmin:
		return nil
	case caller.ID != "" && caller.ID == e.Patient.UserID:
		return nil
	case e.IsAssignedResponder(caller.ID):
		return nil
	}
	return ErrUnauthorizedTransition
}
