// Package admission decides whether an identity may authenticate or use the
// synthesis resource.
//
// Admission is monotonic: an identity moves from Unverified to Verified when
// its email is confirmed, and is Admitted once an administrator has approved
// it as well. Approval may be recorded before verification; the identity is
// still not admitted until both flags hold. No transition clears a flag.
package admission

import "github.com/viaifoundation/ttsgate/internal/server/models"

type State int

const (
	Unverified State = iota
	Verified
	Admitted
)

func (s State) String() string {
	switch s {
	case Unverified:
		return "unverified"
	case Verified:
		return "verified"
	case Admitted:
		return "admitted"
	}
	return "unknown"
}

// StateOf derives the admission state from the stored flags. An identity that
// is approved but not yet verified is reported as Unverified.
func StateOf(identity *models.Identity) State {
	if identity == nil || !identity.EmailVerified {
		return Unverified
	}
	if !identity.AdminApproved {
		return Verified
	}
	return Admitted
}

func CanAuthenticate(identity *models.Identity) bool {
	return StateOf(identity) == Admitted
}

// CanUsePrivilegedResource shares the authentication gate.
func CanUsePrivilegedResource(identity *models.Identity) bool {
	return CanAuthenticate(identity)
}
