package rbac

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleParticipant Role = "participant"
)

// Capabilities is the fixed capability record carried by every membership.
// Adding a capability is a compile-time-checked change everywhere it is
// consulted; there is no dynamic permission map.
type Capabilities struct {
	CanUpload     bool `json:"canUpload"`
	CanEditOthers bool `json:"canEditOthers"`
	CanManage     bool `json:"canManage"`
}

// AdminCapabilities is the full set granted to a tenant's creator.
func AdminCapabilities() Capabilities {
	return Capabilities{CanUpload: true, CanEditOthers: true, CanManage: true}
}

// DefaultCapabilities is the set granted to a participant unless the invite
// says otherwise.
func DefaultCapabilities() Capabilities {
	return Capabilities{CanUpload: true}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleAdmin, RoleParticipant:
		return Role(role)
	default:
		return RoleParticipant
	}
}
