package rbac

type Role string
type Action string

const (
	RoleNone        Role = "none"
	RoleParticipant Role = "participant"
	RoleModerator   Role = "moderator"
	RoleAuthor      Role = "author"
	RoleStaff       Role = "staff"
)

const (
	ActionReadBoard     Action = "read_board"
	ActionUpdateBoard   Action = "update_board"
	ActionDeleteBoard   Action = "delete_board"
	ActionSetModerator  Action = "set_moderator"
	ActionManageMembers Action = "manage_members"
	ActionEditTag       Action = "edit_tag"
	ActionEditContent   Action = "edit_content"
	ActionFavorite      Action = "favorite"
	ActionLeave         Action = "leave"
)

// BoardScoped is implemented by every entity that lives inside a board.
type BoardScoped interface {
	OwningBoard() int64
}

// Authored is implemented by entities that only their creator may change.
type Authored interface {
	AuthoredBy() int64
}

// Addressed is implemented by entities that only their recipient may act on.
type Addressed interface {
	AddressedTo() int64
}

// Actor is the authenticated caller.
type Actor struct {
	UserID  int64
	IsStaff bool
}

// Membership is the caller's standing on a single board.
type Membership struct {
	Member      bool
	IsModerator bool
	IsAuthor    bool
}

// RoleFor resolves the broadest role an actor holds on a board.
func RoleFor(actor Actor, m Membership) Role {
	switch {
	case actor.IsStaff:
		return RoleStaff
	case m.IsAuthor:
		return RoleAuthor
	case m.Member && m.IsModerator:
		return RoleModerator
	case m.Member:
		return RoleParticipant
	default:
		return RoleNone
	}
}

func Can(role Role, action Action) bool {
	switch role {
	case RoleStaff, RoleAuthor:
		return true
	case RoleModerator:
		return action != ActionUpdateBoard && action != ActionDeleteBoard && action != ActionSetModerator
	case RoleParticipant:
		return action == ActionReadBoard || action == ActionEditContent || action == ActionFavorite || action == ActionLeave
	default:
		return false
	}
}

// CanChange reports whether the actor created the target. Staff get no bypass.
func CanChange(actor Actor, target Authored) bool {
	return target.AuthoredBy() == actor.UserID
}

// CanRespond reports whether the actor is the recipient of the target.
func CanRespond(actor Actor, target Addressed) bool {
	return target.AddressedTo() == actor.UserID
}
