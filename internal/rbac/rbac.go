package rbac

type Role string
type Action string

const (
	RoleViewer     Role = "viewer"
	RoleTranslator Role = "translator"
	RoleReviewer   Role = "reviewer"
	RoleAdmin      Role = "admin"
)

const (
	ActionRead      Action = "read"
	ActionTranslate Action = "translate"
	ActionEvaluate  Action = "evaluate"
	ActionMerge     Action = "merge"
	ActionAdmin     Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleReviewer:
		return action == ActionRead || action == ActionTranslate || action == ActionEvaluate || action == ActionMerge
	case RoleTranslator:
		return action == ActionRead || action == ActionTranslate || action == ActionEvaluate
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleTranslator, RoleReviewer, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
