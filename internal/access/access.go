// Package access resolves a branch to its project and checks the actor's
// project role before any branch-scoped operation runs.
package access

import (
	"context"
	"errors"
	"fmt"

	"localeforge/api/internal/rbac"
)

var ErrForbidden = errors.New("forbidden")

type ProjectInfo struct {
	ProjectID       string   `json:"projectId"`
	SpaceID         string   `json:"spaceId"`
	DefaultLanguage string   `json:"defaultLanguage"`
	Languages       []string `json:"languages"`
}

type Repository interface {
	// GetBranchProject returns a not-found failure when the branch does not exist.
	GetBranchProject(ctx context.Context, branchID string) (ProjectInfo, error)
	GetProjectRole(ctx context.Context, projectID, userID string) (role string, ok bool, err error)
}

type Verifier struct {
	repo Repository
}

func NewVerifier(repo Repository) *Verifier {
	return &Verifier{repo: repo}
}

func (v *Verifier) VerifyBranchAccess(ctx context.Context, actorID, branchID string, action rbac.Action) (ProjectInfo, error) {
	if actorID == "" {
		return ProjectInfo{}, fmt.Errorf("%w: anonymous actor", ErrForbidden)
	}
	project, err := v.repo.GetBranchProject(ctx, branchID)
	if err != nil {
		return ProjectInfo{}, err
	}
	if err := v.checkRole(ctx, project.ProjectID, actorID, action); err != nil {
		return ProjectInfo{}, err
	}
	return project, nil
}

// VerifyProjectAccess checks the actor's role on a project without a branch.
func (v *Verifier) VerifyProjectAccess(ctx context.Context, actorID, projectID string, action rbac.Action) error {
	if actorID == "" {
		return fmt.Errorf("%w: anonymous actor", ErrForbidden)
	}
	return v.checkRole(ctx, projectID, actorID, action)
}

func (v *Verifier) checkRole(ctx context.Context, projectID, actorID string, action rbac.Action) error {
	role, ok, err := v.repo.GetProjectRole(ctx, projectID, actorID)
	if err != nil {
		return fmt.Errorf("lookup project role: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: not a member of project %s", ErrForbidden, projectID)
	}
	if !rbac.Can(rbac.Normalize(role), action) {
		return fmt.Errorf("%w: role %s cannot %s", ErrForbidden, role, action)
	}
	return nil
}
