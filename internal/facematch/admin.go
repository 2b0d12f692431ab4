package facematch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Role of an administrator. Only head admins manage other admins.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleHeadAdmin Role = "HeadAdmin"
)

func (r Role) valid() bool {
	return r == RoleAdmin || r == RoleHeadAdmin
}

type Admin struct {
	UserID    string `json:"user_id"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	CreatedBy string `json:"created_by,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedBy string `json:"updated_by,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// AdminStatus tells whether a user is an administrator and with which role.
type AdminStatus struct {
	IsAdmin  bool   `json:"is_admin"`
	Role     Role   `json:"role,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
}

func (s AdminStatus) Head() bool {
	return s.IsAdmin && s.Role == RoleHeadAdmin
}

// AdminUpdate changes the fields that are non-nil.
type AdminUpdate struct {
	FullName *string `json:"full_name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Role     *Role   `json:"role,omitempty"`
}

// AdminStatus looks up userID. An empty id is never an admin.
func (c *Client) AdminStatus(ctx context.Context, userID string) (AdminStatus, error) {
	if userID == "" {
		return AdminStatus{}, nil
	}
	path := "/check_admin_status/" + url.PathEscape(userID)
	var out struct {
		AdminStatus
		Error string `json:"error"`
	}
	if err := c.admin(ctx, path, fiber.Get, nil, &out); err != nil {
		return AdminStatus{}, err
	}
	if out.Error != "" {
		// the backend answers 200 with is_admin false when its store fails
		log.Ctx(ctx).Warn().Str("user_id", userID).Str("error", out.Error).Msg("admin status unavailable")
	}
	return out.AdminStatus, nil
}

// ListAdmins returns the admins visible to requesterID. Head admins see
// everyone, other admins see the head admins and themselves.
func (c *Client) ListAdmins(ctx context.Context, requesterID string) ([]Admin, error) {
	path := "/list_admins?creator_id=" + url.QueryEscape(requesterID)
	var out struct {
		Admins []Admin `json:"admins"`
	}
	if err := c.admin(ctx, path, fiber.Get, nil, &out); err != nil {
		return nil, err
	}
	if out.Admins == nil {
		out.Admins = []Admin{}
	}
	return out.Admins, nil
}

// CreateAdmin registers a as an admin on behalf of creatorID. A blank role
// means RoleAdmin.
func (c *Client) CreateAdmin(ctx context.Context, creatorID string, a Admin) (Admin, error) {
	if a.Role == "" {
		a.Role = RoleAdmin
	}
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"user_id", a.UserID},
		{"full_name", a.FullName},
		{"email", a.Email},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return Admin{}, fmt.Errorf("%w: missing admin fields: %s", ErrInvalidSubmission, strings.Join(missing, ", "))
	}
	if !a.Role.valid() {
		return Admin{}, fmt.Errorf("%w: unknown role %q", ErrInvalidSubmission, a.Role)
	}

	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	args.Set("user_id", strings.TrimSpace(a.UserID))
	args.Set("full_name", strings.TrimSpace(a.FullName))
	args.Set("email", strings.TrimSpace(a.Email))
	args.Set("role", string(a.Role))
	args.Set("creator_id", creatorID)

	var out Admin
	if err := c.admin(ctx, "/create_admin", fiber.Post, args, &out); err != nil {
		return Admin{}, err
	}
	return out, nil
}

func (c *Client) UpdateAdmin(ctx context.Context, creatorID, adminID string, u AdminUpdate) (Admin, error) {
	if adminID == "" {
		return Admin{}, fmt.Errorf("%w: admin id is required", ErrInvalidSubmission)
	}
	if u.Role != nil && !u.Role.valid() {
		return Admin{}, fmt.Errorf("%w: unknown role %q", ErrInvalidSubmission, *u.Role)
	}

	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	args.Set("creator_id", creatorID)
	if u.FullName != nil {
		args.Set("full_name", *u.FullName)
	}
	if u.Email != nil {
		args.Set("email", *u.Email)
	}
	if u.Role != nil {
		args.Set("role", string(*u.Role))
	}

	var out struct {
		Admin Admin `json:"admin"`
	}
	if err := c.admin(ctx, "/update_admin/"+url.PathEscape(adminID), fiber.Post, args, &out); err != nil {
		return Admin{}, err
	}
	return out.Admin, nil
}

// DeleteAdmin removes adminID. The backend refuses to delete head admins.
func (c *Client) DeleteAdmin(ctx context.Context, creatorID, adminID string) error {
	if adminID == "" {
		return fmt.Errorf("%w: admin id is required", ErrInvalidSubmission)
	}
	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	args.Set("creator_id", creatorID)
	return c.admin(ctx, "/delete_admin/"+url.PathEscape(adminID), fiber.Delete, args, nil)
}

// admin sends a form encoded request when form is set and decodes the JSON
// answer into out, if any.
func (c *Client) admin(ctx context.Context, path string, newAgent func(string) *fiber.Agent, form *fiber.Args, out any) error {
	timeout, err := c.timeout(ctx)
	if err != nil {
		return err
	}
	agent := newAgent(c.BaseURL + path).Timeout(timeout)
	if form != nil {
		agent.Form(form)
	}

	body, err := c.fetch(ctx, path, agent)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", path, err)
	}
	return nil
}
