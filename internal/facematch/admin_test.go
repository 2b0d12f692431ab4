package facematch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// adminBackend mimics the backend's admin routes over an in-memory store.
func adminBackend(t *testing.T) *httptest.Server {
	t.Helper()
	admins := map[string]map[string]string{
		"head": {"user_id": "head", "full_name": "Head", "email": "h@example.com", "role": "HeadAdmin"},
		"a1":   {"user_id": "a1", "full_name": "First", "email": "a1@example.com", "role": "admin"},
	}
	form := func(r *http.Request) url.Values {
		body, _ := io.ReadAll(r.Body)
		values, err := url.ParseQuery(string(body))
		assert.NoError(t, err)
		return values
	}
	isHead := func(id string) bool { return admins[id]["role"] == "HeadAdmin" }
	reject := func(w http.ResponseWriter, code int, detail string) {
		w.WriteHeader(code)
		_, _ = io.WriteString(w, `{"detail":"`+detail+`"}`)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /check_admin_status/{id}", func(w http.ResponseWriter, r *http.Request) {
		a, ok := admins[r.PathValue("id")]
		if !ok {
			_, _ = io.WriteString(w, `{"is_admin":false}`)
			return
		}
		_, _ = io.WriteString(w, `{"is_admin":true,"role":"`+a["role"]+`","full_name":"`+a["full_name"]+`"}`)
	})
	mux.HandleFunc("GET /list_admins", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := admins[r.URL.Query().Get("creator_id")]; !ok {
			reject(w, http.StatusForbidden, "Only admins can list administrators")
			return
		}
		_, _ = io.WriteString(w, `{"admins":[{"user_id":"head","full_name":"Head","email":"h@example.com","role":"HeadAdmin"}]}`)
	})
	mux.HandleFunc("POST /create_admin", func(w http.ResponseWriter, r *http.Request) {
		v := form(r)
		if !isHead(v.Get("creator_id")) {
			reject(w, http.StatusForbidden, "Only Head Admins can create new admins")
			return
		}
		admins[v.Get("user_id")] = map[string]string{"user_id": v.Get("user_id"), "role": v.Get("role")}
		_, _ = io.WriteString(w, `{"user_id":"`+v.Get("user_id")+`","full_name":"`+v.Get("full_name")+
			`","email":"`+v.Get("email")+`","role":"`+v.Get("role")+`","created_by":"`+v.Get("creator_id")+
			`","created_at":"2026-10-14T10:00:00"}`)
	})
	mux.HandleFunc("POST /update_admin/{id}", func(w http.ResponseWriter, r *http.Request) {
		v := form(r)
		if !isHead(v.Get("creator_id")) {
			reject(w, http.StatusForbidden, "Only Head Admins can update admins")
			return
		}
		if _, ok := admins[r.PathValue("id")]; !ok {
			reject(w, http.StatusNotFound, "Admin not found")
			return
		}
		assert.False(t, v.Has("email"), "unset fields are not sent")
		_, _ = io.WriteString(w, `{"message":"Admin updated successfully","admin":{"user_id":"`+r.PathValue("id")+
			`","full_name":"`+v.Get("full_name")+`","role":"admin","updated_by":"`+v.Get("creator_id")+`"}}`)
	})
	mux.HandleFunc("DELETE /delete_admin/{id}", func(w http.ResponseWriter, r *http.Request) {
		v := form(r)
		id := r.PathValue("id")
		switch {
		case !isHead(v.Get("creator_id")):
			reject(w, http.StatusForbidden, "Only Head Admins can delete admins")
		case isHead(id):
			reject(w, http.StatusForbidden, "Cannot delete a HeadAdmin")
		case admins[id] == nil:
			reject(w, http.StatusNotFound, "Admin not found")
		default:
			delete(admins, id)
			_, _ = io.WriteString(w, `{"message":"Admin deleted successfully"}`)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAdminStatus(t *testing.T) {
	c := NewClient(adminBackend(t).URL, time.Second)
	ctx := context.Background()

	status, err := c.AdminStatus(ctx, "head")
	require.NoError(t, err)
	assert.True(t, status.Head())
	assert.Equal(t, "Head", status.FullName)

	status, err = c.AdminStatus(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, status.IsAdmin)
	assert.False(t, status.Head())

	status, err = c.AdminStatus(ctx, "stranger")
	require.NoError(t, err)
	assert.False(t, status.IsAdmin)

	status, err = c.AdminStatus(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, AdminStatus{}, status)
}

func TestListAdmins(t *testing.T) {
	c := NewClient(adminBackend(t).URL, time.Second)

	admins, err := c.ListAdmins(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, RoleHeadAdmin, admins[0].Role)

	_, err = c.ListAdmins(context.Background(), "stranger")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "Only admins can list administrators", apiErr.Message)
}

func TestCreateAdmin(t *testing.T) {
	c := NewClient(adminBackend(t).URL, time.Second)
	ctx := context.Background()

	created, err := c.CreateAdmin(ctx, "head", Admin{UserID: "a2", FullName: "Second", Email: "a2@example.com"})
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, created.Role, "a blank role defaults to admin")
	assert.Equal(t, "head", created.CreatedBy)
	assert.NotEmpty(t, created.CreatedAt)

	_, err = c.CreateAdmin(ctx, "a1", Admin{UserID: "a3", FullName: "Third", Email: "a3@example.com"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	_, err = c.CreateAdmin(ctx, "head", Admin{UserID: "a4"})
	require.ErrorIs(t, err, ErrInvalidSubmission)
	assert.ErrorContains(t, err, "full_name, email")

	_, err = c.CreateAdmin(ctx, "head", Admin{UserID: "a5", FullName: "F", Email: "e", Role: "root"})
	assert.ErrorIs(t, err, ErrInvalidSubmission)
}

func TestUpdateAdmin(t *testing.T) {
	c := NewClient(adminBackend(t).URL, time.Second)
	ctx := context.Background()
	name := "Renamed"

	updated, err := c.UpdateAdmin(ctx, "head", "a1", AdminUpdate{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.FullName)
	assert.Equal(t, "head", updated.UpdatedBy)

	_, err = c.UpdateAdmin(ctx, "head", "ghost", AdminUpdate{FullName: &name})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	bad := Role("owner")
	_, err = c.UpdateAdmin(ctx, "head", "a1", AdminUpdate{Role: &bad})
	assert.ErrorIs(t, err, ErrInvalidSubmission)
}

func TestDeleteAdmin(t *testing.T) {
	c := NewClient(adminBackend(t).URL, time.Second)
	ctx := context.Background()

	var apiErr *APIError
	err := c.DeleteAdmin(ctx, "head", "head")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Cannot delete a HeadAdmin", apiErr.Message)

	require.NoError(t, c.DeleteAdmin(ctx, "head", "a1"))

	err = c.DeleteAdmin(ctx, "head", "a1")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	assert.ErrorIs(t, c.DeleteAdmin(ctx, "head", ""), ErrInvalidSubmission)
}
