// Package facematch talks to the external face-recognition backend and
// normalizes its answers.
package facematch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const DefaultTimeout = 60 * time.Second

// ErrInvalidSubmission is returned before any request is made when the
// submission is incomplete.
var ErrInvalidSubmission = errors.New("invalid submission")

// Endpoint is an upload endpoint of the backend together with the form fields
// it requires besides the photo.
type Endpoint struct {
	Path   string
	Fields []string
}

var (
	LostEndpoint = Endpoint{
		Path: "/upload_lost",
		Fields: []string{"name", "gender", "age", "where_lost", "your_name",
			"relation_with_lost", "user_id", "mobile_no", "email_id"},
	}
	FoundEndpoint = Endpoint{
		Path: "/upload_found",
		Fields: []string{"name", "gender", "age", "where_found", "your_name",
			"organization", "designation", "user_id", "mobile_no", "email_id"},
	}
	LiveFeedEndpoint = Endpoint{
		Path: "/upload_live_feed",
		Fields: []string{"camera_id", "where_found", "location", "your_name",
			"organization", "designation", "user_id", "mobile_no", "email_id"},
	}
)

// Missing returns the required fields that are absent or blank in fields.
func (e Endpoint) Missing(fields map[string]string) []string {
	var missing []string
	for _, name := range e.Fields {
		if strings.TrimSpace(fields[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Photo is the image attached as the "file" field of an upload.
type Photo struct {
	Name string
	Data []byte
}

// APIError is returned for non-2xx answers.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("face-recognition backend returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	BaseURL string
	Timeout time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Timeout: timeout,
	}
}

// Upload posts a multipart submission to e and normalizes the answer.
func (c *Client) Upload(ctx context.Context, e Endpoint, fields map[string]string, photo Photo) (Response, error) {
	if missing := e.Missing(fields); len(missing) > 0 {
		return Response{}, fmt.Errorf("%w: missing fields for %s: %s", ErrInvalidSubmission, e.Path, strings.Join(missing, ", "))
	}
	if len(photo.Data) == 0 {
		return Response{}, fmt.Errorf("%w: missing photo for %s", ErrInvalidSubmission, e.Path)
	}
	if age, ok := fields["age"]; ok {
		if _, err := strconv.Atoi(strings.TrimSpace(age)); err != nil {
			return Response{}, fmt.Errorf("%w: age must be a whole number, got %q", ErrInvalidSubmission, age)
		}
	}
	timeout, err := c.timeout(ctx)
	if err != nil {
		return Response{}, err
	}

	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	for _, name := range e.Fields {
		args.Set(name, strings.TrimSpace(fields[name]))
	}

	agent := fiber.Post(c.BaseURL + e.Path).
		Timeout(timeout).
		FileData(&fiber.FormFile{
			Fieldname: "file",
			Name:      photo.Name,
			Content:   photo.Data,
		}).
		MultipartForm(args)

	log.Ctx(ctx).Debug().
		Str("endpoint", e.Path).
		Int("photo_bytes", len(photo.Data)).
		Msg("submitting to face-recognition backend")

	return c.do(ctx, e.Path, agent)
}

func (c *Client) UploadLost(ctx context.Context, fields map[string]string, photo Photo) (Response, error) {
	return c.Upload(ctx, LostEndpoint, fields, photo)
}

func (c *Client) UploadFound(ctx context.Context, fields map[string]string, photo Photo) (Response, error) {
	return c.Upload(ctx, FoundEndpoint, fields, photo)
}

func (c *Client) UploadLiveFeed(ctx context.Context, fields map[string]string, photo Photo) (Response, error) {
	if photo.Name == "" {
		photo.Name = "frame.jpg"
	}
	return c.Upload(ctx, LiveFeedEndpoint, fields, photo)
}

// SearchFace looks up a stored face by id.
func (c *Client) SearchFace(ctx context.Context, faceID string) (Response, error) {
	if faceID == "" {
		return Response{}, fmt.Errorf("%w: face id is required", ErrInvalidSubmission)
	}
	return c.get(ctx, "/search_face/"+url.PathEscape(faceID))
}

// RecordsByUser lists every record a user submitted. An empty id yields an
// empty list without contacting the backend.
func (c *Client) RecordsByUser(ctx context.Context, userID string) (Response, error) {
	if userID == "" {
		return Response{Kind: KindRecordList, Message: "No user ID provided", Records: []Record{}}, nil
	}
	return c.get(ctx, "/get_records_by_user/"+url.PathEscape(userID))
}

func (c *Client) get(ctx context.Context, path string) (Response, error) {
	timeout, err := c.timeout(ctx)
	if err != nil {
		return Response{}, err
	}
	return c.do(ctx, path, fiber.Get(c.BaseURL+path).Timeout(timeout))
}

func (c *Client) do(ctx context.Context, path string, agent *fiber.Agent) (Response, error) {
	body, err := c.fetch(ctx, path, agent)
	if err != nil {
		return Response{}, err
	}
	res, err := Normalize(body)
	if err != nil {
		return Response{}, fmt.Errorf("%s: %w", path, err)
	}
	log.Ctx(ctx).Debug().
		Str("path", path).
		Stringer("kind", res.Kind).
		Int("records", len(res.Records)).
		Msg("backend answered")
	return res, nil
}

// fetch sends the request and returns the body of a 2xx answer. Any other
// status becomes an *APIError carrying the backend's message.
func (c *Client) fetch(ctx context.Context, path string, agent *fiber.Agent) ([]byte, error) {
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("request to %s failed: %w", path, errs[0])
	}
	if code < http.StatusOK || code >= http.StatusMultipleChoices {
		msg := http.StatusText(code)
		if res, err := Normalize(body); err == nil && res.Error != "" {
			msg = res.Error
		}
		log.Ctx(ctx).Warn().Str("path", path).Int("status", code).Str("error", msg).Msg("backend rejected request")
		return nil, &APIError{StatusCode: code, Message: msg}
	}
	return body, nil
}

// timeout is the client timeout, shortened to the context deadline.
func (c *Client) timeout(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	timeout := c.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	return timeout, nil
}
