package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mautops/results-gin/internal/apperr"
)

// HTTPDirectory 通过 HTTP 访问机构目录服务
//
//	GET {base}/students/{id}
//	GET {base}/students?q={query}
//	GET {base}/lecturers/{id}
//	GET {base}/units/{code}
type HTTPDirectory struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPDirectory 创建 HTTP 目录客户端
func NewHTTPDirectory(baseURL string, timeout time.Duration) *HTTPDirectory {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPDirectory{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDirectory) GetStudent(ctx context.Context, id string) (*Student, error) {
	var s Student
	if err := d.get(ctx, "/students/"+url.PathEscape(id), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *HTTPDirectory) GetLecturer(ctx context.Context, id string) (*Lecturer, error) {
	var l Lecturer
	if err := d.get(ctx, "/lecturers/"+url.PathEscape(id), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (d *HTTPDirectory) GetUnit(ctx context.Context, code string) (*Unit, error) {
	var u Unit
	if err := d.get(ctx, "/units/"+url.PathEscape(code), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *HTTPDirectory) SearchStudents(ctx context.Context, query string) ([]*Student, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("search query is required")
	}
	var out []*Student
	if err := d.get(ctx, "/students?q="+url.QueryEscape(query), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *HTTPDirectory) get(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call directory: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperr.NotFound("directory entry %s not found", path)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("directory returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode directory response: %w", err)
	}
	return nil
}
