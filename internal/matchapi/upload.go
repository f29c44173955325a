package matchapi

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spigell/radar-pilot/internal/match"
)

// JDMeta is the form metadata sent with a JD upload.
type JDMeta struct {
	JobTitle    string
	UploadedBy  string
	ProjectCode string
}

func (c *Client) UploadJD(ctx context.Context, path string, meta JDMeta) (*match.JobDescriptor, error) {
	if meta.JobTitle == "" {
		meta.JobTitle = titleFromPath(path)
	}

	var resp struct {
		JDID     any    `json:"jd_id"`
		JobTitle string `json:"job_title"`
	}

	fields := map[string]string{
		"job_title":    meta.JobTitle,
		"uploaded_by":  meta.UploadedBy,
		"project_code": meta.ProjectCode,
	}
	if err := c.postMultipart(ctx, c.endpoint("upload-jd"), fields, "file", path, &resp); err != nil {
		return nil, fmt.Errorf("uploading jd %q: %w", path, err)
	}

	id := match.IDString(resp.JDID)
	if id == "" {
		return nil, fmt.Errorf("uploading jd %q: response has no jd_id", path)
	}

	jd := &match.JobDescriptor{
		ID:          id,
		Title:       meta.JobTitle,
		UploadedBy:  meta.UploadedBy,
		ProjectCode: meta.ProjectCode,
	}
	if resp.JobTitle != "" {
		jd.Title = resp.JobTitle
	}

	return jd, nil
}

// UploadResume returns the id the service assigned to the resume.
func (c *Client) UploadResume(ctx context.Context, path, name string) (string, error) {
	if name == "" {
		name = titleFromPath(path)
	}

	var resp struct {
		ResumeID any `json:"resume_id"`
	}
	if err := c.postMultipart(ctx, c.endpoint("upload-resume"), map[string]string{"name": name}, "file", path, &resp); err != nil {
		return "", fmt.Errorf("uploading resume %q: %w", path, err)
	}

	id := match.IDString(resp.ResumeID)
	if id == "" {
		return "", fmt.Errorf("uploading resume %q: response has no resume_id", path)
	}

	return id, nil
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	return strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(base))
}
