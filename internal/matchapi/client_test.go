package matchapi

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/radar-pilot/internal/match"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(zap.NewNop(), "secret-token")
	c.APIURL = srv.URL

	return c
}

func TestRequestMatchJDToResumes(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/match/jd-to-resumes", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(42), body["jd_id"], "numeric ids go out as numbers")

		_, _ = io.WriteString(w, `{"top_matches":[{"profile_id":1,"score":0.9}]}`)
	})

	payload, err := c.RequestMatch(context.Background(), match.KindJDToResumes, match.Subject{JDID: "42"})
	require.NoError(t, err)
	assert.Len(t, payload["top_matches"], 1)
}

func TestRequestMatchBodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    match.Kind
		subject match.Subject
		path    string
		want    map[string]any
	}{
		{
			name:    "resume by id",
			kind:    match.KindResumeToJDs,
			subject: match.Subject{ResumeID: "7"},
			path:    "/match/resume-to-jds",
			want:    map[string]any{"resume_id": float64(7)},
		},
		{
			name:    "stored profile",
			kind:    match.KindResumeToJDs,
			subject: match.Subject{ProfileID: "emp-9"},
			path:    "/match/resume-to-jds",
			want:    map[string]any{"profile_id": "emp-9"},
		},
		{
			name:    "pair",
			kind:    match.KindOneToOne,
			subject: match.Subject{JDID: "1", ResumeID: "2"},
			path:    "/match/one-to-one",
			want:    map[string]any{"jd_id": float64(1), "resume_id": float64(2)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.path, r.URL.Path)

				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, tt.want, body)

				_, _ = io.WriteString(w, `{"top_matches":[]}`)
			})

			_, err := c.RequestMatch(context.Background(), tt.kind, tt.subject)
			require.NoError(t, err)
		})
	}
}

func TestRequestMatchRejectsInvalidSubject(t *testing.T) {
	t.Parallel()

	c := New(nil, "")
	_, err := c.RequestMatch(context.Background(), match.KindOneToOne, match.Subject{JDID: "1"})
	require.Error(t, err)
}

func TestErrorBodyIsSurfaced(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"JD not found"}`)
	})

	_, err := c.ExistingMatches(context.Background(), "99")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, "JD not found", statusErr.Message)
}

func TestGzipResponse(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status/5", r.URL.Path)
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = io.WriteString(gz, `{"compared":true,"ranked":true,"recommended":false,"emailed":false}`)
		_ = gz.Close()
	})

	st, err := c.QueryStatus(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, Status{Compared: true, Ranked: true}, *st)
}

func TestQueryEmailSent(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/email/sent/5", r.URL.Path)
		_, _ = io.WriteString(w, `{"emailed":true}`)
	})

	sent, err := c.QueryEmailSent(context.Background(), "5")
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestSendEmail(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send-email/matches-final", r.URL.Path)

		var req EmailRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "5", req.JDID)
		assert.Equal(t, "hr@example.com", req.To)
		assert.Equal(t, []string{"resumes/a.pdf"}, req.Attachments)

		_, _ = io.WriteString(w, `{"message":"Email sent"}`)
	})

	msg, err := c.SendEmail(context.Background(), EmailMatchesFinal, &EmailRequest{
		JDID:        "5",
		To:          "hr@example.com",
		Attachments: []string{"resumes/a.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Email sent", msg)

	_, err = c.SendEmail(context.Background(), EmailKind("bulk"), &EmailRequest{To: "hr@example.com"})
	require.Error(t, err)

	_, err = c.SendEmail(context.Background(), EmailManual, &EmailRequest{})
	require.Error(t, err)
}

func TestEmailRequestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		kind EmailKind
		req  *EmailRequest
		ok   bool
	}{
		{"manual with jd", EmailManual, &EmailRequest{JDID: "5", To: "hr@example.com"}, true},
		{"manual without jd", EmailManual, &EmailRequest{ResumeID: "7", To: "hr@example.com"}, false},
		{"matches final without jd", EmailMatchesFinal, &EmailRequest{To: "hr@example.com"}, false},
		{"recommended profile for a resume", EmailRecommendedProfile, &EmailRequest{ResumeID: "7", To: "hr@example.com"}, true},
		{"recommended profile without recipient", EmailRecommendedProfile, &EmailRequest{ResumeID: "7"}, false},
		{"unknown kind", EmailKind("bulk"), &EmailRequest{JDID: "5", To: "hr@example.com"}, false},
		{"nil request", EmailManual, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.req.Validate(tt.kind)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidEmail)
		})
	}
}

func TestSendEmailRejectsMissingJDWithoutCalling(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := c.SendEmail(context.Background(), EmailManual, &EmailRequest{ResumeID: "7", To: "hr@example.com"})
	assert.ErrorIs(t, err, ErrInvalidEmail)
	assert.Zero(t, calls.Load())
}

func TestGetConfig(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"list":   `[{"key":"match_threshold","value":0.65},{"key":"smtp_host","value":"mail"}]`,
		"object": `{"match_threshold":"0.65","smtp_host":"mail"}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/admin/config", r.URL.Path)
				_, _ = io.WriteString(w, body)
			})

			values, err := c.GetConfig(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "0.65", values["match_threshold"])
			assert.Equal(t, "mail", values["smtp_host"])
		})
	}
}

func TestUploadJD(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "senior_go-engineer.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload-jd", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "senior go engineer", r.FormValue("job_title"))
		assert.Equal(t, "recruiter", r.FormValue("uploaded_by"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "senior_go-engineer.pdf", header.Filename)

		_, _ = io.WriteString(w, `{"jd_id":12,"job_title":"Senior Go Engineer"}`)
	})

	jd, err := c.UploadJD(context.Background(), path, JDMeta{UploadedBy: "recruiter"})
	require.NoError(t, err)
	assert.Equal(t, "12", jd.ID)
	assert.Equal(t, "Senior Go Engineer", jd.Title)
	assert.Equal(t, "recruiter", jd.UploadedBy)
}

func TestUploadResume(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ana.docx")
	require.NoError(t, os.WriteFile(path, []byte("resume"), 0o600))

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "ana", r.FormValue("name"))
		_, _ = io.WriteString(w, `{"resume_id":"r-3"}`)
	})

	id, err := c.UploadResume(context.Background(), path, "")
	require.NoError(t, err)
	assert.Equal(t, "r-3", id)

	_, err = c.UploadResume(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), "")
	require.Error(t, err)
}

func TestRateLimiterThrottles(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, `{"emailed":false}`)
	})
	c.WithRateLimit(20, 1)

	start := time.Now()
	for range 3 {
		_, err := c.QueryEmailSent(context.Background(), "1")
		require.NoError(t, err)
	}

	assert.Equal(t, int32(3), hits.Load())
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.QueryEmailSent(ctx, "1")
	require.Error(t, err)

	assert.Nil(t, c.WithRateLimit(0, 0).Limiter)
}
