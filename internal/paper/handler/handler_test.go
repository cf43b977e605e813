package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/paperdesk/paperdesk/internal/paper/repository"
	"github.com/paperdesk/paperdesk/internal/paper/service"
	"github.com/paperdesk/paperdesk/internal/reviews"
	"github.com/paperdesk/paperdesk/internal/users"
	"github.com/paperdesk/paperdesk/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type claimsToken map[string]interface{}

func (t claimsToken) Claims(v interface{}) error {
	mm, ok := v.(*map[string]interface{})
	if !ok {
		return fmt.Errorf("unsupported claims type %T", v)
	}
	*mm = t
	return nil
}

// roleVerifier accepts tokens of the form "<role>:<username>".
type roleVerifier struct{}

func (roleVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	role, name, ok := strings.Cut(raw, ":")
	if !ok {
		return nil, fmt.Errorf("bad token")
	}
	return claimsToken{"sub": name, "role": role}, nil
}

type fixture struct {
	g     *gin.Engine
	users *users.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := users.NewService(users.NewMemoryUserRepository())
	svc := service.New(repository.NewMemoryRepo(), dir, reviews.NewMemoryRepository(), service.Options{})
	g := gin.New()
	api := g.Group("/", middleware.AuthMiddleware(roleVerifier{}, nil))
	RegisterPaperRoutes(api, svc, 1<<20)
	return &fixture{g: g, users: dir}
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.g.ServeHTTP(w, req)
	return w
}

func (f *fixture) upload(t *testing.T, path, token, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	f.g.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

const alice = "faculty:alice"

func TestPaperRoutes_RequireAuth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/papers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPaperRoutes_CreateEditHistory(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/papers", alice, gin.H{"sections": gin.H{"title": "Graphs"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created paperView
	decode(t, w, &created)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "alice", created.Owner)
	assert.Equal(t, "Draft", string(created.Status))
	assert.Equal(t, "Graphs", created.Sections["title"])
	assert.Equal(t, "", created.Sections["abstract"])

	w = f.do(t, http.MethodPatch, "/api/papers/1/sections", alice, gin.H{"sections": gin.H{"abstract": "We study graphs."}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var edited struct {
		Paper   paperView `json:"paper"`
		Changes []struct {
			Section string `json:"section"`
		} `json:"changes"`
	}
	decode(t, w, &edited)
	require.Len(t, edited.Changes, 1)
	assert.Equal(t, "abstract", edited.Changes[0].Section)
	assert.Equal(t, "Graphs", edited.Paper.Sections["title"])

	w = f.do(t, http.MethodPatch, "/api/papers/1/sections", alice, gin.H{"sections": gin.H{"appendix": "x"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/papers/1/history", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist []map[string]interface{}
	decode(t, w, &hist)
	require.Len(t, hist, 2)
	assert.Equal(t, "title", hist[0]["section"])
	assert.Equal(t, "abstract", hist[1]["section"])
	assert.Equal(t, "Manual edit", hist[1]["source"])
	assert.Equal(t, "alice", hist[1]["actor"])
}

func TestPaperRoutes_AccessErrors(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/papers", alice, nil).Code)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/papers/1", "faculty:bob", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/papers/1", "admin:root", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/papers/9", alice, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/papers/abc", alice, nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/papers", "reviewer:rita", nil).Code)

	var list []paperView
	w := f.do(t, http.MethodGet, "/api/papers", "faculty:bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	assert.Empty(t, list)
}

func TestPaperRoutes_Upload(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/papers", alice, nil).Code)

	doc := "A Study of Graphs\nAbstract\nWe study graphs.\n2. Conclusion\nIt works.\n"
	w := f.upload(t, "/api/papers/1/upload", alice, "paper.txt", []byte(doc))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Paper  paperView              `json:"paper"`
		Result service.UploadResult `json:"result"`
	}
	decode(t, w, &out)
	assert.Equal(t, "A Study of Graphs\n", out.Paper.Sections["title"])
	assert.Equal(t, "We study graphs.\n", out.Paper.Sections["abstract"])
	assert.Equal(t, "It works.\n", out.Paper.Sections["conclusion"])
	assert.Len(t, out.Result.Changes, 3)

	w = f.do(t, http.MethodGet, "/api/papers/1/history", alice, nil)
	var hist []map[string]interface{}
	decode(t, w, &hist)
	require.Len(t, hist, 3)
	assert.Equal(t, "Document upload", hist[0]["source"])

	assert.Equal(t, http.StatusUnsupportedMediaType, f.upload(t, "/api/papers/1/upload", alice, "paper.exe", []byte("MZ")).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, f.upload(t, "/api/papers/1/upload", alice, "paper.docx", []byte("not a zip")).Code)
	assert.Equal(t, http.StatusForbidden, f.upload(t, "/api/papers/1/upload", "faculty:bob", "paper.txt", []byte(doc)).Code)

	// failed uploads leave the paper untouched
	w = f.do(t, http.MethodGet, "/api/papers/1/history", alice, nil)
	decode(t, w, &hist)
	assert.Len(t, hist, 3)
}

func TestPaperRoutes_UploadMissingFile(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/papers", alice, nil).Code)
	w := f.do(t, http.MethodPost, "/api/papers/1/upload", alice, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaperRoutes_OversizedBodies(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/papers", alice, gin.H{"sections": gin.H{"title": "Kept"}}).Code)

	big := bytes.Repeat([]byte("x"), 2<<20)
	w := f.upload(t, "/api/papers/1/upload", alice, "paper.txt", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	w = f.upload(t, "/api/papers/1/images", alice, "fig.png", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/papers/1", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got paperView
	decode(t, w, &got)
	assert.Equal(t, "Kept", got.Sections["title"])
	assert.Equal(t, 0, got.Images)
}

func TestPaperRoutes_Status(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/papers", alice, nil).Code)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/papers/1/status", alice, gin.H{"status": "Published"}).Code)
	w := f.do(t, http.MethodPut, "/api/papers/1/status", alice, gin.H{"status": "Submitted"})
	require.Equal(t, http.StatusOK, w.Code)
	var p paperView
	decode(t, w, &p)
	assert.Equal(t, "Submitted", string(p.Status))

	w = f.do(t, http.MethodGet, "/api/papers/statuses", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Under Review")
}

func TestPaperRoutes_ImagesTablesRender(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/papers", alice, nil).Code)

	img := pngBytes(t)
	w := f.upload(t, "/api/papers/1/images", alice, "fig.png", img)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var added struct {
		Index       int    `json:"index"`
		Placeholder string `json:"placeholder"`
	}
	decode(t, w, &added)
	assert.Equal(t, 1, added.Index)
	assert.Equal(t, "{image1}", added.Placeholder)

	w = f.do(t, http.MethodGet, "/api/papers/1/images/1", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, img, w.Body.Bytes())
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/papers/1/images/2", alice, nil).Code)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/papers/1/tables", alice, gin.H{"rows": 0, "cols": 2}).Code)
	w = f.do(t, http.MethodPost, "/api/papers/1/tables", alice, gin.H{"rows": 1, "cols": 2})
	require.Equal(t, http.StatusCreated, w.Code)
	decode(t, w, &added)
	assert.Equal(t, "{table1}", added.Placeholder)

	body := gin.H{"sections": gin.H{"results and discussion": "See {image1} and {table1} and {image7}."}}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, "/api/papers/1/sections", alice, body).Code)

	w = f.do(t, http.MethodGet, "/api/papers/1/render", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rendered struct {
		Order    []string          `json:"order"`
		Sections map[string]string `json:"sections"`
	}
	decode(t, w, &rendered)
	assert.Equal(t, "title", rendered.Order[0])
	got := rendered.Sections["results and discussion"]
	assert.Contains(t, got, `<img src="data:image/png;base64,`)
	assert.Contains(t, got, "<table><tr><td></td><td></td></tr></table>")
	assert.Contains(t, got, "{image7}")
}

func TestPaperRoutes_ReviewsAndDelete(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/papers", alice, nil).Code)
	_, err := f.users.AddReviewer(context.Background(), "rita", "Rita", "secret", 1)
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/api/papers", "reviewer:rita", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []paperView
	decode(t, w, &list)
	require.Len(t, list, 1)

	review := gin.H{"suggestions": "Add baselines.", "overallComment": "Promising."}
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/papers/1/reviews", alice, review).Code)
	w = f.do(t, http.MethodPost, "/api/papers/1/reviews", "reviewer:rita", review)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/papers/1/reviews", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var revs []reviews.Review
	decode(t, w, &revs)
	require.Len(t, revs, 1)
	assert.Equal(t, "rita", revs[0].Reviewer)
	assert.Equal(t, "Add baselines.", revs[0].Suggestions)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, "/api/papers/1", "reviewer:rita", nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/papers/1", alice, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/papers/1", alice, nil).Code)
}
