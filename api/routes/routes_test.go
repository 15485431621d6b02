package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-converter/api/handlers"
	processor "github.com/feichai0017/document-converter/internal/agent/document"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/internal/service/document"
	"github.com/feichai0017/document-converter/pkg/logger"
)

const testMaxUpload = 1024

func init() {
	gin.SetMode(gin.TestMode)
}

type echoProcessor struct{}

func (echoProcessor) CanProcess(models.Format) bool { return true }

func (echoProcessor) Process(_ context.Context, r io.Reader) ([]models.DocumentChunk, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return []models.DocumentChunk{{Content: string(data)}}, nil
}

func (echoProcessor) Close() error { return nil }

type failingProcessor struct{ echoProcessor }

func (failingProcessor) Process(context.Context, io.Reader) ([]models.DocumentChunk, error) {
	return nil, errors.New("render failed")
}

type stubProvider struct{}

func (stubProvider) GetProcessor(f models.Format) (processor.Processor, error) {
	if f == models.FormatASCIIDoc {
		return failingProcessor{}, nil
	}
	return echoProcessor{}, nil
}

func newRouter(t *testing.T, apiKey string) *gin.Engine {
	t.Helper()
	log := logger.NewTestLogger()
	cfg := document.DefaultServiceConfig()
	cfg.MaxFileSize = testMaxUpload
	svc := document.NewService(stubProvider{}, log, cfg)

	r := gin.New()
	SetupRoutes(r, handlers.NewHandlers(svc, log, testMaxUpload), apiKey, log)
	return r
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handlers.ErrorResponse {
	t.Helper()
	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	r := newRouter(t, "secret")

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"document-converter"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestConvertMultipart(t *testing.T) {
	r := newRouter(t, "")

	body, contentType := multipartBody(t, "file", "notes.md", "# Title\n\nBody")
	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	req.Header.Set("Content-Type", contentType)

	rec := serve(r, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "# Title\n\nBody\n", rec.Body.String())
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "md", rec.Header().Get(handlers.HeaderFormat))
}

func TestConvertErrors(t *testing.T) {
	r := newRouter(t, "")

	tests := []struct {
		name     string
		filename string
		content  string
		status   int
	}{
		{"unsupported", "notes.txt", "plain words", http.StatusBadRequest},
		{"too large", "big.md", strings.Repeat("x", testMaxUpload+1), http.StatusRequestEntityTooLarge},
		{"processor failure", "guide.adoc", "= Guide", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, "file", tt.filename, tt.content)
			req := httptest.NewRequest(http.MethodPost, "/convert", body)
			req.Header.Set("Content-Type", contentType)

			rec := serve(r, req)
			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, http.StatusText(tt.status), resp.Error)
			assert.Contains(t, resp.Message, "Conversion failed")
		})
	}
}

func TestConvertMissingFile(t *testing.T) {
	r := newRouter(t, "")

	body, contentType := multipartBody(t, "other", "notes.md", "# hi")
	req := httptest.NewRequest(http.MethodPost, "/convert", body)
	req.Header.Set("Content-Type", contentType)

	rec := serve(r, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConvertRaw(t *testing.T) {
	r := newRouter(t, "")

	tests := []struct {
		name        string
		contentType string
		filename    string
		body        string
		format      string
	}{
		{"filename from content type", "text/html; charset=utf-8", "", "<html><body><h1>Hi</h1></body></html>", "html"},
		{"filename header", "application/octet-stream", "data.csv", "a,b\n1,2", "csv"},
		{"header wins over content type", "text/html", "notes.md", "# hi", "md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/convert/raw", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			if tt.filename != "" {
				req.Header.Set(handlers.HeaderFilename, tt.filename)
			}

			rec := serve(r, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.format, rec.Header().Get(handlers.HeaderFormat))
			assert.Equal(t, tt.body+"\n", rec.Body.String())
		})
	}
}

func TestConvertRawUnknownContentType(t *testing.T) {
	r := newRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/convert/raw", strings.NewReader("plain words"))
	req.Header.Set("Content-Type", "application/x-unknown")

	rec := serve(r, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "document")
}

func TestDetect(t *testing.T) {
	r := newRouter(t, "")

	t.Run("raw body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/detect", strings.NewReader("a;b\n1;2"))
		req.Header.Set(handlers.HeaderFilename, "report.csv")

		rec := serve(r, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var got document.DetectionResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, models.FormatCSV, got.Format)
		assert.True(t, got.Supported)
		assert.Equal(t, "report.csv", got.Filename)
	})

	t.Run("multipart", func(t *testing.T) {
		body, contentType := multipartBody(t, "file", "page", "<!DOCTYPE html><html></html>")
		req := httptest.NewRequest(http.MethodPost, "/detect", body)
		req.Header.Set("Content-Type", contentType)

		rec := serve(r, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var got document.DetectionResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, models.FormatHTML, got.Format)
		assert.Equal(t, "text/html", got.MimeType)
	})

	t.Run("unsupported", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/detect", strings.NewReader("just text"))

		rec := serve(r, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"filename":"","format":"","supported":false}`, rec.Body.String())
	})
}

func TestFormats(t *testing.T) {
	r := newRouter(t, "")

	rec := serve(r, httptest.NewRequest(http.MethodGet, "/formats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Formats []handlers.FormatInfo `json:"formats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Formats, 8)
	assert.Equal(t, "docx", resp.Formats[0].Format)
	assert.Equal(t, []string{"docx", "dotx", "docm", "dotm"}, resp.Formats[0].Extensions)
	assert.Equal(t, "csv", resp.Formats[7].Format)
	assert.Equal(t, []string{"text/csv"}, resp.Formats[7].MimeTypes)
}

func TestAPIKey(t *testing.T) {
	r := newRouter(t, "secret")

	tests := []struct {
		name   string
		key    string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"valid", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/convert/raw", strings.NewReader("# hi"))
			req.Header.Set(handlers.HeaderFilename, "notes.md")
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}

			rec := serve(r, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, "Invalid or missing API key", decodeError(t, rec).Message)
			}
		})
	}
}

func TestAsyncRoutesDisabled(t *testing.T) {
	r := newRouter(t, "")

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/documents/status/abc"},
		{http.MethodGet, "/api/v1/documents/download/abc"},
		{http.MethodDelete, "/api/v1/documents/task/abc"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := serve(r, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		})
	}

	body, contentType := multipartBody(t, "file", "notes.md", "# hi")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/process", body)
	req.Header.Set("Content-Type", contentType)
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, req).Code)
}

func TestRequestIDPropagates(t *testing.T) {
	r := newRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := serve(r, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}
