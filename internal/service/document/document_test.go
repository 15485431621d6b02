package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	processor "github.com/feichai0017/document-converter/internal/agent/document"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
	"github.com/feichai0017/document-converter/pkg/queue"
)

// echoProcessor returns the whole input as one chunk.
type echoProcessor struct {
	err error
}

func (p *echoProcessor) CanProcess(models.Format) bool { return true }

func (p *echoProcessor) Process(_ context.Context, r io.Reader) ([]models.DocumentChunk, error) {
	if p.err != nil {
		return nil, p.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return []models.DocumentChunk{{
		Content:  string(data),
		Metadata: map[string]interface{}{"type": "text", "sections": []string{"Title"}},
	}}, nil
}

func (p *echoProcessor) Close() error { return nil }

type stubProvider struct {
	p processor.Processor
}

func (s *stubProvider) GetProcessor(f models.Format) (processor.Processor, error) {
	if s.p == nil {
		return nil, errors.New("no processor for " + string(f))
	}
	return s.p, nil
}

type fakeQueue struct {
	mu        sync.Mutex
	tasks     []*queue.Task
	statuses  map[string]*queue.TaskStatus
	history   []string
	cancelled []string
	enqueue   error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{statuses: make(map[string]*queue.TaskStatus)}
}

func (q *fakeQueue) Enqueue(_ context.Context, task *queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueue != nil {
		return q.enqueue
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) GetTaskStatus(_ context.Context, taskID string) (*queue.TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.statuses[taskID]
	if !ok {
		return nil, queue.ErrTaskNotFound
	}
	return s, nil
}

func (q *fakeQueue) CancelTask(_ context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.statuses[taskID]; !ok {
		return queue.ErrTaskNotFound
	}
	q.cancelled = append(q.cancelled, taskID)
	return nil
}

func (q *fakeQueue) SaveStatus(_ context.Context, status *queue.TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[status.TaskID] = status
	q.history = append(q.history, status.Status)
	return nil
}

func (q *fakeQueue) Close() error { return nil }

type fakeStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	threshold time.Time
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (s *fakeStorage) Store(_ context.Context, r io.Reader, key string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return key, nil
}

func (s *fakeStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("object not found: " + key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeStorage) CleanupBefore(_ context.Context, threshold time.Time) error {
	s.threshold = threshold
	return nil
}

func newTestService(t *testing.T, p processor.Processor, opts ...Option) *DocumentService {
	t.Helper()
	cfg := DefaultServiceConfig()
	cfg.MaxFileSize = 1024
	return NewService(&stubProvider{p: p}, logger.NewTestLogger(), cfg, opts...)
}

// fileHeaders builds multipart headers the way gin hands them to handlers.
func fileHeaders(t *testing.T, files map[string]string, order ...string) []*multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, name := range order {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["files"]
}

func TestDetect(t *testing.T) {
	svc := newTestService(t, &echoProcessor{})

	tests := []struct {
		name      string
		filename  string
		content   string
		format    models.Format
		supported bool
		mime      string
	}{
		{"csv by name", "report.csv", "a,b\n1,2\n", models.FormatCSV, true, "text/csv"},
		{"html sniff", "", "<!DOCTYPE html><html></html>", models.FormatHTML, true, "text/html"},
		{"markdown by extension", "notes.md", "# hi", models.FormatMarkdown, true, "text/markdown"},
		{"plain text", "notes.txt", "just words", models.FormatUnknown, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.Detect([]byte(tt.content), tt.filename)
			assert.Equal(t, tt.filename, got.Filename)
			assert.Equal(t, tt.format, got.Format)
			assert.Equal(t, tt.supported, got.Supported)
			assert.Equal(t, tt.mime, got.MimeType)
		})
	}
}

func TestConvert(t *testing.T) {
	svc := newTestService(t, &echoProcessor{})

	doc, err := svc.Convert(context.Background(), "notes.md", []byte("# Title\n\nBody"))
	require.NoError(t, err)

	assert.Equal(t, "# Title\n\nBody\n", doc.Markdown)
	assert.Equal(t, "notes.md", doc.Metadata.FileName)
	assert.Equal(t, models.FormatMarkdown, doc.Metadata.Format)
	assert.Equal(t, int64(13), doc.Metadata.FileSize)
	assert.Equal(t, []string{"Title"}, doc.Metadata.Sections)
}

func TestConvertErrors(t *testing.T) {
	tests := []struct {
		name     string
		proc     processor.Processor
		filename string
		content  string
		want     error
	}{
		{"too large", &echoProcessor{}, "big.md", strings.Repeat("x", 1025), ErrFileTooLarge},
		{"unsupported", &echoProcessor{}, "notes.txt", "plain words", ErrUnsupportedFormat},
		{"invalid pdf", &echoProcessor{}, "x.pdf", "%PDF-1.4\nbroken", ErrInvalidDocument},
		{"no processor", nil, "notes.md", "# hi", ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, tt.proc)
			_, err := svc.Convert(context.Background(), tt.filename, []byte(tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsClientError(err))
		})
	}
}

func TestConvertProcessorFailure(t *testing.T) {
	boom := errors.New("boom")
	svc := newTestService(t, &echoProcessor{err: boom})

	_, err := svc.Convert(context.Background(), "notes.md", []byte("# hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsClientError(err))
}

func TestConvertMalformedDocument(t *testing.T) {
	broken := fmt.Errorf("%w: pdf page 1: unexpected keyword", processor.ErrMalformedDocument)
	svc := newTestService(t, &echoProcessor{err: broken})

	_, err := svc.Convert(context.Background(), "notes.md", []byte("# hi"))
	assert.ErrorIs(t, err, ErrInvalidDocument)
	assert.True(t, IsClientError(err))
}

func TestParseFormats(t *testing.T) {
	got, err := parseFormats([]string{"pdf", "md"})
	require.NoError(t, err)
	assert.Equal(t, []models.Format{models.FormatPDF, models.FormatMarkdown}, got)

	got, err = parseFormats(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = parseFormats([]string{"pdf", "txt"})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "txt")
}

func TestConvertAllowedFormats(t *testing.T) {
	cfg := DefaultServiceConfig()
	cfg.AllowedFormats = []models.Format{models.FormatMarkdown}
	svc := NewService(&stubProvider{p: &echoProcessor{}}, logger.NewNop(), cfg)

	_, err := svc.Convert(context.Background(), "notes.md", []byte("# hi"))
	require.NoError(t, err)

	_, err = svc.Convert(context.Background(), "data.csv", []byte("a,b\n1,2\n"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestAsyncDisabled(t *testing.T) {
	svc := newTestService(t, &echoProcessor{})
	ctx := context.Background()
	assert.False(t, svc.AsyncEnabled())

	_, err := svc.ProcessBatch(ctx, nil)
	assert.ErrorIs(t, err, ErrAsyncDisabled)
	_, err = svc.GetProcessingStatus(ctx, "id")
	assert.ErrorIs(t, err, ErrAsyncDisabled)
	_, err = svc.GetProcessedDocument(ctx, "id")
	assert.ErrorIs(t, err, ErrAsyncDisabled)
	assert.ErrorIs(t, svc.CancelTask(ctx, "id"), ErrAsyncDisabled)
	assert.ErrorIs(t, svc.CleanupTasks(ctx), ErrAsyncDisabled)
	assert.ErrorIs(t, svc.HandleDocument(ctx, &queue.Task{ID: "id"}), ErrAsyncDisabled)
}

func TestAsyncRoundTrip(t *testing.T) {
	q, store := newFakeQueue(), newFakeStorage()
	svc := newTestService(t, &echoProcessor{}, WithAsync(q, store))
	ctx := context.Background()

	headers := fileHeaders(t, map[string]string{"notes.md": "# Title\n\nBody"}, "notes.md")
	file, err := headers[0].Open()
	require.NoError(t, err)
	defer file.Close()

	task, err := svc.ProcessFile(ctx, file, headers[0])
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Equal(t, models.FormatMarkdown, task.Format)
	require.Len(t, q.tasks, 1)

	queued := q.tasks[0]
	assert.Equal(t, task.ID, queued.ID)
	assert.Equal(t, "uploads/"+task.ID+"/notes.md", queued.Payload.FileID)
	assert.Equal(t, int64(13), queued.Payload.Size)

	_, err = svc.GetProcessedDocument(ctx, task.ID)
	assert.ErrorIs(t, err, ErrTaskNotCompleted)

	require.NoError(t, svc.HandleDocument(ctx, queued))
	assert.Equal(t, []string{"pending", "running", "completed"}, q.history)

	status, err := svc.GetProcessingStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status.Status)
	assert.Equal(t, 1.0, status.Progress)
	assert.Equal(t, "notes.md", status.Metadata["filename"])

	doc, err := svc.GetProcessedDocument(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, doc.TaskID)
	assert.Equal(t, "# Title\n\nBody\n", doc.Markdown)
	assert.Equal(t, "notes.md", doc.Metadata.FileName)
}

func TestProcessFileRejectsUnsupported(t *testing.T) {
	q, store := newFakeQueue(), newFakeStorage()
	svc := newTestService(t, &echoProcessor{}, WithAsync(q, store))

	headers := fileHeaders(t, map[string]string{"notes.txt": "plain"}, "notes.txt")
	file, err := headers[0].Open()
	require.NoError(t, err)
	defer file.Close()

	_, err = svc.ProcessFile(context.Background(), file, headers[0])
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Empty(t, q.tasks)
	assert.Empty(t, store.objects)
}

func TestProcessBatchKeepsOrder(t *testing.T) {
	q, store := newFakeQueue(), newFakeStorage()
	svc := newTestService(t, &echoProcessor{}, WithAsync(q, store))

	headers := fileHeaders(t, map[string]string{
		"a.md":  "# A",
		"b.csv": "x,y\n1,2\n",
		"c.md":  "# C",
	}, "a.md", "b.csv", "c.md")

	tasks, err := svc.ProcessBatch(context.Background(), headers)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "a.md", tasks[0].Metadata["filename"])
	assert.Equal(t, models.FormatCSV, tasks[1].Format)
	assert.Equal(t, "c.md", tasks[2].Metadata["filename"])
	assert.Len(t, q.tasks, 3)
}

func TestProcessBatchValidatesBeforeSubmitting(t *testing.T) {
	q, store := newFakeQueue(), newFakeStorage()
	svc := newTestService(t, &echoProcessor{}, WithAsync(q, store))

	headers := fileHeaders(t, map[string]string{
		"a.md":      "# A",
		"notes.txt": "plain",
		"c.md":      "# C",
	}, "a.md", "notes.txt", "c.md")

	tasks, err := svc.ProcessBatch(context.Background(), headers)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "notes.txt")
	assert.Empty(t, tasks)
	assert.Empty(t, q.tasks)
	assert.Empty(t, store.objects)
}

func TestHandleDocumentFailureRecordsStatus(t *testing.T) {
	q, store := newFakeQueue(), newFakeStorage()
	svc := newTestService(t, &echoProcessor{}, WithAsync(q, store))

	task := &queue.Task{
		ID:      "task-1",
		Payload: queue.Payload{FileID: "uploads/task-1/missing.md", Filename: "missing.md", Format: models.FormatMarkdown},
	}
	err := svc.HandleDocument(context.Background(), task)
	require.Error(t, err)

	status := q.statuses["task-1"]
	require.NotNil(t, status)
	assert.Equal(t, "failed", status.Status)
	assert.Contains(t, status.Error, "failed to get file")
}

func TestHandleDocumentRejectsInvalidTask(t *testing.T) {
	svc := newTestService(t, &echoProcessor{}, WithAsync(newFakeQueue(), newFakeStorage()))
	err := svc.HandleDocument(context.Background(), &queue.Task{ID: "x"})
	assert.ErrorContains(t, err, "missing file id")
}

func TestCancelTask(t *testing.T) {
	q := newFakeQueue()
	svc := newTestService(t, &echoProcessor{}, WithAsync(q, newFakeStorage()))
	ctx := context.Background()

	q.statuses["t1"] = &queue.TaskStatus{TaskID: "t1", Status: "pending", Filename: "notes.md", Format: "md"}
	require.NoError(t, svc.CancelTask(ctx, "t1"))
	assert.Equal(t, "cancelled", q.statuses["t1"].Status)
	assert.Equal(t, "notes.md", q.statuses["t1"].Filename)
	assert.Equal(t, []string{"t1"}, q.cancelled)
}

func TestCancelTaskUnknownID(t *testing.T) {
	q := newFakeQueue()
	svc := newTestService(t, &echoProcessor{}, WithAsync(q, newFakeStorage()))

	err := svc.CancelTask(context.Background(), "unknown")
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)
	assert.True(t, IsClientError(err))
	assert.NotContains(t, q.statuses, "unknown")
	assert.Empty(t, q.cancelled)
}

func TestCancelTaskRefusesFinished(t *testing.T) {
	for _, status := range []string{"completed", "failed", "cancelled"} {
		t.Run(status, func(t *testing.T) {
			q := newFakeQueue()
			svc := newTestService(t, &echoProcessor{}, WithAsync(q, newFakeStorage()))
			q.statuses["t1"] = &queue.TaskStatus{TaskID: "t1", Status: status, Progress: 1}

			err := svc.CancelTask(context.Background(), "t1")
			assert.ErrorIs(t, err, queue.ErrTaskFinished)
			assert.True(t, IsClientError(err))
			assert.Equal(t, status, q.statuses["t1"].Status)
			assert.Empty(t, q.cancelled)
			assert.Empty(t, q.history)
		})
	}
}

func TestCleanupTasksUsesRetention(t *testing.T) {
	store := newFakeStorage()
	svc := newTestService(t, &echoProcessor{}, WithAsync(newFakeQueue(), store))

	before := time.Now()
	require.NoError(t, svc.CleanupTasks(context.Background()))
	assert.WithinDuration(t, before.Add(-24*time.Hour), store.threshold, time.Minute)
}
