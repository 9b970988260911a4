package errors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/rag-go/internal/interfaces"
)

type noopLogger struct{}

func (noopLogger) Info(msg string, fields ...interface{})  {}
func (noopLogger) Error(msg string, fields ...interface{}) {}
func (noopLogger) Debug(msg string, fields ...interface{}) {}
func (noopLogger) Warn(msg string, fields ...interface{})  {}
func (noopLogger) Fatal(msg string, fields ...interface{}) {}
func (l noopLogger) With(fields ...interface{}) interfaces.LoggerInterface {
	return l
}
func (l noopLogger) WithError(err error) interfaces.LoggerInterface {
	return l
}

func TestTranslator_AppErrorPassthrough(t *testing.T) {
	tr := NewErrorTranslator()
	orig := NewValidationError("query is required")

	got := tr.Translate(orig)
	assert.Same(t, orig, got)
}

func TestTranslator_ContextDeadline(t *testing.T) {
	tr := NewErrorTranslator()

	got := tr.Translate(context.DeadlineExceeded)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeTimeout, got.Code)
	assert.Equal(t, ErrorTypeExternal, got.Type)
}

func TestTranslator_StorageNotFound(t *testing.T) {
	tr := NewErrorTranslator()
	minioErr := minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}

	got := tr.Translate(minioErr)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeObjectNotFound, got.Code)
	assert.Equal(t, http.StatusNotFound, got.HTTPCode)
}

func TestTranslator_ConnectionRefused(t *testing.T) {
	tr := NewErrorTranslator()

	got := tr.Translate(fmt.Errorf("dial tcp 127.0.0.1:19530: connection refused"))
	require.NotNil(t, got)
	assert.Equal(t, ErrorTypeExternal, got.Type)
	assert.Equal(t, http.StatusInternalServerError, got.HTTPCode)
}

func TestTranslator_UnknownBecomesSystemError(t *testing.T) {
	tr := NewErrorTranslator()

	got := tr.Translate(fmt.Errorf("something odd happened"))
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeInternalServer, got.Code)
	assert.Equal(t, ErrorTypeSystem, got.Type)
}

func TestGetAppError_WrapsPlainError(t *testing.T) {
	plain := fmt.Errorf("boom")

	appErr := GetAppError(plain)
	require.NotNil(t, appErr)
	assert.Equal(t, ErrCodeInternalServer, appErr.Code)
	assert.ErrorIs(t, appErr, plain)
}

func TestHandler_ResponseShape(t *testing.T) {
	h := NewErrorHandler(noopLogger{}, NewErrorTranslator())

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader("{}"))
	rec := httptest.NewRecorder()

	h.Handle(rec, req, NewValidationError("Query parameter is required"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `"code":"VALIDATION_FAILED"`)
	assert.Contains(t, body, `"message":"Query parameter is required"`)
	assert.Contains(t, body, `"type":"validation"`)
}

func TestHandler_TranslatesRawStorageError(t *testing.T) {
	h := NewErrorHandler(noopLogger{}, NewErrorTranslator())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ingest/status", nil)
	rec := httptest.NewRecorder()

	h.Handle(rec, req, minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"OBJECT_NOT_FOUND"`)
}

func TestHandler_EchoesRequestID(t *testing.T) {
	h := NewErrorHandler(noopLogger{}, NewErrorTranslator())

	req := httptest.NewRequest(http.MethodPost, "/query", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()

	h.Handle(rec, req, NewValidationError("Query parameter is required"))

	assert.Contains(t, rec.Body.String(), `"request_id":"req-42"`)
}

func TestHandler_SystemErrorHidesDetails(t *testing.T) {
	h := NewErrorHandler(noopLogger{}, NewErrorTranslator())

	req := httptest.NewRequest(http.MethodPost, "/query", nil)
	rec := httptest.NewRecorder()

	err := NewSystemError(ErrCodeInternalServer, "Internal server error").
		WithDetails(map[string]interface{}{"dsn": "secret"}).
		WithCause(fmt.Errorf("milvus: collection load failed"))
	h.Handle(rec, req, err)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.NotContains(t, rec.Body.String(), "milvus")
}

func TestMonitor_StatsAccumulate(t *testing.T) {
	em := NewErrorMonitor()
	em.Reset()

	appErr := NewExternalError(ErrCodeVectorStore, "Vector store operation failed")
	em.RecordError(context.Background(), appErr, "/query", 0)
	em.RecordError(context.Background(), appErr, "/query", 0)

	stats := em.GetStats()
	key := string(ErrCodeVectorStore) + ":/query"
	require.Contains(t, stats, key)
	assert.Equal(t, int64(2), stats[key].Count)

	top := em.GetTopErrors(1)
	require.Len(t, top, 1)
	assert.Equal(t, string(ErrCodeVectorStore), top[0].Code)
}
