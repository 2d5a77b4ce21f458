package httpapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartpresence/internal/attendance"
	"smartpresence/internal/directory"
	"smartpresence/internal/engine"
	"smartpresence/internal/evidence"
	"smartpresence/internal/faceclient"
	"smartpresence/internal/queue"
	"smartpresence/internal/sessiontoken"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

// newSubmitRouter wires a real engine over sqlmock-backed repos and the
// face client's skip mode, mirroring the production wiring in cmd/api.
func newSubmitRouter(t *testing.T, mock func(sqlmock.Sqlmock)) *gin.Engine {
	t.Helper()
	db, sqlMock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	if mock != nil {
		mock(sqlMock)
	}

	dirRepo := directory.NewRepository(db)
	attRepo := attendance.NewRepository(db)
	face := faceclient.New("", true)
	disk, err := evidence.NewDisk(t.TempDir())
	require.NoError(t, err)
	recorder := engine.NewRecorder(dirRepo, attRepo, face, disk, 0, nil)

	h := New(recorder, dirRepo, directory.NewService(dirRepo, face, nil), attRepo,
		nil, sessiontoken.New("smartpresence", "test-key"), queue.NewInMemory(8), time.UTC, nil)
	r := gin.New()
	h.Register(r)
	return r
}

func TestSubmitAttendanceValidation(t *testing.T) {
	r := newSubmitRouter(t, nil)

	cases := []struct {
		name   string
		fields map[string]string
		file   []byte
		code   int
	}{
		{"missing method", map[string]string{"nim": "2201001", "class_id": "10"}, nil, http.StatusBadRequest},
		{"bad method", map[string]string{"nim": "2201001", "class_id": "10", "method": "retina"}, nil, http.StatusBadRequest},
		{"face without file", map[string]string{"nim": "2201001", "class_id": "10", "method": "face"}, nil, http.StatusBadRequest},
		{"garbage qr token", map[string]string{"nim": "2201001", "class_id": "10", "method": "qr", "qr_token": "nope"}, nil, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fileField := ""
			if tc.file != nil {
				fileField = "file"
			}
			body, contentType := multipartBody(t, tc.fields, fileField, "probe.jpg", tc.file)
			req := httptest.NewRequest(http.MethodPost, "/v1/attendance", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
}

func TestSubmitAttendanceQRTokenClassMismatch(t *testing.T) {
	r := newSubmitRouter(t, nil)

	token, err := sessiontoken.New("smartpresence", "test-key").Issue(100, 99, time.Now().Add(time.Hour))
	require.NoError(t, err)

	body, contentType := multipartBody(t, map[string]string{
		"nim": "2201001", "class_id": "10", "method": "qr", "qr_token": token,
	}, "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/attendance", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitAttendanceEndToEnd(t *testing.T) {
	now := time.Now()
	r := newSubmitRouter(t, func(m sqlmock.Sqlmock) {
		m.ExpectQuery(`FROM students WHERE nim`).
			WithArgs("2201001").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "nim", "class_id", "face_template"}).
				AddRow(int64(1), "Siti", "2201001", int64(10), []byte("ref")))
		m.ExpectQuery(`FROM sessions WHERE`).
			WithArgs(int64(10), now.Format("2006-01-02"), true).
			WillReturnRows(sqlmock.NewRows([]string{"id", "class_id", "date", "start_time", "end_time", "method", "is_active"}).
				AddRow(int64(100), int64(10), now.Format("2006-01-02"), "00:00", "23:59", "face", true))
		m.ExpectQuery(`SELECT EXISTS`).
			WithArgs(int64(10), int64(1)). // membership check
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		m.ExpectQuery(`SELECT EXISTS`).
			WithArgs(int64(1), int64(100)). // duplicate fast path
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		m.ExpectQuery(`INSERT INTO attendance_records`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(55)))
	})

	body, contentType := multipartBody(t, map[string]string{
		"nim": "2201001", "class_id": "10", "method": "face",
	}, "file", "probe.jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0})
	req := httptest.NewRequest(http.MethodPost, "/v1/attendance", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out engine.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, engine.StatusSuccess, out.Status)
	require.NotNil(t, out.Record)
	assert.Equal(t, int64(55), out.Record.ID)
	assert.Equal(t, 0.95, out.Record.Confidence, "skip-mode matcher score is recorded")
}

func TestCreateSessionNormalizesDateAndTimes(t *testing.T) {
	// Unpadded input parses fine but would break lexicographic window
	// resolution if stored raw; the row must carry zero-padded values.
	r := newSubmitRouter(t, func(m sqlmock.Sqlmock) {
		m.ExpectQuery(`INSERT INTO sessions`).
			WithArgs(int64(10), "2024-03-05", "09:00", "09:30", "face", true).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	})

	body, err := json.Marshal(map[string]any{
		"class_id":   10,
		"date":       "2024-3-5",
		"start_time": "9:00",
		"end_time":   "9:30",
		"method":     "face",
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess engine.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, "09:00", sess.Start)
	assert.Equal(t, "09:30", sess.End)
	assert.Equal(t, "2024-03-05", sess.Date)
}

func TestSessionQRExpiryUsesConfiguredLocation(t *testing.T) {
	db, sqlMock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlMock.ExpectQuery(`FROM sessions WHERE id`).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "class_id", "date", "start_time", "end_time", "method", "is_active"}).
			AddRow(int64(100), int64(10), "2024-03-05", "09:00", "10:00", "qr", true))

	loc := time.FixedZone("WIB", 7*3600)
	dirRepo := directory.NewRepository(db)
	h := New(nil, dirRepo, nil, nil, nil,
		sessiontoken.New("smartpresence", "test-key"), queue.NewInMemory(1), loc, nil)
	r := gin.New()
	h.Register(r)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/100/qr", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		ExpiresAt int64 `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, loc).Unix(), out.ExpiresAt)
}

func TestStatusForMapping(t *testing.T) {
	assert.Equal(t, http.StatusCreated, statusFor(engine.Outcome{Status: engine.StatusSuccess}))
	assert.Equal(t, http.StatusNotFound, statusFor(engine.Outcome{Status: engine.StatusRejected, Reason: engine.ReasonIdentityNotFound}))
	assert.Equal(t, http.StatusForbidden, statusFor(engine.Outcome{Status: engine.StatusRejected, Reason: engine.ReasonNoActiveSession}))
	assert.Equal(t, http.StatusConflict, statusFor(engine.Outcome{Status: engine.StatusRejected, Reason: engine.ReasonAlreadyRecorded}))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(engine.Outcome{Status: engine.StatusRejected, Reason: engine.ReasonLowConfidence}))
}
