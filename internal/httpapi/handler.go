// Package httpapi is the thin gin layer over the attendance engine and the
// directory/report services.
package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smartpresence/internal/attendance"
	"smartpresence/internal/directory"
	"smartpresence/internal/engine"
	"smartpresence/internal/faceclient"
	"smartpresence/internal/queue"
	"smartpresence/internal/report"
	"smartpresence/internal/sessiontoken"
)

// Handler owns the route implementations.
type Handler struct {
	recorder *engine.Recorder
	dirRepo  *directory.Repository
	dirSvc   *directory.Service
	attRepo  *attendance.Repository
	reports  *report.Service
	tokens   *sessiontoken.Issuer
	queue    queue.Queue
	// loc anchors session wall-clock strings to a timezone, used when
	// turning a session window into a QR token expiry instant.
	loc *time.Location
	log *zap.Logger
}

// New creates the handler. A nil loc falls back to the server's local zone.
func New(recorder *engine.Recorder, dirRepo *directory.Repository, dirSvc *directory.Service,
	attRepo *attendance.Repository, reports *report.Service, tokens *sessiontoken.Issuer,
	q queue.Queue, loc *time.Location, log *zap.Logger) *Handler {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		recorder: recorder,
		dirRepo:  dirRepo,
		dirSvc:   dirSvc,
		attRepo:  attRepo,
		reports:  reports,
		tokens:   tokens,
		queue:    q,
		loc:      loc,
		log:      log,
	}
}

// Register mounts all v1 routes.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/v1")

	v1.POST("/attendance", h.SubmitAttendance)
	v1.GET("/attendance", h.ListAttendance)

	v1.POST("/students", h.EnrollStudent)
	v1.GET("/students", h.ListStudents)

	v1.POST("/classes", h.CreateClass)
	v1.GET("/classes", h.ListClasses)
	v1.POST("/classes/:id/students/:studentID", h.AddMember)
	v1.GET("/classes/:id/students", h.ClassStudents)

	v1.POST("/sessions", h.CreateSession)
	v1.GET("/sessions", h.ListSessions)
	v1.DELETE("/sessions/:id", h.DeactivateSession)
	v1.GET("/sessions/:id/qr", h.SessionQR)

	v1.GET("/reports/class/:id", h.ClassReport)
	v1.GET("/reports/student/:id", h.StudentReport)
}

// ---------- Attendance ----------

type submitForm struct {
	NIM     string `form:"nim" binding:"required"`
	ClassID int64  `form:"class_id" binding:"required"`
	Method  string `form:"method" binding:"required,oneof=face qr pin"`
	QRToken string `form:"qr_token"`
}

// SubmitAttendance accepts a multipart submission and runs it through the
// engine. The probe file is mandatory for face, optional evidence otherwise.
func (h *Handler) SubmitAttendance(c *gin.Context) {
	var form submitForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	method, _ := engine.ParseMethod(form.Method)

	var probe []byte
	if file, _, err := c.Request.FormFile("file"); err == nil {
		defer file.Close()
		probe, err = io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
			return
		}
	}
	if method == engine.MethodFace && len(probe) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required for face attendance"})
		return
	}

	// QR credential checks stay outside the engine; when a token rides
	// along it must at least belong to the claimed class.
	if method == engine.MethodQR && form.QRToken != "" {
		claims, err := h.tokens.Parse(form.QRToken)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired qr token"})
			return
		}
		if claims.ClassID != form.ClassID {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "qr token belongs to another class"})
			return
		}
	}

	out, err := h.recorder.Submit(c.Request.Context(), engine.SubmitRequest{
		NIM:     form.NIM,
		ClassID: form.ClassID,
		Method:  method,
		Probe:   probe,
	}, time.Now())
	if err != nil {
		h.log.Error("submission failed", zap.String("nim", form.NIM), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process submission, retry later"})
		return
	}

	if out.Status == engine.StatusSuccess {
		if err := h.queue.Publish(c.Request.Context(), queue.Committed(out.Record.ID)); err != nil {
			h.log.Warn("queue publish failed", zap.Int64("record_id", out.Record.ID), zap.Error(err))
		}
	}
	c.JSON(statusFor(out), out)
}

// statusFor maps outcomes onto HTTP codes. Every rejection still carries the
// full outcome body so clients can self-diagnose.
func statusFor(out engine.Outcome) int {
	if out.Status == engine.StatusSuccess {
		return http.StatusCreated
	}
	switch out.Reason {
	case engine.ReasonIdentityNotFound:
		return http.StatusNotFound
	case engine.ReasonNoActiveSession:
		return http.StatusForbidden
	case engine.ReasonAlreadyRecorded:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

// ListAttendance returns records with optional student/class filters.
func (h *Handler) ListAttendance(c *gin.Context) {
	studentID := queryInt64(c, "student_id")
	classID := queryInt64(c, "class_id")
	limit := queryInt(c, "limit", 100)
	offset := queryInt(c, "offset", 0)

	records, err := h.attRepo.List(c.Request.Context(), studentID, classID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []engine.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// ---------- Students ----------

type enrollForm struct {
	Name    string `form:"name" binding:"required"`
	NIM     string `form:"nim" binding:"required"`
	ClassID int64  `form:"class_id" binding:"required"`
}

// EnrollStudent registers a student from a multipart form with an enrollment
// photo; the face service turns the photo into the stored reference template.
func (h *Handler) EnrollStudent(c *gin.Context) {
	var form enrollForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	defer file.Close()
	photo, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
		return
	}

	ident, err := h.dirSvc.EnrollStudent(c.Request.Context(), form.Name, form.NIM, form.ClassID, photo)
	switch {
	case errors.Is(err, faceclient.ErrNoFace):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no face detected in the photo"})
	case errors.Is(err, directory.ErrDuplicate):
		c.JSON(http.StatusBadRequest, gin.H{"error": "nim already registered"})
	case err != nil:
		h.log.Error("enrollment failed", zap.String("nim", form.NIM), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enrollment failed"})
	default:
		c.JSON(http.StatusCreated, ident)
	}
}

// ListStudents returns students with paging.
func (h *Handler) ListStudents(c *gin.Context) {
	students, err := h.dirRepo.ListStudents(c.Request.Context(), queryInt(c, "limit", 100), queryInt(c, "offset", 0))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if students == nil {
		students = []engine.Identity{}
	}
	c.JSON(http.StatusOK, students)
}

// ---------- Classes ----------

type classForm struct {
	Name string `form:"name" binding:"required"`
}

// CreateClass creates a class with a unique name.
func (h *Handler) CreateClass(c *gin.Context) {
	var form classForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cls, err := h.dirRepo.InsertClass(c.Request.Context(), form.Name)
	switch {
	case errors.Is(err, directory.ErrDuplicate):
		c.JSON(http.StatusBadRequest, gin.H{"error": "class name already exists"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusCreated, cls)
	}
}

// ListClasses returns all classes.
func (h *Handler) ListClasses(c *gin.Context) {
	classes, err := h.dirRepo.ListClasses(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if classes == nil {
		classes = []engine.ClassGroup{}
	}
	c.JSON(http.StatusOK, classes)
}

// AddMember links a student to a class.
func (h *Handler) AddMember(c *gin.Context) {
	classID, ok := paramInt64(c, "id")
	if !ok {
		return
	}
	studentID, ok := paramInt64(c, "studentID")
	if !ok {
		return
	}
	err := h.dirSvc.AddMember(c.Request.Context(), classID, studentID)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, directory.ErrDuplicate):
		c.JSON(http.StatusBadRequest, gin.H{"error": "student is already a member of this class"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusCreated, gin.H{"class_id": classID, "student_id": studentID})
	}
}

// ClassStudents returns a class roster via memberships.
func (h *Handler) ClassStudents(c *gin.Context) {
	classID, ok := paramInt64(c, "id")
	if !ok {
		return
	}
	students, err := h.dirRepo.ClassStudents(c.Request.Context(), classID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if students == nil {
		students = []engine.Identity{}
	}
	c.JSON(http.StatusOK, students)
}

// ---------- Sessions ----------

type sessionForm struct {
	ClassID   int64  `json:"class_id" binding:"required"`
	Date      string `json:"date" binding:"required"`
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time" binding:"required"`
	Method    string `json:"method" binding:"required,oneof=face qr pin"`
	IsActive  *bool  `json:"is_active"`
}

// CreateSession schedules an attendance window.
func (h *Handler) CreateSession(c *gin.Context) {
	var form sessionForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := time.Parse("2006-01-02", form.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	start, errStart := time.Parse("15:04", form.StartTime)
	end, errEnd := time.Parse("15:04", form.EndTime)
	if errStart != nil || errEnd != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_time and end_time must be HH:MM"})
		return
	}
	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session window must not wrap past midnight"})
		return
	}
	method, _ := engine.ParseMethod(form.Method)
	active := true
	if form.IsActive != nil {
		active = *form.IsActive
	}

	// Store the re-formatted values, not the raw form strings. Session
	// windows resolve by lexicographic comparison against zero-padded
	// times, so an accepted "9:00" must become "09:00" before it lands
	// in a row.
	sess, err := h.dirRepo.InsertSession(c.Request.Context(), engine.Session{
		ClassID: form.ClassID,
		Date:    date.Format("2006-01-02"),
		Start:   start.Format("15:04"),
		End:     end.Format("15:04"),
		Method:  method,
		Active:  active,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// ListSessions returns sessions with optional class/date/active filters.
func (h *Handler) ListSessions(c *gin.Context) {
	filter := directory.SessionFilter{
		ClassID: queryInt64(c, "class_id"),
		Date:    c.Query("date"),
	}
	if v := c.Query("is_active"); v != "" {
		active := v == "true" || v == "1"
		filter.Active = &active
	}
	sessions, err := h.dirRepo.Sessions(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []engine.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

// DeactivateSession soft-deletes a session.
func (h *Handler) DeactivateSession(c *gin.Context) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}
	err := h.dirRepo.DeactivateSession(c.Request.Context(), id)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "session deactivated"})
	}
}

// SessionQR mints the signed token a qr-method session displays. The token
// expires at the end of the session window.
func (h *Handler) SessionQR(c *gin.Context) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}
	sess, err := h.dirRepo.SessionByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if sess.Method != engine.MethodQR {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session does not use the qr method"})
		return
	}
	if !sess.Active {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session is deactivated"})
		return
	}

	expiresAt, err := h.sessionEnd(*sess)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "malformed session window"})
		return
	}
	token, err := h.tokens.Issue(sess.ID, sess.ClassID, expiresAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": expiresAt.Unix()})
}

func (h *Handler) sessionEnd(sess engine.Session) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04", sess.Date+" "+sess.End, h.loc)
}

// ---------- Reports ----------

// ClassReport returns the roster-wide summary of a class.
func (h *Handler) ClassReport(c *gin.Context) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}
	summary, err := h.reports.Class(c.Request.Context(), id)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, summary)
	}
}

// StudentReport returns a single student's summary.
func (h *Handler) StudentReport(c *gin.Context) {
	id, ok := paramInt64(c, "id")
	if !ok {
		return
	}
	summary, err := h.reports.Student(c.Request.Context(), id)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, summary)
	}
}

// ---------- helpers ----------

func paramInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}

func queryInt64(c *gin.Context, name string) int64 {
	v, _ := strconv.ParseInt(c.Query(name), 10, 64)
	return v
}

func queryInt(c *gin.Context, name string, fallback int) int {
	if raw := c.Query(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}
