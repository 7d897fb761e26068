// Package audit turns completed operations into audit records, filling each
// one from the request that caused it.
package audit

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	dErrors "corridor/pkg/domain-errors"
	records "corridor/pkg/platform/audit"
	"corridor/pkg/platform/middleware/device"
	"corridor/pkg/requestcontext"
)

// Emitter accepts finished records. Emission never fails from the caller's
// point of view.
type Emitter interface {
	Emit(ctx context.Context, record records.Record)
}

// Meta is the HTTP side of a record. The zero value is valid for work that
// did not come from a request.
type Meta struct {
	Method   string
	Endpoint string
	Status   int
	Duration time.Duration
}

// MetaFromRequest captures method and endpoint; handlers fill Status and
// Duration once they know them.
func MetaFromRequest(r *http.Request) Meta {
	return Meta{Method: r.Method, Endpoint: r.URL.RequestURI()}
}

// WithStatus returns a copy of m carrying status and the time since start.
func (m Meta) WithStatus(status int, start time.Time) Meta {
	m.Status = status
	if !start.IsZero() {
		m.Duration = time.Since(start)
	}
	return m
}

type Auditor struct {
	emitter Emitter
}

func New(emitter Emitter) *Auditor {
	return &Auditor{emitter: emitter}
}

func (a *Auditor) Created(ctx context.Context, meta Meta, subjectID string, data map[string]any) {
	a.emit(ctx, meta, subjectID, records.ActionCreated, records.SeverityInfo, data)
}

func (a *Auditor) Modified(ctx context.Context, meta Meta, subjectID string, data map[string]any) {
	a.emit(ctx, meta, subjectID, records.ActionModified, records.SeverityInfo, data)
}

// Deleted is recorded at warning severity.
func (a *Auditor) Deleted(ctx context.Context, meta Meta, subjectID string, data map[string]any) {
	a.emit(ctx, meta, subjectID, records.ActionDeleted, records.SeverityWarning, data)
}

func (a *Auditor) Read(ctx context.Context, meta Meta, subjectID string, data map[string]any) {
	a.emit(ctx, meta, subjectID, records.ActionRead, records.SeverityInfo, data)
}

// RAGQuery records a question, its answer, and the answering method.
func (a *Auditor) RAGQuery(ctx context.Context, meta Meta, subjectID, question, answer, method string) {
	a.emit(ctx, meta, subjectID, records.ActionRAGQuery, records.SeverityInfo, map[string]any{
		"question": question,
		"answer":   answer,
		"method":   method,
	})
}

// Login records a successful authentication of the current principal.
func (a *Auditor) Login(ctx context.Context, meta Meta) {
	rec := a.build(ctx, meta, requestcontext.SubjectID(ctx), records.ActionLogin, records.SeverityInfo,
		map[string]any{"success": true})
	rec.IDType = records.IDTypeEntraOID
	a.emitter.Emit(ctx, rec)
}

// AuthFailed records a rejected credential. subjectID may be empty when the
// token never yielded one.
func (a *Auditor) AuthFailed(ctx context.Context, meta Meta, subjectID string, cause error) {
	data := map[string]any{"success": false}
	if cause != nil {
		data["reason"] = string(dErrors.CodeOf(cause))
	}
	rec := a.build(ctx, meta, subjectID, records.ActionAuthFailed, records.SeverityWarning, data)
	if subjectID != "" {
		rec.IDType = records.IDTypeEntraOID
	}
	a.emitter.Emit(ctx, rec)
}

// Error records a failed operation. Bad input becomes ValidationError, any
// other failure ServerError with a stack trace.
func (a *Auditor) Error(ctx context.Context, meta Meta, subjectID string, err error) {
	if err == nil {
		return
	}
	code := dErrors.CodeOf(err)
	action := records.ActionServerError
	if code == dErrors.CodeBadRequest {
		action = records.ActionValidationError
	}
	rec := a.build(ctx, meta, subjectID, action, records.SeverityError, map[string]any{"code": string(code)})
	rec.ErrorMessage = err.Error()
	if action == records.ActionServerError {
		rec.ErrorStack = string(debug.Stack())
	}
	a.emitter.Emit(ctx, rec)
}

func (a *Auditor) emit(ctx context.Context, meta Meta, subjectID string, action records.Action, severity records.Severity, data map[string]any) {
	a.emitter.Emit(ctx, a.build(ctx, meta, subjectID, action, severity, data))
}

func (a *Auditor) build(ctx context.Context, meta Meta, subjectID string, action records.Action, severity records.Severity, data map[string]any) records.Record {
	trace := requestcontext.Trace(ctx)
	ua := requestcontext.UserAgent(ctx)

	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	if info := device.FromContext(ctx, ua); !info.IsZero() {
		payload["client"] = info
	}

	rec := records.Record{
		RequestID:   trace.TraceID,
		ServiceName: trace.OriginService,
		UserID:      subjectID,
		IDType:      records.IDTypeCC,
		Action:      action,
		Severity:    severity,
		Data:        payload,
		HTTPMethod:  meta.Method,
		HTTPStatus:  meta.Status,
		Endpoint:    meta.Endpoint,
		IPAddress:   requestcontext.ClientIP(ctx),
		UserAgent:   ua,
	}
	if p := requestcontext.Principal(ctx); p != nil {
		rec.UserEmail = p.Email
	}
	if meta.Duration > 0 {
		rec.Duration(meta.Duration)
	}
	return rec
}
