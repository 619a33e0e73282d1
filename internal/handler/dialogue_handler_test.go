package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jiyuchen1/AiHistory/internal/middleware"
	"github.com/jiyuchen1/AiHistory/internal/model"
	"github.com/jiyuchen1/AiHistory/internal/repository"
	"github.com/jiyuchen1/AiHistory/internal/service"
	"github.com/jiyuchen1/AiHistory/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Level   string          `json:"level"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fakeArchiver struct {
	names []string
	err   error
}

func (a *fakeArchiver) Archive(_ context.Context, name string, _ []byte) (string, error) {
	a.names = append(a.names, name)
	return "obj/" + name, a.err
}

type testServer struct {
	router  *gin.Engine
	svc     service.DialogueService
	hub     *NotificationHub
	handler *DialogueHandler
}

func newTestServer(t *testing.T, archiver ExportArchiver) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := service.NewDialogueService(repository.NewMemorySnapshotRepository())
	require.NoError(t, svc.Hydrate(context.Background()))
	hub := NewNotificationHub(nil)
	h := NewDialogueHandler(svc, hub, archiver, 1<<20)
	h.now = func() time.Time { return time.Date(2024, 5, 6, 12, 0, 0, 0, time.Local) }

	return &testServer{
		router:  NewRouter(RouterOptions{Dialogues: h, Hub: hub}),
		svc:     svc,
		hub:     hub,
		handler: h,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body []byte, contentType string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") && w.Header().Get("Content-Disposition") == "" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *testServer) appendJSON(t *testing.T, role, dialogue, think string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	body, err := json.Marshal(map[string]string{"role": role, "dialogue": dialogue, "think": think})
	require.NoError(t, err)
	return s.do(t, http.MethodPost, "/api/v1/dialogues", body, "application/json")
}

func multipartBody(t *testing.T, filename, contentType string, content []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestAppendListDelete(t *testing.T) {
	s := newTestServer(t, nil)

	w, env := s.appendJSON(t, "user", "What is 2+2?", "ignored")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "success", env.Level)
	var q model.TurnRecord
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assert.Empty(t, q.Think)

	w, _ = s.appendJSON(t, "assistant", "4", "basic arithmetic")
	require.Equal(t, http.StatusCreated, w.Code)

	w, env = s.do(t, http.MethodGet, "/api/v1/dialogues", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var records []model.TurnRecord
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 2)
	assert.Equal(t, "basic arithmetic", records[1].Think)

	w, env = s.do(t, http.MethodDelete, "/api/v1/dialogues/"+q.ID, nil, "")
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Equal(t, "info", env.Level)
	assert.Equal(t, 2, s.svc.Len())

	w, _ = s.do(t, http.MethodDelete, "/api/v1/dialogues/"+q.ID+"?confirm=true", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, s.svc.Len())
	assert.Equal(t, model.RoleResponder, s.svc.Records()[0].Role)

	w, env = s.do(t, http.MethodDelete, "/api/v1/dialogues/"+q.ID+"?confirm=true", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "info", env.Level)
}

func TestAppendValidation(t *testing.T) {
	s := newTestServer(t, nil)

	w, env := s.appendJSON(t, "user", "   ", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "error", env.Level)
	assert.Equal(t, "对话内容不能为空", env.Message)

	w, _ = s.appendJSON(t, "narrator", "hello", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/dialogues", []byte(`{oops`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, s.svc.Len())
}

func TestExport(t *testing.T) {
	archiver := &fakeArchiver{}
	s := newTestServer(t, archiver)

	w, env := s.do(t, http.MethodGet, "/api/v1/dialogues/export", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "没有可以导出的记录", env.Message)
	assert.Empty(t, archiver.names)

	s.appendJSON(t, "user", "hi", "")
	w, _ = s.do(t, http.MethodGet, "/api/v1/dialogues/export", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="dialogue-history-2024-05-06.json"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, []string{"dialogue-history-2024-05-06.json"}, archiver.names)

	records, err := model.DecodeSnapshot(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, s.svc.Records(), records)

	archiver.err = errors.New("minio down")
	w, _ = s.do(t, http.MethodGet, "/api/v1/dialogues/export", nil, "")
	assert.Equal(t, http.StatusOK, w.Code, "archive failure must not block the download")
}

func TestImport(t *testing.T) {
	s := newTestServer(t, nil)
	s.appendJSON(t, "user", "local", "")

	batch := []byte(`[{"id":"imp-1","role":"user","dialogue":"older","think":"","timestamp":"2023-01-01 00:00:00"}]`)
	body, ct := multipartBody(t, "history.json", "application/json", batch)
	w, env := s.do(t, http.MethodPost, "/api/v1/dialogues/import", body, ct)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	assert.Equal(t, "success", env.Level)
	assert.JSONEq(t, `{"imported":1}`, string(env.Data))
	assert.Equal(t, "imp-1", s.svc.Records()[0].ID)

	// 再次导入同一批次：没有新记录，仅提示
	body, ct = multipartBody(t, "history.json", "application/json", batch)
	w, env = s.do(t, http.MethodPost, "/api/v1/dialogues/import", body, ct)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "info", env.Level)
	assert.Equal(t, 2, s.svc.Len())
}

func TestImportRejections(t *testing.T) {
	s := newTestServer(t, nil)

	body, ct := multipartBody(t, "notes.txt", "text/plain", []byte(`[]`))
	w, _ := s.do(t, http.MethodPost, "/api/v1/dialogues/import", body, ct)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	malformed := []byte(`[{"id":"1","role":"user","dialogue":"a","timestamp":"t"},{"id":"2","role":"user","timestamp":"t"}]`)
	body, ct = multipartBody(t, "bad.json", "application/json", malformed)
	w, env := s.do(t, http.MethodPost, "/api/v1/dialogues/import", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "error", env.Level)
	assert.Zero(t, s.svc.Len())

	w, _ = s.do(t, http.MethodPost, "/api/v1/dialogues/import", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportRejectsOversizedUpload(t *testing.T) {
	s := newTestServer(t, nil)
	s.handler.maxImportBytes = 1024

	// 远超上限：在解析表单时就被截断
	huge := []byte(`[{"id":"1","role":"user","dialogue":"` + strings.Repeat("x", 256<<10) + `","timestamp":"t"}]`)
	body, ct := multipartBody(t, "huge.json", "application/json", huge)
	w, env := s.do(t, http.MethodPost, "/api/v1/dialogues/import", body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "error", env.Level)

	// 略超上限：表单可以解析，由文件大小检查拒绝
	over := []byte(`[{"id":"1","role":"user","dialogue":"` + strings.Repeat("x", 2048) + `","timestamp":"t"}]`)
	body, ct = multipartBody(t, "over.json", "application/json", over)
	w, _ = s.do(t, http.MethodPost, "/api/v1/dialogues/import", body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Zero(t, s.svc.Len())

	ok := []byte(`[{"id":"1","role":"user","dialogue":"small","timestamp":"t"}]`)
	body, ct = multipartBody(t, "ok.json", "application/json", ok)
	w, _ = s.do(t, http.MethodPost, "/api/v1/dialogues/import", body, ct)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, s.svc.Len())
}

func TestImportRefusesConcurrentUpload(t *testing.T) {
	s := newTestServer(t, nil)
	s.handler.importing.Store(true)

	body, ct := multipartBody(t, "history.json", "application/json", []byte(`[]`))
	w, env := s.do(t, http.MethodPost, "/api/v1/dialogues/import", body, ct)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "info", env.Level)
}

func TestClear(t *testing.T) {
	s := newTestServer(t, nil)

	w, env := s.do(t, http.MethodDelete, "/api/v1/dialogues?confirm=true", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "info", env.Level)
	assert.Equal(t, "没有可以清空的记录", env.Message)

	s.appendJSON(t, "user", "a", "")
	w, _ = s.do(t, http.MethodDelete, "/api/v1/dialogues", nil, "")
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Equal(t, 1, s.svc.Len())

	w, env = s.do(t, http.MethodDelete, "/api/v1/dialogues?confirm=yes", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", env.Level)
	assert.Zero(t, s.svc.Len())
}

func TestNotificationsOverWebsocket(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/notifications/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/api/v1/dialogues", "application/json", strings.NewReader(`{"role":"user","dialogue":"hi"}`))
	require.NoError(t, err)
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var events []map[string]interface{}
	for len(events) < 2 {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev map[string]interface{}
		require.NoError(t, json.Unmarshal(msg, &ev))
		events = append(events, ev)
	}

	assert.Equal(t, "records", events[0]["type"])
	assert.Equal(t, float64(1), events[0]["count"])
	assert.Equal(t, "notification", events[1]["type"])
	assert.Equal(t, "success", events[1]["level"])
}

func TestAuthProtectsAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := service.NewDialogueService(repository.NewMemorySnapshotRepository())
	hub := NewNotificationHub(nil)
	jwtManager := token.NewJWTManager("secret", 1)
	router := NewRouter(RouterOptions{
		Dialogues: NewDialogueHandler(svc, hub, nil, 0),
		Hub:       hub,
		Auth:      middleware.AuthMiddleware(jwtManager, token.ScopeDialogues),
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/dialogues", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tok, err := jwtManager.GenerateToken(token.ScopeDialogues)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dialogues", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/dialogues?token="+tok, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	narrow, err := jwtManager.GenerateToken("metrics")
	require.NoError(t, err)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/dialogues?token="+narrow, nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
