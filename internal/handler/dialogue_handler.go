package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jiyuchen1/AiHistory/internal/model"
	"github.com/jiyuchen1/AiHistory/internal/service"
	"github.com/jiyuchen1/AiHistory/pkg/log"
)

// importFormOverhead 是 multipart 边界与表单头部预留的字节数。
const importFormOverhead = 64 << 10

// ExportArchiver 在导出时额外保存一份快照，例如上传到对象存储。
type ExportArchiver interface {
	Archive(ctx context.Context, name string, data []byte) (string, error)
}

// DialogueHandler 处理对话记录相关的 API 请求。
type DialogueHandler struct {
	service        service.DialogueService
	hub            *NotificationHub
	archiver       ExportArchiver
	maxImportBytes int64
	importing      atomic.Bool
	now            func() time.Time
}

// NewDialogueHandler 创建一个新的 DialogueHandler。archiver 为 nil 时不做导出归档。
func NewDialogueHandler(svc service.DialogueService, hub *NotificationHub, archiver ExportArchiver, maxImportBytes int64) *DialogueHandler {
	return &DialogueHandler{
		service:        svc,
		hub:            hub,
		archiver:       archiver,
		maxImportBytes: maxImportBytes,
		now:            time.Now,
	}
}

// AppendRequest 定义了追加记录 API 的请求体结构。
type AppendRequest struct {
	Role     string `json:"role" binding:"required"`
	Dialogue string `json:"dialogue"`
	Think    string `json:"think"`
}

// List 返回当前全部记录。
func (h *DialogueHandler) List(c *gin.Context) {
	records := h.service.Records()
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"level":   service.LevelSuccess,
		"message": "success",
		"data":    records,
	})
}

// Append 处理追加一条记录的请求。
func (h *DialogueHandler) Append(c *gin.Context) {
	var req AppendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.reply(c, http.StatusBadRequest, service.LevelError, "无效的请求负载", nil)
		return
	}
	role, ok := model.ParseRole(req.Role)
	if !ok {
		h.reply(c, http.StatusBadRequest, service.LevelError, fmt.Sprintf("未知的角色: %s", req.Role), nil)
		return
	}

	rec, err := h.service.Append(c.Request.Context(), role, req.Dialogue, req.Think)
	if err != nil && service.Classify(err) != service.LevelWarning {
		h.fail(c, err)
		return
	}
	h.changed()
	status := http.StatusCreated
	if err != nil {
		status = http.StatusOK
	}
	h.reply(c, status, service.Classify(err), describe(err, "记录已保存"), rec)
}

// Delete 处理删除单条记录的请求。调用方必须带上 confirm=true 表示用户已确认。
func (h *DialogueHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	confirmed := queryConfirmed(c)
	err := h.service.Delete(c.Request.Context(), id, func(model.TurnRecord) bool { return confirmed })
	if err != nil && service.Classify(err) != service.LevelWarning {
		h.fail(c, err)
		return
	}
	h.changed()
	h.reply(c, http.StatusOK, service.Classify(err), describe(err, "记录已删除"), gin.H{"id": id})
}

// Clear 处理清空全部记录的请求。调用方必须带上 confirm=true。
func (h *DialogueHandler) Clear(c *gin.Context) {
	confirmed := queryConfirmed(c)
	err := h.service.Clear(c.Request.Context(), func() bool { return confirmed })
	if err != nil && service.Classify(err) != service.LevelWarning {
		h.fail(c, err)
		return
	}
	h.changed()
	h.reply(c, http.StatusOK, service.Classify(err), describe(err, "已清空全部记录"), nil)
}

// Export 以附件形式返回当前快照，文件名中带有当天日期。
func (h *DialogueHandler) Export(c *gin.Context) {
	data, err := h.service.ExportSnapshot(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	filename := service.ExportFilename(h.now())

	level, message := service.LevelSuccess, "导出成功"
	if h.archiver != nil {
		if object, aerr := h.archiver.Archive(c.Request.Context(), filename, data); aerr != nil {
			log.Warnf("导出归档失败: %v", aerr)
			level, message = service.LevelWarning, "导出成功，但归档到对象存储失败"
		} else {
			log.Infof("导出已归档: %s", object)
		}
	}
	h.hub.Notify(level, message)

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// Import 处理上传导入文件的请求。同一时间只允许一个导入在进行。
func (h *DialogueHandler) Import(c *gin.Context) {
	if !h.importing.CompareAndSwap(false, true) {
		h.reply(c, http.StatusConflict, service.LevelInfo, "已有导入正在进行，请稍后再试", nil)
		return
	}
	defer h.importing.Store(false)

	if h.maxImportBytes > 0 {
		// 在解析表单之前限制请求体，超大的上传不会落到临时文件
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImportBytes+importFormOverhead)
	}
	fileHeader, err := c.FormFile("file")
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.reply(c, http.StatusRequestEntityTooLarge, service.LevelError, "导入文件过大", nil)
		return
	}
	if err != nil {
		h.reply(c, http.StatusBadRequest, service.LevelError, "请选择要导入的文件", nil)
		return
	}
	if !isJSONUpload(fileHeader.Filename, fileHeader.Header.Get("Content-Type")) {
		h.reply(c, http.StatusUnsupportedMediaType, service.LevelError, "只能导入 JSON 文件", nil)
		return
	}
	if h.maxImportBytes > 0 && fileHeader.Size > h.maxImportBytes {
		h.reply(c, http.StatusRequestEntityTooLarge, service.LevelError, "导入文件过大", nil)
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		log.Error("打开导入文件失败", err)
		h.reply(c, http.StatusInternalServerError, service.LevelError, "读取导入文件失败", nil)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		log.Error("读取导入文件失败", err)
		h.reply(c, http.StatusInternalServerError, service.LevelError, "读取导入文件失败", nil)
		return
	}

	n, err := h.service.ImportBatch(c.Request.Context(), data)
	if err != nil && service.Classify(err) != service.LevelWarning {
		h.fail(c, err)
		return
	}
	h.changed()
	h.reply(c, http.StatusOK, service.Classify(err), describe(err, fmt.Sprintf("成功导入 %d 条记录", n)), gin.H{"imported": n})
}

func (h *DialogueHandler) changed() {
	h.hub.RecordsChanged(h.service.Len())
}

// fail 把非成功的结果转换为响应。提示类结果不是故障，但依然用对应的状态码表达。
func (h *DialogueHandler) fail(c *gin.Context, err error) {
	level := service.Classify(err)
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("对话存储操作失败", err)
	}
	h.reply(c, status, level, describe(err, ""), nil)
}

func (h *DialogueHandler) reply(c *gin.Context, status int, level service.Level, message string, data interface{}) {
	h.hub.Notify(level, message)
	c.JSON(status, gin.H{
		"code":    status,
		"level":   level,
		"message": message,
		"data":    data,
	})
}

func statusFor(err error) int {
	var verr *service.ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr),
		errors.Is(err, service.ErrEmptyDialogue),
		errors.Is(err, service.ErrInvalidRole):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrNothingToExport):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotConfirmed):
		return http.StatusPreconditionFailed
	case errors.Is(err, service.ErrNothingToClear), errors.Is(err, service.ErrNothingNew):
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

// describe 返回面向用户的提示文本。内部错误不向客户端暴露细节。
func describe(err error, success string) string {
	if service.Classify(err) == service.LevelError && statusFor(err) == http.StatusInternalServerError {
		return "服务器内部错误"
	}
	return service.Describe(err, success)
}

func queryConfirmed(c *gin.Context) bool {
	v := strings.ToLower(c.Query("confirm"))
	return v == "true" || v == "1" || v == "yes"
}

// isJSONUpload 在解析之前根据文件名或声明的媒体类型拒绝非 JSON 文件。
func isJSONUpload(filename, contentType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}
