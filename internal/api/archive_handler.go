package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dneimke/simple-coding-sub000/internal/archive"
	apperrors "github.com/dneimke/simple-coding-sub000/internal/errors"
	"github.com/dneimke/simple-coding-sub000/internal/xmlcodec"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// maxImportSize 导入文件大小上限
const maxImportSize = 10 << 20

// ArchiveHandler 比赛归档处理器
type ArchiveHandler struct {
	archive *archive.Archive
	clock   clockwork.Clock
	logger  *zap.Logger
}

// NewArchiveHandler 创建归档处理器
func NewArchiveHandler(arch *archive.Archive, clock clockwork.Clock, logger *zap.Logger) *ArchiveHandler {
	return &ArchiveHandler{archive: arch, clock: clock, logger: logger}
}

// ArchiveListResponse 归档列表响应
type ArchiveListResponse struct {
	Games    []archive.SavedGame `json:"games"`
	MaxGames int                 `json:"maxGames"`
}

// UpdateGameRequest 更新比赛请求，label 为空字符串时清除标签
type UpdateGameRequest struct {
	Label *string `json:"label"`
}

// ImportBatchRequest 批量导入请求
type ImportBatchRequest struct {
	Games   json.RawMessage `json:"games" binding:"required"`
	Replace bool            `json:"replace"`
}

// ImportXMLResponse XML导入响应
type ImportXMLResponse struct {
	Game    archive.SavedGame `json:"game"`
	Dialect string            `json:"dialect"`
}

// ImportBatchResponse 批量导入响应
type ImportBatchResponse struct {
	Imported int `json:"imported"`
}

// List 全部归档比赛，最近完成的在前
// @Summary 归档列表
// @Tags Archive
// @Produce json
// @Success 200 {object} ArchiveListResponse
// @Router /api/v1/archive [get]
func (h *ArchiveHandler) List(c *gin.Context) {
	ok(c, ArchiveListResponse{
		Games:    h.archive.GetAll(c.Request.Context()),
		MaxGames: h.archive.MaxGames(),
	})
}

// Get 获取指定比赛
// @Summary 获取指定比赛
// @Tags Archive
// @Produce json
// @Param index path int true "比赛索引"
// @Success 200 {object} archive.SavedGame
// @Failure 404 {object} apperrors.ErrorResponse
// @Router /api/v1/archive/{index} [get]
func (h *ArchiveHandler) Get(c *gin.Context) {
	index, err := parseIndex(c)
	if err != nil {
		fail(c, err)
		return
	}

	game, found := h.archive.GetByIndex(c.Request.Context(), index)
	if !found {
		fail(c, apperrors.Newf(apperrors.ErrNotFound, "比赛索引 %d", index))
		return
	}
	ok(c, game)
}

// Update 修改比赛标签
// @Summary 修改比赛标签
// @Tags Archive
// @Accept json
// @Produce json
// @Param index path int true "比赛索引"
// @Param request body UpdateGameRequest true "标签"
// @Success 200 {object} archive.SavedGame
// @Failure 404 {object} apperrors.ErrorResponse
// @Router /api/v1/archive/{index} [patch]
func (h *ArchiveHandler) Update(c *gin.Context) {
	index, err := parseIndex(c)
	if err != nil {
		fail(c, err)
		return
	}

	var req UpdateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Label != nil {
		trimmed := strings.TrimSpace(*req.Label)
		req.Label = &trimmed
	}

	ctx := c.Request.Context()
	if err := h.archive.Update(ctx, index, archive.GameUpdate{Label: req.Label}); err != nil {
		fail(c, err)
		return
	}

	game, _ := h.archive.GetByIndex(ctx, index)
	ok(c, game)
}

// Remove 删除比赛
// @Summary 删除比赛
// @Tags Archive
// @Param index path int true "比赛索引"
// @Success 204
// @Failure 404 {object} apperrors.ErrorResponse
// @Router /api/v1/archive/{index} [delete]
func (h *ArchiveHandler) Remove(c *gin.Context) {
	index, err := parseIndex(c)
	if err != nil {
		fail(c, err)
		return
	}

	if err := h.archive.Remove(c.Request.Context(), index); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportXML 以属性方言XML下载比赛
// @Summary 下载比赛XML
// @Tags Archive
// @Produce xml
// @Param index path int true "比赛索引"
// @Success 200 {string} string
// @Failure 404 {object} apperrors.ErrorResponse
// @Router /api/v1/archive/{index}/xml [get]
func (h *ArchiveHandler) ExportXML(c *gin.Context) {
	index, err := parseIndex(c)
	if err != nil {
		fail(c, err)
		return
	}

	game, found := h.archive.GetByIndex(c.Request.Context(), index)
	if !found {
		fail(c, apperrors.Newf(apperrors.ErrNotFound, "比赛索引 %d", index))
		return
	}

	data, err := xmlcodec.EncodeGame(game, index+1)
	if err != nil {
		fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, xmlcodec.FileName(game, index+1)))
	c.Data(http.StatusOK, "application/xml; charset=utf-8", data)
}

// ImportXML 导入XML文件，支持请求体或 multipart 的 file 字段
// @Summary 导入XML
// @Tags Archive
// @Accept xml,mpfd
// @Produce json
// @Param file formData file false "XML文件"
// @Success 201 {object} ImportXMLResponse
// @Failure 422 {object} apperrors.ErrorResponse
// @Failure 507 {object} apperrors.ErrorResponse
// @Router /api/v1/archive/import [post]
func (h *ArchiveHandler) ImportXML(c *gin.Context) {
	data, err := readImportBody(c)
	if err != nil {
		fail(c, err)
		return
	}

	doc, err := xmlcodec.Parse(data)
	if err != nil {
		h.logger.Warn("XML导入失败", zap.Error(err))
		fail(c, err)
		return
	}

	game := doc.Game(h.clock.Now())
	if err := h.archive.Save(c.Request.Context(), game); err != nil {
		fail(c, err)
		return
	}

	h.logger.Info("XML导入成功",
		zap.String("dialect", doc.Dialect),
		zap.Int("events", len(game.Events)))
	created(c, ImportXMLResponse{Game: game, Dialect: doc.Dialect})
}

// ImportBatch 批量导入JSON格式的比赛
// @Summary 批量导入
// @Tags Archive
// @Accept json
// @Produce json
// @Param request body ImportBatchRequest true "比赛列表"
// @Success 200 {object} ImportBatchResponse
// @Failure 422 {object} apperrors.ErrorResponse
// @Router /api/v1/archive/import/batch [post]
func (h *ArchiveHandler) ImportBatch(c *gin.Context) {
	var req ImportBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	candidates, err := archive.DecodeLoose(req.Games)
	if err != nil {
		fail(c, err)
		return
	}

	imported, err := h.archive.ImportMany(c.Request.Context(), candidates, req.Replace)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, ImportBatchResponse{Imported: imported})
}

// Usage 存储使用情况
// @Summary 存储使用情况
// @Tags Archive
// @Produce json
// @Success 200 {object} archive.UsageReport
// @Router /api/v1/archive/usage [get]
func (h *ArchiveHandler) Usage(c *gin.Context) {
	ok(c, h.archive.Usage(c.Request.Context()))
}

// parseIndex 解析路径中的比赛索引
func parseIndex(c *gin.Context) (int, error) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		return 0, apperrors.Newf(apperrors.ErrInvalidParam, "无效的比赛索引: %s", c.Param("index"))
	}
	return index, nil
}

// readImportBody 读取导入内容
func readImportBody(c *gin.Context) ([]byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrInvalidParam, "缺少 file 字段")
		}
		if fh.Size > maxImportSize {
			return nil, apperrors.New(apperrors.ErrInvalidParam, "文件过大")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrInvalidParam)
		}
		defer f.Close()
		return io.ReadAll(f)
	}

	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxImportSize))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidParam, "读取请求体失败")
	}
	return data, nil
}
