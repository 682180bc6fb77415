package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	imagelabeler "github.com/menta2k/image-labeler"
	"github.com/menta2k/image-labeler/internal/utils"
	"github.com/menta2k/image-labeler/pkg/corpus"
	"github.com/menta2k/image-labeler/pkg/errs"
	"github.com/menta2k/image-labeler/pkg/types"
)

// ExportFilename is the attachment name of GET /api/export
const ExportFilename = "images-and-labels.zip"

// multipartOverhead is allowed on top of the configured upload size
const multipartOverhead = 1 << 20

type Handler struct {
	labeler *imagelabeler.Labeler
	log     *zap.Logger
}

func NewHandler(labeler *imagelabeler.Labeler, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{labeler: labeler, log: log}
}

// S3Enabled reports whether the snapshot route should be mounted
func (h *Handler) S3Enabled() bool { return h.labeler.Publisher != nil }

// JournalEnabled reports whether the runs route should be mounted
func (h *Handler) JournalEnabled() bool { return h.labeler.Config.JournalEnabled() }

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errs.IsValidation(err):
		return http.StatusBadRequest
	case errs.IsNotFound(err), errors.Is(err, corpus.ErrNothingToExport):
		return http.StatusNotFound
	case errs.IsModel(err):
		return http.StatusBadGateway
	case errors.Is(err, imagelabeler.ErrS3Disabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(msg, zap.Int("status", status), zap.Error(err))
	} else {
		h.log.Warn(msg, zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

type uploadResponse struct {
	Success bool `json:"success"`
	*types.PipelineResult
}

func (h *Handler) UploadImage(c *gin.Context) {
	upload := h.labeler.Config.Upload
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, upload.MaxSize+multipartOverhead)

	file, err := c.FormFile("image")
	if err != nil {
		h.fail(c, "failed to get file from form", errs.Validation("image", "no image file uploaded"))
		return
	}

	if file.Size > upload.MaxSize {
		h.fail(c, "upload rejected", errs.Validation("image",
			fmt.Sprintf("file too large (%s, limit %s)", utils.FormatFileSize(file.Size), utils.FormatFileSize(upload.MaxSize))))
		return
	}

	ext := utils.GetFileExtension(file.Filename)
	if !slices.Contains(upload.AllowedExtensions, ext) || !utils.IsImageMIME(file.Header.Get("Content-Type")) {
		h.fail(c, "upload rejected", errs.Validation("image", "only image files are allowed"))
		return
	}

	src, err := file.Open()
	if err != nil {
		h.fail(c, "failed to open upload", err)
		return
	}
	defer src.Close()

	name := utils.GenerateUploadName(file.Filename)
	if _, err := h.labeler.Images.Save(name, src); err != nil {
		h.fail(c, "failed to store upload", err)
		return
	}
	h.log.Info("image uploaded",
		zap.String("image", name),
		zap.String("original", file.Filename),
		zap.Int64("size", file.Size))

	res, err := h.labeler.Pipeline.Run(c.Request.Context(), name)
	if err != nil {
		h.fail(c, "labeling failed", err)
		return
	}
	c.JSON(http.StatusOK, uploadResponse{Success: true, PipelineResult: res})
}

func (h *Handler) ListImages(c *gin.Context) {
	images, err := h.labeler.Corpus.List()
	if err != nil {
		h.fail(c, "failed to list images", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": images})
}

func (h *Handler) GetLabel(c *gin.Context) {
	content, err := h.labeler.Labels.Read(c.Param("filename"))
	if err != nil {
		h.fail(c, "failed to read label", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": content})
}

type translateRequest struct {
	Text string `json:"text"`
}

func (h *Handler) Translate(c *gin.Context) {
	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "invalid translate request", errs.Validation("text", "text to translate is required"))
		return
	}

	res, err := h.labeler.Pipeline.Translate(c.Request.Context(), req.Text)
	if err != nil {
		h.fail(c, "translation failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"original":   res.Original,
		"translated": res.Translated,
	})
}

// Export streams the corpus archive. Once the first byte is written the
// status is committed, so later failures are only logged.
func (h *Handler) Export(c *gin.Context) {
	m, err := h.labeler.Corpus.Snapshot()
	if err != nil {
		h.fail(c, "export failed", err)
		return
	}
	if m.Empty() {
		h.fail(c, "export skipped", corpus.ErrNothingToExport)
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", "attachment; filename="+ExportFilename)
	c.Status(http.StatusOK)
	if err := h.labeler.Corpus.WriteArchive(c.Writer, m); err != nil {
		h.log.Error("export aborted", zap.Error(err))
		c.Abort()
	}
}

func (h *Handler) DeleteImage(c *gin.Context) {
	if err := h.labeler.Corpus.DeleteOne(c.Param("filename")); err != nil {
		h.fail(c, "delete rejected", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type filenamesRequest struct {
	Filenames []string `json:"filenames"`
}

func (h *Handler) DeleteImages(c *gin.Context) {
	var req filenamesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "invalid delete request", errs.Validation("filenames", "must be a non-empty list"))
		return
	}

	res, err := h.labeler.Corpus.DeleteMany(req.Filenames)
	if err != nil {
		h.fail(c, "batch delete rejected", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// LabelImages labels the listed images, or every unlabeled image when the
// body is empty or lists none.
func (h *Handler) LabelImages(c *gin.Context) {
	var req filenamesRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.fail(c, "invalid label request", errs.Validation("filenames", "must be a list of filenames"))
		return
	}

	res, err := h.labeler.Pipeline.RunMany(c.Request.Context(), req.Filenames)
	if err != nil {
		h.fail(c, "batch labeling failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ExportS3(c *gin.Context) {
	snap, err := h.labeler.PublishSnapshot(c.Request.Context())
	if err != nil {
		h.fail(c, "snapshot upload failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "snapshot": snap})
}

func (h *Handler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		h.fail(c, "invalid runs request", errs.Validation("limit", "must be a positive integer"))
		return
	}

	runs, err := h.labeler.Pipeline.Recent(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, "failed to list runs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK", "version": imagelabeler.Version})
}
