package handler

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"docqa/internal/embedding"
	"docqa/internal/extract"
	"docqa/internal/models"
	"docqa/internal/session"
	"docqa/internal/synth"
	"docqa/internal/transport/http/response"
)

// sourcePreviewLen bounds the passage text echoed back in ask responses.
const sourcePreviewLen = 200

type DocQAHandler struct {
	session   *session.Session
	maxUpload int64
}

type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

func NewDocQAHandler(sess *session.Session, maxUpload int64) *DocQAHandler {
	return &DocQAHandler{session: sess, maxUpload: maxUpload}
}

// Upload accepts a multipart form with "file", extracts its text and
// replaces the active document.
func (h *DocQAHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > h.maxUpload {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large")
		return
	}
	if !extract.Supported(file.Filename) {
		response.Error(c, http.StatusUnsupportedMediaType, response.CodeUnsupportedFormat,
			"unsupported file format "+filepath.Ext(file.Filename))
		return
	}

	path, cleanup, err := saveTemp(file.Filename, func(dst io.Writer) error {
		src, err := file.Open()
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(dst, src)
		return err
	})
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to store upload")
		return
	}
	defer cleanup()

	pages, err := extract.File(path)
	if err != nil {
		switch {
		case errors.Is(err, extract.ErrEmptyInput):
			response.Error(c, http.StatusBadRequest, response.CodeEmptyDocument, "document contains no extractable text")
		case errors.Is(err, extract.ErrUnsupportedFormat):
			response.Error(c, http.StatusUnsupportedMediaType, response.CodeUnsupportedFormat, err.Error())
		default:
			log.Error().Err(err).Str("filename", file.Filename).Msg("text extraction failed")
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to extract text from document")
		}
		return
	}

	result, err := h.session.Upload(c.Request.Context(), session.UploadInput{
		Filename: file.Filename,
		Pages:    pages,
	})
	if err != nil {
		writeIndexError(c, err)
		return
	}
	response.OK(c, result)
}

// Ask answers a question against the active document.
func (h *DocQAHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.session.Ask(c.Request.Context(), req.Question)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNoDocument):
			response.Error(c, http.StatusBadRequest, response.CodeNoDocument, "no document uploaded")
		case errors.Is(err, session.ErrEmptyQuestion):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "question must not be empty")
		case errors.Is(err, embedding.ErrGatewayTimeout):
			response.Error(c, http.StatusGatewayTimeout, response.CodeTimeout, "embedding provider timed out")
		case errors.Is(err, embedding.ErrEmbedding):
			response.Error(c, http.StatusBadGateway, response.CodeUpstream, "embedding provider failed")
		case errors.Is(err, synth.ErrSynthesis):
			response.Error(c, http.StatusBadGateway, response.CodeUpstream, "answer generation failed")
		default:
			log.Error().Err(err).Msg("ask failed")
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ask failed")
		}
		return
	}

	response.OK(c, gin.H{
		"question": req.Question,
		"answer":   result.Answer,
		"sources":  previewSources(result.Sources),
	})
}

// Reset discards the active document. Safe to call when none exists.
func (h *DocQAHandler) Reset(c *gin.Context) {
	h.session.Reset()
	response.OK(c, gin.H{"state": h.session.State().String()})
}

func writeIndexError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, embedding.ErrGatewayTimeout):
		response.Error(c, http.StatusGatewayTimeout, response.CodeTimeout, "embedding provider timed out")
	case errors.Is(err, embedding.ErrEmbedding):
		response.Error(c, http.StatusBadGateway, response.CodeUpstream, "embedding provider failed")
	default:
		log.Error().Err(err).Msg("indexing failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "indexing failed")
	}
}

func previewSources(sources []models.Source) []models.Source {
	for i, src := range sources {
		if len(src.Content) > sourcePreviewLen {
			sources[i].Content = strings.TrimSpace(src.Content[:sourcePreviewLen]) + "..."
		}
	}
	return sources
}

// saveTemp writes the upload to a temp file keeping the original
// extension, which the extractor dispatches on.
func saveTemp(filename string, write func(io.Writer) error) (string, func(), error) {
	tmp, err := os.CreateTemp("", "docqa-*"+filepath.Ext(filename))
	if err != nil {
		return "", nil, err
	}
	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}
