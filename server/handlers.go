package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/veritium/corpusqa/ai"
	"github.com/veritium/corpusqa/core"
	"github.com/veritium/corpusqa/parser"
	"github.com/veritium/corpusqa/storage"
)

type queryRequest struct {
	Question      string `json:"question" binding:"required"`
	SessionID     string `json:"session_id"`
	ParentQueryID string `json:"parent_query_id"`
}

type feedbackRequest struct {
	QueryID string `json:"query_id" binding:"required"`
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

type sourceDTO struct {
	SourceNumber    int    `json:"source_number"`
	DocumentID      uint64 `json:"document_id"`
	Title           string `json:"title"`
	FirstChunkIndex int    `json:"first_chunk_index"`
	LastChunkIndex  int    `json:"last_chunk_index"`
	Excerpt         string `json:"excerpt"`
}

type queryResponse struct {
	QueryID        string      `json:"query_id"`
	SessionID      string      `json:"session_id"`
	Answer         string      `json:"answer"`
	Sources        []sourceDTO `json:"sources"`
	NoEvidence     bool        `json:"no_evidence"`
	ResponseTimeMs int64       `json:"response_time_ms"`
}

type documentDTO struct {
	ID        uint64    `json:"id"`
	Title     string    `json:"title"`
	Filename  string    `json:"filename"`
	FileType  string    `json:"file_type"`
	FileSize  int64     `json:"file_size"`
	PageCount int       `json:"page_count"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type historyEntryDTO struct {
	ID             string      `json:"id"`
	SessionID      string      `json:"session_id"`
	Question       string      `json:"question"`
	Answer         string      `json:"answer"`
	Sources        []sourceDTO `json:"sources"`
	Status         string      `json:"status"`
	ResponseTimeMs int64       `json:"response_time_ms"`
	CreatedAt      time.Time   `json:"created_at"`
}

func toSourceDTOs(sources []core.Source) []sourceDTO {
	out := make([]sourceDTO, 0, len(sources))
	for _, s := range sources {
		out = append(out, sourceDTO{
			SourceNumber:    s.SourceNumber,
			DocumentID:      uint64(s.DocumentId),
			Title:           s.Title,
			FirstChunkIndex: s.FirstChunkIndex,
			LastChunkIndex:  s.LastChunkIndex,
			Excerpt:         s.Excerpt,
		})
	}
	return out
}

func toDocumentDTO(doc *core.Document) documentDTO {
	return documentDTO{
		ID:        uint64(doc.Id),
		Title:     doc.Title,
		Filename:  doc.Filename,
		FileType:  doc.FileType,
		FileSize:  doc.FileSize,
		PageCount: doc.PageCount,
		Status:    string(doc.Status),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

// errorStatus maps a classified AI error code to an HTTP status.
func errorStatus(code ai.Code) int {
	switch code {
	case ai.CodeNoAPIKey, ai.CodeInvalidAPIKey:
		return http.StatusUnauthorized
	case ai.CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case ai.CodeNetworkError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_REQUEST", "message": err.Error()}})
		return
	}

	resp, err := s.engine.Answer(c.Request.Context(), req.Question, req.SessionID, req.ParentQueryID)
	if err != nil {
		if errors.Is(err, core.ErrEmptyQuestion) {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_REQUEST", "message": err.Error()}})
			return
		}
		code := ai.Classify(err)
		c.JSON(errorStatus(code), gin.H{"error": gin.H{"code": string(code), "message": err.Error()}})
		return
	}

	c.JSON(http.StatusOK, queryResponse{
		QueryID:        resp.QueryId,
		SessionID:      resp.SessionId,
		Answer:         resp.Answer,
		Sources:        toSourceDTOs(resp.Sources),
		NoEvidence:     resp.NoEvidence,
		ResponseTimeMs: resp.ResponseTimeMs,
	})
}

func (s *Server) handleQueryFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_REQUEST", "message": err.Error()}})
		return
	}
	if req.Rating != 1 && req.Rating != -1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_REQUEST", "message": core.ErrInvalidRating.Error()}})
		return
	}

	err := s.queryLog.SetQueryFeedback(c.Request.Context(), &core.QueryFeedback{
		QueryId: req.QueryID,
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "query not found"}})
			return
		}
		if errors.Is(err, storage.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_REQUEST", "message": err.Error()}})
			return
		}
		s.logger.Error("failed to store feedback", "query_id", req.QueryID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "STORAGE_ERROR", "message": "failed to store feedback"}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"recorded": true})
}

func (s *Server) handleQueryHistory(c *gin.Context) {
	limit := s.historyLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= s.historyLimit {
			limit = n
		}
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			offset = n
		}
	}

	records, err := s.queryLog.GetRecentQueryRecords(c.Request.Context(), limit, offset)
	if err != nil {
		s.logger.Error("failed to load query history", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "STORAGE_ERROR", "message": "failed to load history"}})
		return
	}

	entries := make([]historyEntryDTO, 0, len(records))
	for _, record := range records {
		entries = append(entries, historyEntryDTO{
			ID:             record.Id,
			SessionID:      record.SessionId,
			Question:       record.Question,
			Answer:         record.Answer,
			Sources:        toSourceDTOs(record.Sources),
			Status:         string(record.Status),
			ResponseTimeMs: record.ResponseTimeMs,
			CreatedAt:      record.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"queries": entries, "limit": limit, "offset": offset})
}

func (s *Server) handleListDocuments(c *gin.Context) {
	docs, err := s.documents.ListDocuments(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list documents", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "STORAGE_ERROR", "message": "failed to list documents"}})
		return
	}

	out := make([]documentDTO, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDocumentDTO(doc))
	}
	c.JSON(http.StatusOK, gin.H{"documents": out})
}

func (s *Server) handleDocumentStats(c *gin.Context) {
	ctx := c.Request.Context()

	docs, err := s.documents.ListDocuments(ctx)
	if err != nil {
		s.logger.Error("failed to load document stats", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "STORAGE_ERROR", "message": "failed to load stats"}})
		return
	}

	byStatus := map[string]int{}
	var pages int
	for _, doc := range docs {
		byStatus[string(doc.Status)]++
		pages += doc.PageCount
	}

	c.JSON(http.StatusOK, gin.H{
		"total_documents": len(docs),
		"by_status":       byStatus,
		"total_pages":     pages,
	})
}

func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_REQUEST", "message": "file field is required"}})
		return
	}
	if fileHeader.Size > s.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": gin.H{"code": "FILE_TOO_LARGE", "message": "file exceeds the upload limit"}})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_REQUEST", "message": "could not read file"}})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_REQUEST", "message": "could not read file"}})
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	result, err := s.extractor.Parse(c.Request.Context(), data, fileHeader.Filename, mimeType)
	if err != nil {
		status := http.StatusUnprocessableEntity
		code := "PARSE_FAILED"
		switch {
		case errors.Is(err, parser.ErrNoExtractableText):
			code = "NO_EXTRACTABLE_TEXT"
		case errors.Is(err, parser.ErrUnsupportedFileType):
			code = "UNSUPPORTED_FILE_TYPE"
			status = http.StatusUnsupportedMediaType
		}
		c.JSON(status, gin.H{"error": gin.H{"code": code, "message": err.Error()}})
		return
	}

	title := c.PostForm("title")
	if title == "" {
		title = fileHeader.Filename
	}

	doc, err := s.documents.AddDocument(c.Request.Context(), &core.Document{
		Title:     title,
		Filename:  fileHeader.Filename,
		FileType:  mimeType,
		FileSize:  fileHeader.Size,
		PageCount: result.Pages,
		Status:    core.DocumentStatusProcessing,
	})
	if err != nil {
		s.logger.Error("failed to create document", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "STORAGE_ERROR", "message": "failed to create document"}})
		return
	}

	if err := s.pipeline.Submit(c.Request.Context(), doc.Id, doc.Title, result.Text); err != nil {
		// Nothing was scheduled; reflect the failure on the record.
		if statusErr := s.documents.SetDocumentStatus(c.Request.Context(), doc.Id, core.DocumentStatusFailed); statusErr != nil {
			s.logger.Error("failed to mark document failed", "document_id", doc.Id, "err", statusErr)
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": gin.H{"code": "NO_EXTRACTABLE_TEXT", "message": err.Error()}})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"document": toDocumentDTO(doc)})
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "INVALID_REQUEST", "message": "invalid document id"}})
		return
	}
	docID := core.ID(id)
	ctx := c.Request.Context()

	if _, err := s.documents.GetDocument(ctx, docID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "document not found"}})
			return
		}
		s.logger.Error("failed to load document", "document_id", docID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "STORAGE_ERROR", "message": "failed to load document"}})
		return
	}

	// Cascade: vector records, chunks, then the document record itself.
	if err := s.index.DeleteByDocument(ctx, docID); err != nil {
		s.logger.Error("failed to delete vector records", "document_id", docID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "STORAGE_ERROR", "message": "failed to delete document"}})
		return
	}
	if err := s.chunks.DeleteChunksByDocument(ctx, docID); err != nil {
		s.logger.Error("failed to delete chunks", "document_id", docID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "STORAGE_ERROR", "message": "failed to delete document"}})
		return
	}
	if err := s.documents.DeleteDocument(ctx, docID); err != nil {
		s.logger.Error("failed to delete document record", "document_id", docID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": "STORAGE_ERROR", "message": "failed to delete document"}})
		return
	}

	if s.cache != nil {
		s.cache.BumpVersion()
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
