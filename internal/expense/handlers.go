package expense

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/expense-tracker/internal/scanning"
)

// maxUploadSize is the largest receipt image accepted by the scan endpoint
const maxUploadSize = 20 << 20

// User-facing messages. Upstream bodies and internal errors are never echoed.
const (
	msgNoFile        = "No file uploaded."
	msgNotConfigured = "Receipt scanning is not configured."
	msgScanFailed    = "Scan failed, please try again."
	msgUnreadable    = "Could not read the receipt, please try again or enter it manually."
	msgTooLarge      = "File is too large. Maximum size is 20MB. Please compress or resize your image."
	msgInternal      = "Internal server error"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// errorResponse maps service and scanning errors onto a status and a safe message
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNoFile), errors.Is(err, scanning.ErrEmptyInput):
		return http.StatusBadRequest, msgNoFile
	case errors.Is(err, scanning.ErrConfiguration):
		return http.StatusServiceUnavailable, msgNotConfigured
	case errors.Is(err, scanning.ErrTransport), errors.Is(err, scanning.ErrUpstream):
		return http.StatusBadGateway, msgScanFailed
	case errors.Is(err, scanning.ErrEmptyUpstreamResult), errors.Is(err, scanning.ErrMalformedExtraction):
		return http.StatusUnprocessableEntity, msgUnreadable
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidCategory):
		return http.StatusBadRequest, validationMessage(err)
	case errors.Is(err, ErrDuplicateCategory):
		return http.StatusConflict, "A category with that name already exists."
	case IsNotFound(err):
		return http.StatusNotFound, "Not found"
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// validationMessage strips the wrapping added on the way up
func validationMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{ErrValidation, ErrInvalidCategory} {
		if i := strings.Index(msg, sentinel.Error()); i >= 0 {
			return msg[i:]
		}
	}
	return msg
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := errorResponse(err)
	if code >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "status", code, "error", err)
	} else {
		slog.Warn("Request rejected", "method", r.Method, "path", r.URL.Path, "status", code, "error", err)
	}
	writeError(w, message, code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// detectContentType falls back to the file extension when the part has no type
func detectContentType(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, msgTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, msgNoFile, http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeError(w, msgTooLarge, http.StatusRequestEntityTooLarge)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := detectContentType(header.Header.Get("Content-Type"), header.Filename)

	scanned, err := s.service.ScanReceipt(r.Context(), header.Filename, data, contentType)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, scanned)
}

// expenseRequest is the JSON body for creating and updating expenses.
// Date accepts YYYY-MM-DD or RFC 3339.
type expenseRequest struct {
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Date            string          `json:"date"`
	CategoryID      string          `json:"category_id"`
	MerchantName    string          `json:"merchant_name"`
	ReceiptFilename string          `json:"receipt_filename"`
	ContentType     string          `json:"content_type"`
	RawText         string          `json:"raw_text"`
}

func (req expenseRequest) input() (ExpenseInput, error) {
	input := ExpenseInput{
		Description:     req.Description,
		Amount:          req.Amount,
		CategoryID:      req.CategoryID,
		MerchantName:    req.MerchantName,
		ReceiptFilename: req.ReceiptFilename,
		ContentType:     req.ContentType,
		RawText:         req.RawText,
	}

	date := strings.TrimSpace(req.Date)
	if date == "" {
		return input, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, date); err == nil {
			input.Date = t
			return input, nil
		}
	}
	return input, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
}

func decodeExpenseRequest(r *http.Request) (ExpenseInput, error) {
	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ExpenseInput{}, fmt.Errorf("%w: invalid request body", ErrValidation)
	}
	return req.input()
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.service.ListExpenses()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	input, err := decodeExpenseRequest(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	expense, err := s.service.CreateExpense(input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := s.service.GetExpense(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	input, err := decodeExpenseRequest(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	expense, err := s.service.UpdateExpense(r.PathValue("id"), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteExpense(r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetExpenseFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetExpenseFile(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.service.ListCategories()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	category, err := s.service.CreateCategory(req.Name, req.Color)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}
