package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/expense-tracker/internal/scanning"
)

// IDGenerator generates unique IDs for expenses, categories and stored files
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles expense, category and receipt scanning operations
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource

	// seedMu serializes the first-use seeding of default categories
	seedMu sync.Mutex
}

// NewService creates a new Service. A nil scanner disables receipt scanning.
func NewService(db DB, scanner scanning.Scanner, storage Storage) *Service {
	return NewServiceWithDeps(db, scanner, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	filenameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	filenameSpaces = regexp.MustCompile(`\s+`)
)

// sanitizeFilename shortens phone-generated names and strips special characters
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if filenameUnsafe.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = filenameUnsafe.ReplaceAllString(base, "")
	base = filenameSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	const maxLen = 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// ScanReceipt stores the uploaded image and extracts a draft expense from it.
// The stored image is removed again if extraction fails.
func (s *Service) ScanReceipt(ctx context.Context, filename string, data []byte, contentType string) (*ScannedReceipt, error) {
	if len(data) == 0 {
		return nil, ErrNoFile
	}
	if s.scanner == nil {
		return nil, &scanning.ConfigError{Field: "api key"}
	}

	categories, err := s.ListCategories()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}

	savedName, err := s.storage.Save(fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	draft, err := s.scanner.Extract(ctx, data, contentType, names)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		if delErr := s.storage.Delete(savedName); delErr != nil {
			slog.Warn("Failed to delete file", "filename", savedName, "error", delErr)
		}
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}

	scanned := &ScannedReceipt{
		ReceiptDraft: *draft,
		Filename:     savedName,
		ContentType:  contentType,
	}
	if draft.SuggestedCategoryName != nil {
		for _, c := range categories {
			if c.Name == *draft.SuggestedCategoryName {
				scanned.SuggestedCategoryID = c.ID
				break
			}
		}
	}
	return scanned, nil
}

// CreateExpense validates input and saves a new expense
func (s *Service) CreateExpense(input ExpenseInput) (*Expense, error) {
	if err := s.validate(&input); err != nil {
		return nil, err
	}
	if err := s.checkReceiptUnclaimed(input.ReceiptFilename, ""); err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	expense := &Expense{
		ID:        s.idGenerator.Generate(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	expense.apply(input)

	if err := s.db.SaveExpense(expense); err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}
	return expense, nil
}

// UpdateExpense replaces the editable fields of an existing expense. An empty
// receipt filename keeps the stored image.
func (s *Service) UpdateExpense(id string, input ExpenseInput) (*Expense, error) {
	expense, err := s.GetExpense(id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(&input); err != nil {
		return nil, err
	}

	if input.ReceiptFilename == "" {
		input.ReceiptFilename = expense.ReceiptFilename
		input.ContentType = expense.ContentType
	} else if input.ReceiptFilename != expense.ReceiptFilename {
		if err := s.checkReceiptUnclaimed(input.ReceiptFilename, expense.ID); err != nil {
			return nil, err
		}
	}
	if input.RawText == "" {
		input.RawText = expense.RawText
	}
	expense.apply(input)
	expense.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveExpense(expense); err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}
	return expense, nil
}

// checkReceiptUnclaimed rejects a receipt image already attached to another
// expense, since deleting that expense removes the file.
func (s *Service) checkReceiptUnclaimed(filename, selfID string) error {
	if filename == "" {
		return nil
	}
	expenses, err := s.db.ListExpenses()
	if err != nil {
		return fmt.Errorf("listing expenses: %w", err)
	}
	for _, e := range expenses {
		if e.ID != selfID && e.ReceiptFilename == filename {
			return fmt.Errorf("%w: receipt is attached to another expense", ErrValidation)
		}
	}
	return nil
}

func (e *Expense) apply(input ExpenseInput) {
	e.Description = input.Description
	e.Amount = input.Amount
	e.Date = input.Date
	e.CategoryID = input.CategoryID
	e.MerchantName = input.MerchantName
	e.ReceiptFilename = input.ReceiptFilename
	e.ContentType = input.ContentType
	e.RawText = input.RawText
}

// validate trims input in place and checks it
func (s *Service) validate(input *ExpenseInput) error {
	input.Description = strings.TrimSpace(input.Description)
	input.MerchantName = strings.TrimSpace(input.MerchantName)

	switch {
	case input.Description == "":
		return fmt.Errorf("%w: description is required", ErrValidation)
	case !input.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	case input.Date.IsZero():
		return fmt.Errorf("%w: date is required", ErrValidation)
	}

	categories, err := s.ListCategories()
	if err != nil {
		return err
	}
	for _, c := range categories {
		if c.ID == input.CategoryID {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidCategory, input.CategoryID)
}

// GetExpense retrieves an expense by ID
func (s *Service) GetExpense(id string) (*Expense, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	return expense, nil
}

// ListExpenses returns all expenses, newest first
func (s *Service) ListExpenses() ([]*Expense, error) {
	expenses, err := s.db.ListExpenses()
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	sort.SliceStable(expenses, func(i, j int) bool {
		if !expenses[i].Date.Equal(expenses[j].Date) {
			return expenses[i].Date.After(expenses[j].Date)
		}
		return expenses[i].CreatedAt.After(expenses[j].CreatedAt)
	})
	return expenses, nil
}

// DeleteExpense removes an expense and its receipt image
func (s *Service) DeleteExpense(id string) error {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return fmt.Errorf("getting expense for deletion: %w", err)
	}

	if expense.ReceiptFilename != "" {
		if err := s.storage.Delete(expense.ReceiptFilename); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete file", "filename", expense.ReceiptFilename, "error", err)
		}
	}

	if err := s.db.DeleteExpense(id); err != nil {
		return fmt.Errorf("deleting expense from database: %w", err)
	}
	return nil
}

// GetExpenseFile retrieves the receipt image for an expense
func (s *Service) GetExpenseFile(id string) ([]byte, string, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting expense: %w", err)
	}
	if expense.ReceiptFilename == "" {
		return nil, "", fmt.Errorf("expense %s has no receipt: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(expense.ReceiptFilename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	contentType := expense.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// ListCategories returns categories in display order, creating the defaults
// the first time it is called on an empty database.
func (s *Service) ListCategories() ([]*Category, error) {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()

	categories, err := s.db.ListCategories()
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}

	if len(categories) == 0 {
		categories, err = s.seedCategories()
		if err != nil {
			return nil, err
		}
	}

	sortCategories(categories)
	return categories, nil
}

func (s *Service) seedCategories() ([]*Category, error) {
	now := s.timeSource.Now()
	categories := make([]*Category, 0, len(defaultCategories))
	for i, d := range defaultCategories {
		category := &Category{
			ID:        s.idGenerator.Generate(),
			Name:      d.name,
			Color:     d.color,
			Position:  i,
			CreatedAt: now,
		}
		if err := s.db.SaveCategory(category); err != nil {
			return nil, fmt.Errorf("seeding category %q: %w", d.name, err)
		}
		categories = append(categories, category)
	}
	slog.Info("Seeded default categories", "count", len(categories))
	return categories, nil
}

// CreateCategory adds a category at the end of the list. Names are unique
// ignoring case.
func (s *Service) CreateCategory(name, color string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	color = strings.TrimSpace(color)
	if color == "" {
		color = DefaultColor
	}

	categories, err := s.ListCategories()
	if err != nil {
		return nil, err
	}

	position := 0
	for _, c := range categories {
		if strings.EqualFold(c.Name, name) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCategory, c.Name)
		}
		if c.Position >= position {
			position = c.Position + 1
		}
	}

	category := &Category{
		ID:        s.idGenerator.Generate(),
		Name:      name,
		Color:     color,
		Position:  position,
		CreatedAt: s.timeSource.Now(),
	}
	if err := s.db.SaveCategory(category); err != nil {
		return nil, fmt.Errorf("saving category: %w", err)
	}
	return category, nil
}

func sortCategories(categories []*Category) {
	sort.SliceStable(categories, func(i, j int) bool {
		if categories[i].Position != categories[j].Position {
			return categories[i].Position < categories[j].Position
		}
		return categories[i].Name < categories[j].Name
	})
}

// IsNotFound reports whether err means the requested record does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
