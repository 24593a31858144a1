package expense

import (
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		db, err = NewBoltDB(filepath.Join(tmpDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("expenses", func() {
		var expense *Expense

		BeforeEach(func() {
			expense = &Expense{
				ID:          "test-id",
				Description: "Lunch",
				Amount:      decimal.RequireFromString("18.75"),
				Date:        time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
				CategoryID:  "cat-1",
				CreatedAt:   time.Now(),
				UpdatedAt:   time.Now(),
			}
			Expect(db.SaveExpense(expense)).To(Succeed())
		})

		It("should round trip an expense", func() {
			saved, err := db.GetExpense("test-id")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Description).To(Equal("Lunch"))
			Expect(saved.Amount.Equal(expense.Amount)).To(BeTrue())
			Expect(saved.Date.Equal(expense.Date)).To(BeTrue())
		})

		It("should replace an expense with the same ID", func() {
			expense.Description = "Dinner"
			Expect(db.SaveExpense(expense)).To(Succeed())

			expenses, err := db.ListExpenses()
			Expect(err).NotTo(HaveOccurred())
			Expect(expenses).To(HaveLen(1))
			Expect(expenses[0].Description).To(Equal("Dinner"))
		})

		It("returns ErrNotFound for an unknown ID", func() {
			_, err := db.GetExpense("nonexistent")
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("should delete an expense", func() {
			Expect(db.DeleteExpense("test-id")).To(Succeed())
			_, err := db.GetExpense("test-id")
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("returns ErrNotFound when deleting an unknown ID", func() {
			Expect(db.DeleteExpense("nonexistent")).To(MatchError(ErrNotFound))
		})
	})

	Describe("categories", func() {
		It("should start empty", func() {
			categories, err := db.ListCategories()
			Expect(err).NotTo(HaveOccurred())
			Expect(categories).To(BeEmpty())
			Expect(categories).NotTo(BeNil())
		})

		It("should save and list categories", func() {
			Expect(db.SaveCategory(&Category{ID: "a", Name: "Food & Dining", Color: "#FF6B6B"})).To(Succeed())
			Expect(db.SaveCategory(&Category{ID: "b", Name: "Other", Position: 1})).To(Succeed())

			categories, err := db.ListCategories()
			Expect(err).NotTo(HaveOccurred())
			Expect(categories).To(HaveLen(2))
		})
	})

	It("should keep data across reopen", func() {
		Expect(db.SaveCategory(&Category{ID: "a", Name: "Other"})).To(Succeed())
		Expect(db.Close()).To(Succeed())

		var err error
		db, err = NewBoltDB(filepath.Join(tmpDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())

		categories, err := db.ListCategories()
		Expect(err).NotTo(HaveOccurred())
		Expect(categories).To(HaveLen(1))
	})
})
