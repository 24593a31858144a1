package expense

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	expenseBucketName  = "expenses"
	categoryBucketName = "categories"
)

// DB defines the interface for database operations
type DB interface {
	// SaveExpense creates or replaces an expense
	SaveExpense(expense *Expense) error

	// GetExpense retrieves an expense by ID
	GetExpense(id string) (*Expense, error)

	// ListExpenses returns all expenses
	ListExpenses() ([]*Expense, error)

	// DeleteExpense removes an expense from the database
	DeleteExpense(id string) error

	// SaveCategory creates or replaces a category
	SaveCategory(category *Category) error

	// ListCategories returns all categories
	ListCategories() ([]*Category, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{expenseBucketName, categoryBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func (b *BoltDB) SaveExpense(expense *Expense) error {
	return put(b.db, expenseBucketName, expense.ID, expense)
}

func (b *BoltDB) GetExpense(id string) (*Expense, error) {
	var expense *Expense
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(expenseBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("expense %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &expense)
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

func (b *BoltDB) ListExpenses() ([]*Expense, error) {
	return list[Expense](b.db, expenseBucketName)
}

// DeleteExpense returns ErrNotFound if the expense does not exist
func (b *BoltDB) DeleteExpense(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expenseBucketName))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("expense %s: %w", id, ErrNotFound)
		}
		return bucket.Delete([]byte(id))
	})
}

func (b *BoltDB) SaveCategory(category *Category) error {
	return put(b.db, categoryBucketName, category.ID, category)
}

func (b *BoltDB) ListCategories() ([]*Category, error) {
	return list[Category](b.db, categoryBucketName)
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func put(db *bbolt.DB, bucketName, key string, v any) error {
	return db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", bucketName, err)
		}
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), data)
	})
}

func list[T any](db *bbolt.DB, bucketName string) ([]*T, error) {
	items := make([]*T, 0)
	err := db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var item T
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling %s: %w", bucketName, err)
			}
			items = append(items, &item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
