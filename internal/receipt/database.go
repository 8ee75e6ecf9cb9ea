package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	receiptBucket = "receipts"
	expenseBucket = "expenses"
)

// ErrNotFound is returned when a receipt or expense does not exist
var ErrNotFound = errors.New("not found")

// DB defines the interface for database operations
type DB interface {
	// SaveReceipt creates or replaces a receipt
	SaveReceipt(receipt *Receipt) error

	// GetReceipt retrieves a receipt by ID
	GetReceipt(id string) (*Receipt, error)

	// ListReceipts returns all receipts
	ListReceipts() ([]*Receipt, error)

	// DeleteReceipt removes a receipt from the database, failing with
	// ErrConflict if an expense has claimed it
	DeleteReceipt(id string) error

	// SaveExpense creates or replaces an expense
	SaveExpense(expense *Expense) error

	// SaveExpenseWithReceipts saves an expense and its updated receipts in
	// one transaction, failing with ErrConflict if another expense claimed
	// any of the receipts first
	SaveExpenseWithReceipts(expense *Expense, receipts []*Receipt) error

	// GetExpense retrieves an expense by ID
	GetExpense(id string) (*Expense, error)

	// ListExpenses returns all expenses
	ListExpenses() ([]*Expense, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using bbolt
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens (or creates) the database file and its buckets
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{receiptBucket, expenseBucket} {
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

func putJSON(tx *bbolt.Tx, bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
}

func getJSON[T any](db *bbolt.DB, bucket, key string) (*T, error) {
	var v *T
	err := db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s %s: %w", bucket, key, ErrNotFound)
		}
		return json.Unmarshal(data, &v)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func listJSON[T any](db *bbolt.DB, bucket string) ([]*T, error) {
	items := make([]*T, 0)
	err := db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).ForEach(func(k, data []byte) error {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return fmt.Errorf("unmarshaling %s: %w", k, err)
			}
			items = append(items, &v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// SaveReceipt saves a receipt to the database
func (b *BoltDB) SaveReceipt(receipt *Receipt) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx, receiptBucket, receipt.ID, receipt)
	})
}

// GetReceipt retrieves a receipt by ID
func (b *BoltDB) GetReceipt(id string) (*Receipt, error) {
	return getJSON[Receipt](b.db, receiptBucket, id)
}

// ListReceipts returns all receipts in key order
func (b *BoltDB) ListReceipts() ([]*Receipt, error) {
	return listJSON[Receipt](b.db, receiptBucket)
}

// DeleteReceipt removes a receipt from the database. A receipt claimed by
// an expense is left in place and ErrConflict is returned.
func (b *BoltDB) DeleteReceipt(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		stored, err := txReceipt(tx, id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if stored.ExpenseID != "" {
			return fmt.Errorf("%w: receipt %s belongs to expense %s", ErrConflict, id, stored.ExpenseID)
		}
		return tx.Bucket([]byte(receiptBucket)).Delete([]byte(id))
	})
}

func txReceipt(tx *bbolt.Tx, id string) (*Receipt, error) {
	data := tx.Bucket([]byte(receiptBucket)).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%s %s: %w", receiptBucket, id, ErrNotFound)
	}
	var receipt Receipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil, fmt.Errorf("unmarshaling %s: %w", id, err)
	}
	return &receipt, nil
}

// SaveExpense saves an expense to the database
func (b *BoltDB) SaveExpense(expense *Expense) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx, expenseBucket, expense.ID, expense)
	})
}

// SaveExpenseWithReceipts saves an expense and the receipts it claims
// atomically, so a receipt is never left pointing at a missing expense.
// Every receipt is re-read inside the transaction; one that was deleted or
// claimed by another expense since it was loaded aborts the save.
func (b *BoltDB) SaveExpenseWithReceipts(expense *Expense, receipts []*Receipt) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, receipt := range receipts {
			stored, err := txReceipt(tx, receipt.ID)
			if err != nil {
				return err
			}
			if stored.ExpenseID != "" && stored.ExpenseID != expense.ID {
				return fmt.Errorf("%w: receipt %s already belongs to expense %s", ErrConflict, receipt.ID, stored.ExpenseID)
			}
		}

		if err := putJSON(tx, expenseBucket, expense.ID, expense); err != nil {
			return err
		}
		for _, receipt := range receipts {
			if err := putJSON(tx, receiptBucket, receipt.ID, receipt); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetExpense retrieves an expense by ID
func (b *BoltDB) GetExpense(id string) (*Expense, error) {
	return getJSON[Expense](b.db, expenseBucket, id)
}

// ListExpenses returns all expenses in key order
func (b *BoltDB) ListExpenses() ([]*Expense, error) {
	return listJSON[Expense](b.db, expenseBucket)
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
