package receipt

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Expenses", func() {
	var (
		db      *mockDB
		idGen   *sequenceIDGenerator
		timeSrc *mockTimeSource
		service *Service
		now     time.Time
	)

	BeforeEach(func() {
		db = newMockDB()
		idGen = &sequenceIDGenerator{}
		now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		timeSrc = &mockTimeSource{now: now}

		db.receipts["r1"] = &Receipt{ID: "r1", Title: "Dinner", Amount: 1000}
		db.receipts["r2"] = &Receipt{ID: "r2", Title: "Drinks", Amount: 1001}
	})

	JustBeforeEach(func() {
		service = NewServiceWithDeps(db, newMockScanner(), newMockStorage(), idGen, timeSrc)
	})

	Describe("CreateExpense", func() {
		var (
			req     CreateExpenseRequest
			expense *Expense
			err     error
		)

		BeforeEach(func() {
			req = CreateExpenseRequest{
				PaidBy:       "Alice",
				Participants: []string{"Bob", " Carol ", "Bob", ""},
				ReceiptIDs:   []string{"r1", "r2"},
			}
		})

		JustBeforeEach(func() {
			expense, err = service.CreateExpense(req)
		})

		It("sums the receipts and splits the total", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(expense.ID).To(Equal("id-1"))
			Expect(expense.TotalAmount).To(Equal(2001))
			Expect(expense.Participants).To(Equal([]string{"Bob", "Carol", "Alice"}))
			Expect(expense.Shares).To(Equal([]Share{
				{Participant: "Bob", Amount: 667},
				{Participant: "Carol", Amount: 667},
				{Participant: "Alice", Amount: 667},
			}))
		})

		It("defaults the description to the first receipt's title", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(expense.Description).To(Equal("Dinner"))
		})

		It("links the receipts to the expense", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(db.receipts["r1"].ExpenseID).To(Equal("id-1"))
			Expect(db.receipts["r2"].ExpenseID).To(Equal("id-1"))
			Expect(db.receipts["r1"].UpdatedAt).To(Equal(now))
			Expect(db.expenses).To(HaveKey("id-1"))
		})

		When("a description is given", func() {
			BeforeEach(func() {
				req.Description = "Friday night"
			})

			It("uses it", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(expense.Description).To(Equal("Friday night"))
			})
		})

		When("no receipts are given", func() {
			BeforeEach(func() {
				req.ReceiptIDs = nil
			})

			It("rejects the request", func() {
				Expect(err).To(MatchError(ErrInvalid))
			})
		})

		When("the payer is blank", func() {
			BeforeEach(func() {
				req.PaidBy = "  "
			})

			It("rejects the request", func() {
				Expect(err).To(MatchError(ErrInvalid))
			})
		})

		When("a receipt is listed twice", func() {
			BeforeEach(func() {
				req.ReceiptIDs = []string{"r1", "r1"}
			})

			It("rejects the request", func() {
				Expect(err).To(MatchError(ErrInvalid))
				Expect(db.expenses).To(BeEmpty())
			})
		})

		When("a receipt does not exist", func() {
			BeforeEach(func() {
				req.ReceiptIDs = []string{"r1", "missing"}
			})

			It("returns ErrNotFound and links nothing", func() {
				Expect(err).To(MatchError(ErrNotFound))
				Expect(db.receipts["r1"].ExpenseID).To(BeEmpty())
			})
		})

		When("a receipt already belongs to an expense", func() {
			BeforeEach(func() {
				db.receipts["r2"].ExpenseID = "other"
			})

			It("returns a conflict", func() {
				Expect(err).To(MatchError(ErrConflict))
				Expect(db.receipts["r1"].ExpenseID).To(BeEmpty())
			})
		})

		When("the receipts add up to nothing", func() {
			BeforeEach(func() {
				db.receipts["r1"].Amount = -1000
				db.receipts["r2"].Amount = 0
				req.ReceiptIDs = []string{"r1", "r2"}
			})

			It("rejects the request and links nothing", func() {
				Expect(err).To(MatchError(ErrInvalid))
				Expect(db.expenses).To(BeEmpty())
				Expect(db.receipts["r1"].ExpenseID).To(BeEmpty())
			})
		})

		When("saving fails", func() {
			BeforeEach(func() {
				db.expenseErr = errors.New("tx failed")
			})

			It("returns an error", func() {
				Expect(err).To(MatchError(ContainSubstring("saving expense")))
			})
		})
	})

	Describe("GetExpenseWithReceipts", func() {
		BeforeEach(func() {
			db.expenses["e1"] = &Expense{ID: "e1", ReceiptIDs: []string{"r2", "r1"}}
		})

		It("returns the receipts in expense order", func() {
			expense, receipts, err := service.GetExpenseWithReceipts("e1")

			Expect(err).NotTo(HaveOccurred())
			Expect(expense.ID).To(Equal("e1"))
			Expect(receipts).To(HaveLen(2))
			Expect(receipts[0].ID).To(Equal("r2"))
			Expect(receipts[1].ID).To(Equal("r1"))
		})

		It("returns ErrNotFound for unknown expenses", func() {
			_, _, err := service.GetExpenseWithReceipts("missing")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("ListExpenses", func() {
		BeforeEach(func() {
			db.expenses["first"] = &Expense{ID: "first", CreatedAt: now}
			db.expenses["second"] = &Expense{ID: "second", CreatedAt: now.Add(time.Minute)}
		})

		It("returns the newest first", func() {
			expenses, err := service.ListExpenses()

			Expect(err).NotTo(HaveOccurred())
			Expect(expenses).To(HaveLen(2))
			Expect(expenses[0].ID).To(Equal("second"))
			Expect(expenses[1].ID).To(Equal("first"))
		})
	})

	Describe("Balances", func() {
		BeforeEach(func() {
			db.expenses["e1"] = &Expense{
				ID:          "e1",
				PaidBy:      "Alice",
				TotalAmount: 3000,
				Shares: []Share{
					{Participant: "Alice", Amount: 1000},
					{Participant: "Bob", Amount: 1000},
					{Participant: "Carol", Amount: 1000},
				},
			}
			db.expenses["e2"] = &Expense{
				ID:          "e2",
				PaidBy:      "Bob",
				TotalAmount: 1001,
				Shares: []Share{
					{Participant: "Alice", Amount: 501},
					{Participant: "Bob", Amount: 500},
				},
			}
		})

		It("nets what each person paid against what they owe", func() {
			balances, err := service.Balances()

			Expect(err).NotTo(HaveOccurred())
			Expect(balances).To(Equal([]Balance{
				{Participant: "Alice", Paid: 3000, Owed: 1501, Net: 1499},
				{Participant: "Bob", Paid: 1001, Owed: 1500, Net: -499},
				{Participant: "Carol", Paid: 0, Owed: 1000, Net: -1000},
			}))
		})

		It("sums to zero", func() {
			balances, err := service.Balances()

			Expect(err).NotTo(HaveOccurred())
			var sum int
			for _, b := range balances {
				sum += b.Net
			}
			Expect(sum).To(BeZero())
		})

		When("listing fails", func() {
			BeforeEach(func() {
				db.listExpErr = errors.New("boom")
			})

			It("returns an error", func() {
				_, err := service.Balances()
				Expect(err).To(HaveOccurred())
			})
		})
	})
})

var _ = Describe("splitEvenly", func() {
	It("hands the remainder to the first participants", func() {
		Expect(splitEvenly(1002, []string{"a", "b", "c", "d"})).To(Equal([]Share{
			{Participant: "a", Amount: 251},
			{Participant: "b", Amount: 251},
			{Participant: "c", Amount: 250},
			{Participant: "d", Amount: 250},
		}))
	})

	It("returns no shares without participants", func() {
		Expect(splitEvenly(100, nil)).To(BeEmpty())
	})

	It("keeps the sum when the total is negative", func() {
		shares := splitEvenly(-5, []string{"a", "b"})

		Expect(shares).To(Equal([]Share{
			{Participant: "a", Amount: -3},
			{Participant: "b", Amount: -2},
		}))
	})

	It("never drifts from the total", func() {
		for _, total := range []int{-1001, -7, -1, 0, 1, 7, 1001} {
			for n := 1; n <= 6; n++ {
				participants := make([]string, n)
				sum := 0
				for _, share := range splitEvenly(total, participants) {
					sum += share.Amount
				}
				Expect(sum).To(Equal(total), "total %d split %d ways", total, n)
			}
		}
	})
})

// rendezvousDB holds every GetReceipt caller until all expected callers have
// read, so concurrent requests start from the same receipt state
type rendezvousDB struct {
	*BoltDB
	arrived sync.WaitGroup
}

func (d *rendezvousDB) GetReceipt(id string) (*Receipt, error) {
	receipt, err := d.BoltDB.GetReceipt(id)
	d.arrived.Done()
	d.arrived.Wait()
	return receipt, err
}

var _ = Describe("Concurrent receipt claims", func() {
	var (
		db      *rendezvousDB
		service *Service
		errs    chan error
	)

	BeforeEach(func() {
		bolt, err := NewBoltDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(bolt.Close)

		Expect(bolt.SaveReceipt(&Receipt{ID: "r1", Title: "Dinner", Amount: 1000})).To(Succeed())

		db = &rendezvousDB{BoltDB: bolt}
		db.arrived.Add(2)
		service = NewService(db, newMockScanner(), newMockStorage())
		errs = make(chan error, 2)
	})

	createExpense := func(paidBy string) {
		defer GinkgoRecover()
		_, err := service.CreateExpense(CreateExpenseRequest{PaidBy: paidBy, ReceiptIDs: []string{"r1"}})
		errs <- err
	}

	It("lets only one expense claim a receipt", func() {
		go createExpense("Alice")
		go createExpense("Bob")

		var succeeded, conflicted int
		for range 2 {
			switch err := <-errs; {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrConflict):
				conflicted++
			}
		}
		Expect(succeeded).To(Equal(1))
		Expect(conflicted).To(Equal(1))

		expenses, err := service.ListExpenses()
		Expect(err).NotTo(HaveOccurred())
		Expect(expenses).To(HaveLen(1))

		receipt, err := db.BoltDB.GetReceipt("r1")
		Expect(err).NotTo(HaveOccurred())
		Expect(receipt.ExpenseID).To(Equal(expenses[0].ID))

		balances, err := service.Balances()
		Expect(err).NotTo(HaveOccurred())
		paid := 0
		for _, b := range balances {
			paid += b.Paid
		}
		Expect(paid).To(Equal(1000))
	})

	It("never deletes a receipt an expense claimed", func() {
		go createExpense("Alice")
		go func() {
			defer GinkgoRecover()
			errs <- service.DeleteReceipt("r1")
		}()

		first, second := <-errs, <-errs
		Expect([]error{first, second}).To(ContainElement(BeNil()))
		Expect(first == nil && second == nil).To(BeFalse())

		expenses, err := service.ListExpenses()
		Expect(err).NotTo(HaveOccurred())

		receipt, err := db.BoltDB.GetReceipt("r1")
		if len(expenses) == 1 {
			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.ExpenseID).To(Equal(expenses[0].ID))
		} else {
			Expect(err).To(MatchError(ErrNotFound))
		}
	})
})

var _ = Describe("normalizeParticipants", func() {
	It("does not modify the caller's slice", func() {
		participants := make([]string, 1, 4)
		participants[0] = "Bob"

		result := normalizeParticipants("Alice", participants)

		Expect(result).To(Equal([]string{"Bob", "Alice"}))
		Expect(participants).To(Equal([]string{"Bob"}))
		Expect(participants[:2][1]).To(BeEmpty())
	})

	It("keeps the payer in place when already listed", func() {
		Expect(normalizeParticipants("Alice", []string{"Alice", "Bob"})).To(Equal([]string{"Alice", "Bob"}))
	})
})
