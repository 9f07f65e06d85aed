package service

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"fund-transfers/internal/cache"
	"fund-transfers/internal/domain"
	"fund-transfers/internal/errors"
	"fund-transfers/internal/memstore"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.Transaction
	err    error
}

func (p *recordingPublisher) PublishTransferCompleted(ctx context.Context, tx *domain.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, tx.Clone())
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) published() []*domain.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*domain.Transaction(nil), p.events...)
}

type TransactionServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	logger    *slog.Logger
	cache     *cache.MemoryCache
	store     domain.Store
	publisher *recordingPublisher
	accounts  *AccountService
	service   *TransactionService
}

func TestTransactionServiceTestSuite(t *testing.T) {
	suite.Run(t, new(TransactionServiceTestSuite))
}

func (s *TransactionServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.setupStore(time.Second)
}

func (s *TransactionServiceTestSuite) setupStore(lockTimeout time.Duration) {
	s.cache = cache.NewMemoryCache()
	s.store = cache.NewStore(memstore.New(lockTimeout, s.logger), s.cache, s.logger)
	s.publisher = &recordingPublisher{}
	s.accounts = NewAccountService(s.store, s.logger)
	s.service = NewTransactionService(s.store, s.publisher, s.logger)
}

func (s *TransactionServiceTestSuite) createAccount(id, balance int64, currency domain.Currency) {
	_, err := s.accounts.CreateAccount(s.ctx, id, decimal.NewFromInt(balance), currency)
	s.Require().NoError(err)
}

func (s *TransactionServiceTestSuite) balance(id int64) decimal.Decimal {
	a, err := s.store.Account().GetAccount(s.ctx, id)
	s.Require().NoError(err)
	return a.Balance
}

func (s *TransactionServiceTestSuite) assertBalance(id, want int64) {
	got := s.balance(id)
	s.True(got.Equal(decimal.NewFromInt(want)), "account %d: want %d, got %s", id, want, got)
}

func (s *TransactionServiceTestSuite) ledger() []*domain.Transaction {
	txs, err := s.service.ListTransactions(s.ctx)
	s.Require().NoError(err)
	return txs
}

func request(from, to, amount int64, currency domain.Currency) *TransferRequest {
	return &TransferRequest{
		SourceAccountID: from,
		TargetAccountID: to,
		Amount:          decimal.NewFromInt(amount),
		Currency:        currency,
	}
}

func (s *TransactionServiceTestSuite) TestSuccessfulTransfer() {
	s.createAccount(1, 1000, domain.EUR)
	s.createAccount(2, 500, domain.EUR)

	tx, err := s.service.PerformTransfer(s.ctx, request(1, 2, 100, domain.EUR))
	s.Require().NoError(err)
	s.NotEmpty(tx.ID.String())
	s.False(tx.TransactionDate.IsZero())
	s.True(tx.Amount.Equal(decimal.NewFromInt(100)))

	s.assertBalance(1, 900)
	s.assertBalance(2, 600)

	ledger := s.ledger()
	s.Require().Len(ledger, 1)
	s.Equal(tx.ID, ledger[0].ID)

	events := s.publisher.published()
	s.Require().Len(events, 1)
	s.Equal(tx.ID, events[0].ID)
}

func (s *TransactionServiceTestSuite) TestRejections() {
	s.createAccount(1, 1000, domain.EUR)
	s.createAccount(3, 50, domain.EUR)
	s.createAccount(4, 500, domain.GBP)
	s.createAccount(5, 100, domain.EUR)

	cases := []struct {
		name string
		req  *TransferRequest
		want *errors.AppError
	}{
		{"same account", request(5, 5, 10, domain.EUR), errors.ErrSameAccountTransfer},
		{"insufficient balance", request(3, 1, 100, domain.EUR), errors.ErrInsufficientBalance},
		{"currency mismatch", request(1, 4, 100, domain.EUR), errors.ErrCurrencyMismatch},
		{"missing target", request(1, 99, 100, domain.EUR), errors.ErrAccountNotFound},
		{"missing source", request(99, 1, 100, domain.EUR), errors.ErrAccountNotFound},
		{"amount below minimum", &TransferRequest{SourceAccountID: 1, TargetAccountID: 3, Amount: decimal.RequireFromString("0.5"), Currency: domain.EUR}, errors.ErrInvalidAmount},
		{"unknown currency", request(1, 3, 10, domain.Currency("JPY")), errors.ErrInvalidCurrency},
		{"amount finer than stored scale", &TransferRequest{SourceAccountID: 5, TargetAccountID: 3, Amount: decimal.RequireFromString("1.000000005"), Currency: domain.EUR}, errors.ErrInvalidAmount},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			tx, err := s.service.PerformTransfer(s.ctx, tc.req)
			s.Nil(tx)
			s.Require().Error(err)
			s.True(stderrors.Is(err, tc.want), "got %v", err)
		})
	}

	// No rejection may leave a trace.
	s.assertBalance(1, 1000)
	s.assertBalance(3, 50)
	s.assertBalance(4, 500)
	s.assertBalance(5, 100)
	s.Empty(s.ledger())
	s.Empty(s.publisher.published())
}

func (s *TransactionServiceTestSuite) TestExactBalanceCanBeTransferred() {
	s.createAccount(1, 100, domain.USD)
	s.createAccount(2, 0, domain.USD)

	_, err := s.service.PerformTransfer(s.ctx, request(1, 2, 100, domain.USD))
	s.Require().NoError(err)
	s.assertBalance(1, 0)
	s.assertBalance(2, 100)
}

func (s *TransactionServiceTestSuite) TestFractionalAmounts() {
	s.createAccount(1, 10, domain.EUR)
	s.createAccount(2, 0, domain.EUR)

	req := request(1, 2, 0, domain.EUR)
	req.Amount = decimal.RequireFromString("1.10")
	_, err := s.service.PerformTransfer(s.ctx, req)
	s.Require().NoError(err)

	s.True(s.balance(1).Equal(decimal.RequireFromString("8.9")))
	s.True(s.balance(2).Equal(decimal.RequireFromString("1.1")))
}

func (s *TransactionServiceTestSuite) TestCachedBalanceRefreshedAfterTransfer() {
	s.createAccount(1, 1000, domain.EUR)
	s.createAccount(2, 500, domain.EUR)
	s.assertBalance(1, 1000)
	s.assertBalance(2, 500)
	s.Equal(2, s.cache.Len())

	_, err := s.service.PerformTransfer(s.ctx, request(1, 2, 100, domain.EUR))
	s.Require().NoError(err)

	s.assertBalance(1, 900)
	s.assertBalance(2, 600)
}

func (s *TransactionServiceTestSuite) TestConcurrentTransfersDoNotLoseUpdates() {
	s.createAccount(1, 100, domain.EUR)
	s.createAccount(2, 100, domain.EUR)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.service.PerformTransfer(s.ctx, request(1, 2, 60, domain.EUR))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.True(stderrors.Is(err, errors.ErrInsufficientBalance), "got %v", err)
	}
	s.Equal(1, succeeded)
	s.assertBalance(1, 40)
	s.assertBalance(2, 160)
	s.Len(s.ledger(), 1)
}

func (s *TransactionServiceTestSuite) TestOppositeDirectionTransfersConserveMoney() {
	s.setupStore(10 * time.Second)
	s.createAccount(1, 1000, domain.EUR)
	s.createAccount(2, 1000, domain.EUR)

	const perDirection = 50
	var wg sync.WaitGroup
	errCh := make(chan error, 2*perDirection)
	for i := 0; i < perDirection; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.service.PerformTransfer(s.ctx, request(1, 2, 3, domain.EUR))
			errCh <- err
		}()
		go func() {
			defer wg.Done()
			_, err := s.service.PerformTransfer(s.ctx, request(2, 1, 3, domain.EUR))
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		s.NoError(err)
	}
	s.assertBalance(1, 1000)
	s.assertBalance(2, 1000)
	s.Len(s.ledger(), 2*perDirection)
}

func (s *TransactionServiceTestSuite) TestHeldLockYieldsBusy() {
	s.setupStore(50 * time.Millisecond)
	s.createAccount(1, 1000, domain.EUR)
	s.createAccount(2, 500, domain.EUR)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.store.WithTransaction(s.ctx, func(tx domain.Store) error {
			if _, err := tx.Account().LockAccounts(s.ctx, 2); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	_, err := s.service.PerformTransfer(s.ctx, request(1, 2, 100, domain.EUR))
	close(release)
	s.Require().NoError(<-done)

	s.Require().Error(err)
	s.True(stderrors.Is(err, errors.ErrBusy), "got %v", err)
	s.True(errors.AsAppError(err).Retryable())
	s.assertBalance(1, 1000)
	s.assertBalance(2, 500)
	s.Empty(s.ledger())

	_, err = s.service.PerformTransfer(s.ctx, request(1, 2, 100, domain.EUR))
	s.NoError(err)
}

func (s *TransactionServiceTestSuite) TestPublishFailureDoesNotFailTransfer() {
	s.createAccount(1, 1000, domain.EUR)
	s.createAccount(2, 500, domain.EUR)
	s.publisher.err = stderrors.New("broker down")

	tx, err := s.service.PerformTransfer(s.ctx, request(1, 2, 100, domain.EUR))
	s.Require().NoError(err)
	s.NotNil(tx)
	s.assertBalance(1, 900)
}

func (s *TransactionServiceTestSuite) TestGetTransaction() {
	s.createAccount(1, 1000, domain.EUR)
	s.createAccount(2, 500, domain.EUR)
	tx, err := s.service.PerformTransfer(s.ctx, request(1, 2, 100, domain.EUR))
	s.Require().NoError(err)

	first, err := s.service.GetTransaction(s.ctx, tx.ID.String())
	s.Require().NoError(err)
	second, err := s.service.GetTransaction(s.ctx, tx.ID.String())
	s.Require().NoError(err)
	s.Equal(first, second)
	s.Equal(tx.SourceAccountID, first.SourceAccountID)
	s.True(tx.TransactionDate.Equal(first.TransactionDate))

	_, err = s.service.GetTransaction(s.ctx, "00000000-0000-0000-0000-000000000001")
	s.True(stderrors.Is(err, errors.ErrTransactionNotFound))

	_, err = s.service.GetTransaction(s.ctx, "not-a-uuid")
	s.Require().Error(err)
	s.Equal(errors.InvalidInput, errors.AsAppError(err).Code)
}

func (s *TransactionServiceTestSuite) TestListTransactionsInCommitOrder() {
	s.createAccount(1, 1000, domain.EUR)
	s.createAccount(2, 500, domain.EUR)

	var ids []string
	for _, amount := range []int64{10, 20, 30} {
		tx, err := s.service.PerformTransfer(s.ctx, request(1, 2, amount, domain.EUR))
		s.Require().NoError(err)
		ids = append(ids, tx.ID.String())
	}

	ledger := s.ledger()
	s.Require().Len(ledger, 3)
	for i, tx := range ledger {
		s.Equal(ids[i], tx.ID.String())
	}
	s.assertBalance(1, 940)
	s.assertBalance(2, 560)
}
