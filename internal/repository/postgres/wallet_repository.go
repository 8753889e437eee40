package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	domainErrors "github.com/storefrontlabs/checkout/internal/domain/errors"
	"github.com/storefrontlabs/checkout/internal/domain/wallet"
)

// WalletRepository implements wallet.Repository using PostgreSQL.
type WalletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

func (r *WalletRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *WalletRepository) scanWallet(s scanner) (*wallet.Wallet, error) {
	w := &wallet.Wallet{}
	err := s.Scan(&w.UserID, &w.Balance, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrWalletNotFound
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	return w, nil
}

// Create inserts a new wallet.
func (r *WalletRepository) Create(ctx context.Context, w *wallet.Wallet) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO wallets (user_id, balance, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		w.UserID, w.Balance, w.Version, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByUserID retrieves a wallet by its owner.
func (r *WalletRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*wallet.Wallet, error) {
	return r.scanWallet(r.db(ctx).QueryRow(ctx,
		`SELECT user_id, balance, version, created_at, updated_at
		 FROM wallets WHERE user_id = $1`, userID))
}

// GetForUpdate retrieves a wallet with a row-level lock (SELECT FOR UPDATE).
func (r *WalletRepository) GetForUpdate(ctx context.Context, userID uuid.UUID) (*wallet.Wallet, error) {
	return r.scanWallet(r.db(ctx).QueryRow(ctx,
		`SELECT user_id, balance, version, created_at, updated_at
		 FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
}

// Update persists the wallet balance with optimistic locking.
func (r *WalletRepository) Update(ctx context.Context, w *wallet.Wallet) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE wallets SET balance = $1, version = $2, updated_at = $3
		 WHERE user_id = $4 AND version = $5`,
		w.Balance, w.Version, w.UpdatedAt, w.UserID, w.Version-1,
	)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrWalletNotFound
	}
	return nil
}
